package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/claudespark/internal/database"
	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/sql/schema"
)

// Postgres stores messages in the messages table.
type Postgres struct {
	pool    *pgxpool.Pool
	queries *database.Queries
}

// NewPostgres connects to databaseURL and checks the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	return NewPostgresFromPool(pool), nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, queries: database.New(pool)}
}

// Migrate applies the embedded goose migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(schema.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) ListMessages(ctx context.Context, viewerID uuid.UUID) ([]model.Message, error) {
	rows, err := p.queries.ListMessagesByUser(ctx, pgtype.UUID{Bytes: viewerID, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}

	msgs := make([]model.Message, len(rows))
	for i, row := range rows {
		msgs[i] = fromRow(row)
	}
	return msgs, nil
}

func (p *Postgres) InsertMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row, err := p.queries.CreateMessage(ctx, database.CreateMessageParams{
		UserID:    pgtype.UUID{Bytes: msg.ViewerID, Valid: true},
		IsBot:     msg.IsBot(),
		Text:      msg.Text,
		Nonce:     pgtype.Text{String: msg.Nonce, Valid: msg.Nonce != ""},
		CreatedAt: pgtype.Timestamptz{Time: createdAt, Valid: true},
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("store: insert message: %w", err)
	}

	slog.DebugContext(ctx, "stored message",
		slog.Int64("id", row.ID),
		slog.String("viewer_id", msg.ViewerID.String()))

	return fromRow(row), nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func fromRow(row database.Message) model.Message {
	role := model.RoleUser
	if row.IsBot {
		role = model.RoleBot
	}
	return model.Message{
		ID:        row.ID,
		Nonce:     row.Nonce.String,
		ViewerID:  row.UserID.Bytes,
		Role:      role,
		Text:      row.Text,
		CreatedAt: row.CreatedAt.Time,
	}
}
