// Package testutil sets up the external services integration tests run
// against. Tests are skipped when the service is not configured.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/claudespark/sql/schema"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// LoadEnv reads the project's .env file if there is one.
func LoadEnv() {
	_ = godotenv.Load(filepath.Join(ProjectRoot(), ".env"))
}

// DbInit connects to TEST_DB_URL and migrates a clean schema. The schema is
// reset again when the test ends.
func DbInit(t testing.TB) *pgxpool.Pool {
	t.Helper()
	LoadEnv()

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	goose.SetBaseFS(schema.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose.SetDialect() error = %+v", err)
	}

	dbForGoose := stdlib.OpenDBFromPool(dbPool)
	DbGooseReset(t, dbForGoose)
	DbGooseUp(t, dbForGoose)

	t.Cleanup(func() {
		DbGooseReset(t, dbForGoose)
		if err := dbForGoose.Close(); err != nil {
			t.Errorf("db.Close() error = %+v", err)
		}
		dbPool.Close()
	})

	return dbPool
}

func DbGooseUp(t testing.TB, dbForGoose *sql.DB) {
	t.Helper()
	if err := goose.Up(dbForGoose, "."); err != nil {
		t.Fatalf("goose.Up() error = %+v", err)
	}
}

func DbGooseReset(t testing.TB, dbForGoose *sql.DB) {
	t.Helper()
	if err := goose.Reset(dbForGoose, "."); err != nil {
		t.Fatalf("goose.Reset() error = %+v", err)
	}
}

// NatsURL returns TEST_NATS_URL or skips the test.
func NatsURL(t testing.TB) string {
	t.Helper()
	LoadEnv()

	u := os.Getenv("TEST_NATS_URL")
	if u == "" {
		t.Skip("TEST_NATS_URL environment variable is not set")
	}
	return u
}
