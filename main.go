// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/time/rate"

	"github.com/johndosdos/claudespark/internal/broker"
	"github.com/johndosdos/claudespark/internal/broker/worker"
	"github.com/johndosdos/claudespark/internal/chat"
	"github.com/johndosdos/claudespark/internal/config"
	"github.com/johndosdos/claudespark/internal/dispatch"
	"github.com/johndosdos/claudespark/internal/handler"
	"github.com/johndosdos/claudespark/internal/identity"
	ratelimiter "github.com/johndosdos/claudespark/internal/rate_limiter"
	"github.com/johndosdos/claudespark/internal/reply"
	"github.com/johndosdos/claudespark/internal/store"
	ws "github.com/johndosdos/claudespark/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.Level(),
	})))

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting application...")

	// Init store
	var (
		messages store.MessageStore
		health   func(context.Context) error
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		slog.Info("Initializing Database connection...")
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return err
		}
		messages, health = pg, pg.Ping
	default:
		slog.Info("Opening bolt store", slog.String("path", cfg.BoltPath))
		b, err := store.NewBolt(cfg.BoltPath)
		if err != nil {
			return err
		}
		messages = b
	}
	defer func() {
		if err := messages.Close(); err != nil {
			slog.Warn("failed to close store", slog.Any("error", err))
		}
	}()

	// Init feed
	var feed broker.Feed = broker.NewLocal()
	if cfg.NatsURL != "" {
		slog.Info("Initializing NATS connection...")
		conn, err := connectNats(cfg)
		if err != nil {
			return err
		}
		defer func() {
			// Drain NATS connection.
			if err := conn.Drain(); err != nil {
				slog.Warn("couldn't drain NATS conn", slog.Any("error", err))
			}
		}()

		js, err := jetstream.New(conn)
		if err != nil {
			return err
		}
		if feed, err = broker.NewJetStream(ctx, js); err != nil {
			return err
		}
	}

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub()
	go hub.Run(ctx)

	if err := feed.Subscribe(ctx, worker.WorkerHub(hub)); err != nil {
		return err
	}

	// Reply generation
	provider, err := cfg.Provider(slog.Default())
	if err != nil {
		return err
	}
	service := reply.NewService(provider, messages, feed, slog.Default())

	var generator dispatch.ReplyGenerator = reply.Local{Service: service}
	if cfg.ReplyURL != "" {
		generator = reply.NewClient(cfg.ReplyURL, cfg.ReplyTimeout)
	}

	newSession := func(viewerID uuid.UUID, accessToken string) *chat.Session {
		return chat.NewSession(viewerID, chat.Config{
			Loader:      messages,
			Generator:   generator,
			AccessToken: accessToken,
			RevealDelay: cfg.RevealDelay,
			Limiter:     rate.NewLimiter(rate.Every(cfg.RateLimitWindow/time.Duration(cfg.RateLimitRequests)), cfg.RateLimitRequests),
		})
	}

	ipLimiter := ratelimiter.NewIPRateLimiter(cfg.RateLimitRequests*6, cfg.RateLimitWindow*6, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer ipLimiter.Stop()

	var origins []string
	if u, err := url.Parse(cfg.SiteURL); err == nil && u.Host != "" {
		origins = append(origins, u.Host)
	}

	server := &http.Server{
		Addr: "0.0.0.0:" + cfg.Port,
		Handler: handler.Routes(handler.Deps{
			Identity:       identity.New(cfg.AuthURL, cfg.AuthAnonKey),
			JWTSecret:      cfg.JWTSecret,
			SiteURL:        cfg.SiteURL,
			SecureCookies:  cfg.CookieSecure,
			Hub:            hub,
			NewSession:     newSession,
			Messages:       messages,
			Replier:        service,
			Limiter:        ipLimiter,
			Health:         health,
			OriginPatterns: origins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		slog.Info("Server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", slog.Any("error", err))
	}

	slog.Info("Server stopped")
	return nil
}

func connectNats(cfg config.Config) (*nats.Conn, error) {
	var natsCredentials []nats.Option

	if cfg.NatsCred != "" {
		natsCredentials = append(natsCredentials, nats.UserCredentials(cfg.NatsCred))
	} else if cfg.NatsUser != "" && cfg.NatsPassword != "" {
		natsCredentials = append(natsCredentials, nats.UserInfo(cfg.NatsUser, cfg.NatsPassword))
	}

	natsCredentials = append(natsCredentials, nats.Timeout(5*time.Second))

	return nats.Connect(cfg.NatsURL, natsCredentials...)
}
