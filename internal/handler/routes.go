package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johndosdos/claudespark/internal"
	ratelimiter "github.com/johndosdos/claudespark/internal/rate_limiter"
	"github.com/johndosdos/claudespark/internal/transcript"
	ws "github.com/johndosdos/claudespark/internal/websocket"
)

// Deps is everything the router needs.
type Deps struct {
	Identity       Identity
	JWTSecret      string
	SiteURL        string
	SecureCookies  bool
	Hub            *ws.Hub
	NewSession     SessionFactory
	Messages       transcript.Loader
	Replier        Replier
	Limiter        *ratelimiter.IPRateLimiter
	Health         func(ctx context.Context) error
	OriginPatterns []string
	SSEKeepAlive   time.Duration
}

// Routes wires the handlers to their paths.
func Routes(d Deps) http.Handler {
	keepAlive := d.SSEKeepAlive
	if keepAlive <= 0 {
		keepAlive = 10 * time.Second
	}

	gate := internal.Middleware(internal.Gate{
		JWTSecret:     d.JWTSecret,
		Refresher:     d.Identity,
		SecureCookies: d.SecureCookies,
	})
	limit := func(next http.Handler) http.Handler { return next }
	if d.Limiter != nil {
		limit = d.Limiter.Middleware
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	fs := http.FileServer(http.Dir("static"))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	r.Get("/", ServeRoot())
	r.Get("/error", ServeError())
	r.Get("/healthz", ServeHealth(d.Health))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/auth/confirm", ServeConfirm(d.Identity, d.SecureCookies))

	r.Route("/account", func(r chi.Router) {
		r.Get("/login", ServeLoginPage())
		r.Get("/signup", ServeSignupPage())
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/login", SubmitLoginForm(d.Identity, d.SecureCookies))
			r.Post("/signup", SubmitSignupForm(d.Identity, d.SiteURL, d.SecureCookies))
			r.Post("/refresh", RefreshToken(d.Identity, d.SecureCookies))
		})
		r.Post("/logout", SubmitLogoutReq(d.Identity, d.SecureCookies))
	})

	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/chat", ServeChat(d.Identity))
		r.Get("/ws", ServeWs(d.Hub, d.NewSession, d.OriginPatterns))
		r.Get("/messages", ServeMessages(d.Messages))
		r.Get("/events", StreamSSE(d.Hub, keepAlive))
		r.With(limit).Post("/api/chat", ServeAPIChat(d.Replier))
	})

	return r
}
