// Package handler holds the HTTP handlers. Each constructor takes its
// dependencies and returns the handler.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/identity"
)

// Identity is the part of the identity provider client the handlers use.
type Identity interface {
	auth.Refresher
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo, challenge string) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ExchangeCode(ctx context.Context, code, verifier string) (*identity.Session, error)
	VerifyOTP(ctx context.Context, tokenHash, otpType string) (*identity.Session, error)
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
}

func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.ErrorContext(r.Context(), "failed to render component",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}

func isHtmx(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
