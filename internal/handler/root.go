package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	viewAuth "github.com/johndosdos/claudespark/components/auth"
	viewChat "github.com/johndosdos/claudespark/components/chat"
	"github.com/johndosdos/claudespark/internal/auth"
)

// ServeRoot sends signed-in users to the chat and everyone else to the login
// page. The chat route refreshes an expired session itself.
func ServeRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		for _, name := range []string{auth.AccessCookie, auth.RefreshCookie} {
			if c, err := r.Cookie(name); err == nil && c.Value != "" {
				http.Redirect(w, r, "/chat", http.StatusSeeOther)
				return
			}
		}

		http.Redirect(w, r, "/account/login", http.StatusSeeOther)
	}
}

// ServeChat renders the chat page. The transcript itself arrives over the
// websocket.
func ServeChat(idp Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var email string
		if u, err := idp.GetUser(ctx, auth.GetAccessTokenFromContext(ctx)); err != nil {
			slog.InfoContext(ctx, "could not look up user", slog.Any("error", err))
		} else {
			email = u.Email
		}

		render(w, r, viewChat.ChatLayout(email))
	}
}

// ServeError is where failed email confirmations land.
func ServeError() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, viewAuth.ErrorPage())
	}
}

// ServeHealth reports whether the store answers within a second.
func ServeHealth(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				slog.WarnContext(ctx, "health check failed", slog.Any("error", err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
