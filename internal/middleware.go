package internal

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/johndosdos/claudespark/internal/auth"
)

// Gate holds what Middleware needs to authenticate a request.
type Gate struct {
	JWTSecret     string
	Refresher     auth.Refresher
	SecureCookies bool
}

// Middleware validates the viewer's access token and puts the viewer on the
// request context. A bearer token is checked first, then the jwt cookie; an
// expired cookie session is renewed with the refresh token. Requests without
// a session are sent to the login page, or get 401 when they are API calls.
func Middleware(g Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				userID, err := auth.ValidateJWT(bearer, g.JWTSecret)
				if err != nil {
					slog.InfoContext(r.Context(), "rejected bearer token",
						slog.String("path", r.URL.Path),
						slog.Any("error", err))
					unauthorized(w, r)
					return
				}
				next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), userID, bearer)))
				return
			}

			// Check JWT if it exists. If valid, append user ID to context and
			// serve the next handler.
			if jwtCookie, err := r.Cookie(auth.AccessCookie); err == nil {
				userID, err := auth.ValidateJWT(jwtCookie.Value, g.JWTSecret)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), userID, jwtCookie.Value)))
					return
				}
			}

			// If JWT does not exist or is not valid, try the refresh token.
			if g.Refresher != nil {
				userID, accessToken, err := auth.RefreshSession(w, r, g.Refresher, g.SecureCookies)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), userID, accessToken)))
					return
				}
				if !errors.Is(err, auth.ErrNoSession) {
					slog.WarnContext(r.Context(), "failed to refresh session",
						slog.Any("error", err))
				}
			}

			unauthorized(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		http.Error(w, "Unauthorized.", http.StatusUnauthorized)
	case r.Header.Get("HX-Request") == "true":
		w.Header().Set("HX-Redirect", "/account/login")
		w.WriteHeader(http.StatusUnauthorized)
	default:
		http.Redirect(w, r, "/account/login", http.StatusSeeOther)
	}
}
