package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/johndosdos/claudespark/internal/auth"
)

// RefreshToken renews the session cookies from the refresh token.
func RefreshToken(refresher auth.Refresher, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, err := auth.RefreshSession(w, r, refresher, secure)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				slog.InfoContext(r.Context(), "refresh failed", slog.Any("error", err))
			}
			w.Header().Set("HX-Redirect", "/account/login")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
