package handler

import (
	"log/slog"
	"net/http"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/identity"
	"github.com/johndosdos/claudespark/internal/metrics"
)

// ServeConfirm finishes an email link sign-in. A code is exchanged with the
// PKCE verifier cookie; otherwise token_hash and type are verified. Exactly
// one provider call is made. Success lands on /chat with the session set,
// anything else on /error.
func ServeConfirm(idp Identity, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		var (
			s      *identity.Session
			err    error
			method string
		)
		switch code, tokenHash, otpType := q.Get("code"), q.Get("token_hash"), q.Get("type"); {
		case code != "":
			method = "code"
			var verifier string
			if c, cerr := r.Cookie(auth.VerifierCookie); cerr == nil {
				verifier = c.Value
			}
			s, err = idp.ExchangeCode(ctx, code, verifier)
		case tokenHash != "" && otpType != "":
			method = "otp"
			s, err = idp.VerifyOTP(ctx, tokenHash, otpType)
		default:
			metrics.ConfirmRequests.WithLabelValues("none", "invalid").Inc()
			http.Redirect(w, r, "/error", http.StatusSeeOther)
			return
		}

		if err == nil && !s.Active() {
			err = auth.ErrNoSession
		}
		if err != nil {
			metrics.ConfirmRequests.WithLabelValues(method, "error").Inc()
			slog.WarnContext(ctx, "email confirmation failed",
				slog.String("method", method),
				slog.Any("error", err))
			http.Redirect(w, r, "/error", http.StatusSeeOther)
			return
		}

		metrics.ConfirmRequests.WithLabelValues(method, "ok").Inc()
		auth.SetSessionCookies(w, s, secure)
		auth.ClearVerifierCookie(w, secure)
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
	}
}
