package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	viewAuth "github.com/johndosdos/claudespark/components/auth"
	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/identity"
)

func ServeLoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isHtmx(r) {
			render(w, r, viewAuth.Login())
			return
		}
		render(w, r, viewAuth.LoginPage())
	}
}

// SubmitLoginForm signs the user in with the identity provider.
func SubmitLoginForm(idp Identity, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data.", http.StatusBadRequest)
			slog.InfoContext(ctx, "failed to parse form values", slog.Any("error", err))
			return
		}

		email := strings.TrimSpace(r.PostFormValue("email"))
		password := r.PostFormValue("password")
		if email == "" || password == "" {
			render(w, r, viewAuth.ErrorMsgAuth("Email and password are required."))
			return
		}

		s, err := idp.SignInWithPassword(ctx, email, password)
		switch {
		case errors.Is(err, identity.ErrRejected):
			render(w, r, viewAuth.ErrorMsgAuth("Invalid email or password."))
			return
		case err != nil:
			slog.ErrorContext(ctx, "sign in failed", slog.Any("error", err))
			render(w, r, viewAuth.ErrorMsgAuth("Sign in is unavailable. Try again later."))
			return
		case !s.Active():
			render(w, r, viewAuth.ErrorMsgAuth("Confirm your email before signing in."))
			return
		}

		auth.SetSessionCookies(w, s, secure)
		w.Header().Set("HX-Redirect", "/chat")
		w.WriteHeader(http.StatusOK)

		slog.InfoContext(ctx, "user logged in",
			slog.String("user_id", s.User.ID.String()))
	}
}

func ServeSignupPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isHtmx(r) {
			render(w, r, viewAuth.Signup())
			return
		}
		render(w, r, viewAuth.SignupPage())
	}
}

// SubmitSignupForm creates the account with the identity provider. The
// provider emails a confirmation link to siteURL/auth/confirm; the PKCE
// verifier for that link is kept in a cookie.
func SubmitSignupForm(idp Identity, siteURL string, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data.", http.StatusBadRequest)
			slog.InfoContext(ctx, "failed to parse form values", slog.Any("error", err))
			return
		}

		email := strings.TrimSpace(r.PostFormValue("email"))
		password := r.PostFormValue("password")
		confirmPw := r.PostFormValue("confirm_password")

		if email == "" || password == "" {
			render(w, r, viewAuth.ErrorMsgAuth("Email and password are required."))
			return
		}
		if password != confirmPw {
			render(w, r, viewAuth.ErrorMsgAuth("Passwords do not match!"))
			return
		}

		verifier, challenge := identity.NewVerifier()
		s, err := idp.SignUp(ctx, email, password, strings.TrimRight(siteURL, "/")+"/auth/confirm", challenge)
		switch {
		case errors.Is(err, identity.ErrRejected):
			slog.InfoContext(ctx, "sign up rejected", slog.Any("error", err))
			render(w, r, viewAuth.ErrorMsgAuth("Could not create the account. Check your email and password."))
			return
		case err != nil:
			slog.ErrorContext(ctx, "sign up failed", slog.Any("error", err))
			render(w, r, viewAuth.ErrorMsgAuth("Sign up is unavailable. Try again later."))
			return
		}

		// Providers with email confirmation disabled sign the user in at once.
		if s.Active() {
			auth.SetSessionCookies(w, s, secure)
			w.Header().Set("HX-Redirect", "/chat")
			w.WriteHeader(http.StatusOK)
			return
		}

		auth.SetVerifierCookie(w, verifier, secure)
		w.Header().Set("HX-Retarget", "#auth-card")
		w.Header().Set("HX-Reswap", "outerHTML")
		render(w, r, viewAuth.CheckEmail(email))

		slog.InfoContext(ctx, "user signed up", slog.String("user_id", s.User.ID.String()))
	}
}

// SubmitLogoutReq revokes the provider session, clears the cookies and
// sends the user to the login page.
func SubmitLogoutReq(idp Identity, secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if c, err := r.Cookie(auth.AccessCookie); err == nil && c.Value != "" {
			if err := idp.SignOut(ctx, c.Value); err != nil {
				slog.WarnContext(ctx, "failed to revoke session", slog.Any("error", err))
			}
		}

		auth.ClearSessionCookies(w, secure)
		w.Header().Set("HX-Redirect", "/account/login")
		w.WriteHeader(http.StatusOK)
	}
}
