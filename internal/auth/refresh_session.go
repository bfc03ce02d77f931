package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/identity"
)

// Cookie names.
const (
	AccessCookie   = "jwt"
	RefreshCookie  = "refresh_token"
	VerifierCookie = "code_verifier"
)

// Refresher trades a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
}

// RefreshSession renews the session from the refresh token cookie and sets
// the new cookies on w. It returns ErrNoSession when there is no cookie.
func RefreshSession(w http.ResponseWriter, r *http.Request, refresher Refresher, secure bool) (uuid.UUID, string, error) {
	refreshTokCookie, err := r.Cookie(RefreshCookie)
	if err != nil || refreshTokCookie.Value == "" {
		return uuid.UUID{}, "", ErrNoSession
	}

	s, err := refresher.Refresh(r.Context(), refreshTokCookie.Value)
	if err != nil {
		return uuid.UUID{}, "", fmt.Errorf("auth: failed to refresh session: %w", err)
	}
	if !s.Active() || s.User.ID == uuid.Nil {
		return uuid.UUID{}, "", fmt.Errorf("auth: provider returned an empty session: %w", ErrNoSession)
	}

	SetSessionCookies(w, s, secure)

	return s.User.ID, s.AccessToken, nil
}

// SetSessionCookies stores the access and refresh tokens of s.
func SetSessionCookies(w http.ResponseWriter, s *identity.Session, secure bool) {
	maxAge := s.ExpiresIn
	if maxAge <= 0 {
		maxAge = 60 * 60
	}

	setCookie(w, AccessCookie, s.AccessToken, maxAge, secure)
	// The refresh token outlives the access token; the provider decides when
	// it stops working.
	setCookie(w, RefreshCookie, s.RefreshToken, int((30 * 24 * time.Hour).Seconds()), secure)
}

// ClearSessionCookies expires every cookie set by this package.
func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{AccessCookie, RefreshCookie, VerifierCookie} {
		setCookie(w, name, "", -1, secure)
	}
}

// SetVerifierCookie stores the PKCE verifier until the confirmation link is
// followed.
func SetVerifierCookie(w http.ResponseWriter, verifier string, secure bool) {
	setCookie(w, VerifierCookie, verifier, int((24 * time.Hour).Seconds()), secure)
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearVerifierCookie expires the PKCE verifier once it has been used.
func ClearVerifierCookie(w http.ResponseWriter, secure bool) {
	setCookie(w, VerifierCookie, "", -1, secure)
}
