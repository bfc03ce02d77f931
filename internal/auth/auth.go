// Package auth validates the identity provider's access tokens and keeps the
// session cookies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ContextKey string

const (
	UserIDKey      ContextKey = "userId"
	AccessTokenKey ContextKey = "accessToken"
)

// ErrNoSession is returned when the request carries no usable session.
var ErrNoSession = errors.New("auth: no session")

// MakeJWT signs an access token the way the identity provider does. It is
// used for tests and local development without a provider.
func MakeJWT(userID uuid.UUID, tokenSecret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "claudespark",
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{"authenticated"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})

	return token.SignedString([]byte(tokenSecret))
}

// ValidateJWT checks an HS256 access token and returns its subject.
func ValidateJWT(tokenString, tokenSecret string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return uuid.UUID{}, errors.New("auth: token is invalid")
	}

	if claims.Subject == "" {
		return uuid.UUID{}, errors.New("auth: subject claim is missing")
	}

	return uuid.Parse(claims.Subject)
}

// GetUserFromContext returns the viewer set by the auth middleware.
func GetUserFromContext(ctx context.Context) (uuid.UUID, error) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.UUID{}, fmt.Errorf("auth: user id missing from context: %w", ErrNoSession)
	}
	return userID, nil
}

// GetAccessTokenFromContext returns the access token the request was
// authorized with, if any.
func GetAccessTokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(AccessTokenKey).(string)
	return tok
}

// WithSession returns ctx carrying the viewer and their access token.
func WithSession(ctx context.Context, userID uuid.UUID, accessToken string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, AccessTokenKey, accessToken)
}
