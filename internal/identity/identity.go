// Package identity is a client of a GoTrue-compatible identity provider
// (the Supabase auth API). The provider owns users, passwords, email
// confirmation and token issuance; this service only exchanges and refreshes
// sessions.
package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// ErrRejected is returned when the provider answers with an error status:
// invalid or expired code, wrong password, revoked refresh token.
var ErrRejected = errors.New("identity: rejected by provider")

// User is the identity of a signed-in viewer.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is an access/refresh token pair.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Active reports whether the session carries tokens. Sign-up returns an
// inactive session while the email confirmation is pending.
func (s *Session) Active() bool {
	return s != nil && s.AccessToken != ""
}

// Client talks to the provider's REST API. Password sign-in, refresh,
// sign-out and user lookup go through gotrue-go; the PKCE and token hash
// calls are not covered by it and are made directly.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	gt      gotrue.Client
}

// New returns a Client for the API at baseURL (for Supabase,
// https://<project>.supabase.co/auth/v1).
func New(baseURL, anonKey string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		http:    &http.Client{Timeout: requestTimeout},
		gt:      gotrue.New("", anonKey).WithCustomGoTrueURL(baseURL),
	}
}

const requestTimeout = 10 * time.Second

// ExchangeCode trades an authorization code from an email link for a
// session. verifier is the PKCE code verifier stored when the flow started.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("identity: exchange code: %w", err)
	}
	return &s, nil
}

// VerifyOTP verifies a one-time token hash of the given type (signup,
// magiclink, recovery, invite, email_change, email).
func (c *Client) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/verify", "", map[string]string{
		"token_hash": tokenHash,
		"type":       otpType,
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("identity: verify otp: %w", err)
	}
	return &s, nil
}

// SignInWithPassword starts a session with email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var res *types.TokenResponse
	err := c.call(ctx, "", func(gt gotrue.Client) (err error) {
		res, err = gt.SignInWithEmailPassword(email, password)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("identity: sign in: %w", err)
	}
	return fromSession(res.Session), nil
}

// SignUp registers a user. When the provider requires email confirmation
// the returned session is inactive and the confirmation link points at
// redirectTo; challenge is the PKCE challenge matching the verifier that
// ExchangeCode will be given.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo, challenge string) (*Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	if challenge != "" {
		body["code_challenge"] = challenge
		body["code_challenge_method"] = "s256"
	}

	path := "/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	// The provider answers with a session when confirmation is disabled and
	// with the bare user otherwise.
	var res struct {
		Session
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
	}
	if err := c.do(ctx, http.MethodPost, path, "", body, &res); err != nil {
		return nil, fmt.Errorf("identity: sign up: %w", err)
	}

	s := res.Session
	if !s.Active() {
		s.User = User{ID: res.ID, Email: res.Email}
	}
	return &s, nil
}

// Refresh trades a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var res *types.TokenResponse
	err := c.call(ctx, "", func(gt gotrue.Client) (err error) {
		res, err = gt.RefreshToken(refreshToken)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("identity: refresh: %w", err)
	}
	return fromSession(res.Session), nil
}

// SignOut revokes the session of accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.call(ctx, accessToken, func(gt gotrue.Client) error {
		return gt.Logout()
	})
	if err != nil {
		return fmt.Errorf("identity: sign out: %w", err)
	}
	return nil
}

// GetUser returns the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var res *types.UserResponse
	err := c.call(ctx, accessToken, func(gt gotrue.Client) (err error) {
		res, err = gt.GetUser()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("identity: get user: %w", err)
	}
	return &User{ID: res.ID, Email: res.Email}, nil
}

func fromSession(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		RefreshToken: s.RefreshToken,
		User:         User{ID: s.User.ID, Email: s.User.Email},
	}
}

// roundTrip binds one gotrue-go call to ctx and remembers the status the
// provider answered with. gotrue-go takes no context and reports statuses
// only inside its error text.
type roundTrip struct {
	ctx    context.Context
	base   http.RoundTripper
	status int
}

func (t *roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if resp != nil {
		t.status = resp.StatusCode
	}
	return resp, err
}

// call runs fn against a gotrue client scoped to ctx and bearer. Provider
// answers of 400 and above become ErrRejected.
func (c *Client) call(ctx context.Context, bearer string, fn func(gotrue.Client) error) error {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	// The request context replaces the one http.Client derives for its
	// Timeout, so the deadline is carried on ctx instead.
	ctx, cancel := context.WithTimeout(ctx, c.http.Timeout)
	defer cancel()
	rt := &roundTrip{ctx: ctx, base: base}

	gt := c.gt.WithClient(http.Client{Transport: rt})
	if bearer != "" {
		gt = gt.WithToken(bearer)
	}

	err := fn(gt)
	switch {
	case err == nil:
		return nil
	case rt.status >= http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ErrRejected, err)
	default:
		return err
	}
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) String() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		p, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if msg := e.String(); msg != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
		}
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// NewVerifier returns a PKCE code verifier and its S256 challenge.
func NewVerifier() (verifier, challenge string) {
	rnd := make([]byte, 32)

	// rand.Read() never returns an error.
	_, _ = rand.Read(rnd)
	verifier = base64.RawURLEncoding.EncodeToString(rnd)

	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}
