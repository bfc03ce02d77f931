package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/identity"
)

type fakeIdentity struct {
	session *identity.Session
	err     error

	calls      []string
	gotArgs    []string
	signedOut  string
	user       *identity.User
	redirectTo string
}

func (f *fakeIdentity) record(name string, args ...string) (*identity.Session, error) {
	f.calls = append(f.calls, name)
	f.gotArgs = args
	return f.session, f.err
}

func (f *fakeIdentity) Refresh(_ context.Context, rt string) (*identity.Session, error) {
	return f.record("refresh", rt)
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	return f.record("password", email, password)
}

func (f *fakeIdentity) SignUp(_ context.Context, email, password, redirectTo, challenge string) (*identity.Session, error) {
	f.redirectTo = redirectTo
	return f.record("signup", email, password, challenge)
}

func (f *fakeIdentity) SignOut(_ context.Context, accessToken string) error {
	f.calls = append(f.calls, "signout")
	f.signedOut = accessToken
	return f.err
}

func (f *fakeIdentity) ExchangeCode(_ context.Context, code, verifier string) (*identity.Session, error) {
	return f.record("code", code, verifier)
}

func (f *fakeIdentity) VerifyOTP(_ context.Context, tokenHash, otpType string) (*identity.Session, error) {
	return f.record("otp", tokenHash, otpType)
}

func (f *fakeIdentity) GetUser(context.Context, string) (*identity.User, error) {
	f.calls = append(f.calls, "user")
	if f.user == nil {
		return nil, identity.ErrRejected
	}
	return f.user, nil
}

func activeSession() *identity.Session {
	return &identity.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    3600,
		User:         identity.User{ID: uuid.New(), Email: "a@b.c"},
	}
}

func cookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestServeConfirm(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		verifier     string
		idp          *fakeIdentity
		wantLocation string
		wantCalls    []string
		wantArgs     []string
	}{
		{
			name:         "no_params",
			query:        "",
			idp:          &fakeIdentity{session: activeSession()},
			wantLocation: "/error",
		},
		{
			name:         "type_without_token_hash",
			query:        "type=email",
			idp:          &fakeIdentity{session: activeSession()},
			wantLocation: "/error",
		},
		{
			name:         "code_ok",
			query:        "code=abc",
			verifier:     "ver",
			idp:          &fakeIdentity{session: activeSession()},
			wantLocation: "/chat",
			wantCalls:    []string{"code"},
			wantArgs:     []string{"abc", "ver"},
		},
		{
			name:         "code_wins_over_token_hash",
			query:        "code=abc&token_hash=h&type=email",
			idp:          &fakeIdentity{session: activeSession()},
			wantLocation: "/chat",
			wantCalls:    []string{"code"},
			wantArgs:     []string{"abc", ""},
		},
		{
			name:         "code_rejected",
			query:        "code=abc",
			idp:          &fakeIdentity{err: identity.ErrRejected},
			wantLocation: "/error",
			wantCalls:    []string{"code"},
			wantArgs:     []string{"abc", ""},
		},
		{
			name:         "otp_ok",
			query:        "token_hash=h&type=email",
			idp:          &fakeIdentity{session: activeSession()},
			wantLocation: "/chat",
			wantCalls:    []string{"otp"},
			wantArgs:     []string{"h", "email"},
		},
		{
			name:         "otp_without_session",
			query:        "token_hash=h&type=signup",
			idp:          &fakeIdentity{session: &identity.Session{}},
			wantLocation: "/error",
			wantCalls:    []string{"otp"},
			wantArgs:     []string{"h", "signup"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/confirm?"+tt.query, nil)
			if tt.verifier != "" {
				req.AddCookie(&http.Cookie{Name: auth.VerifierCookie, Value: tt.verifier})
			}
			rec := httptest.NewRecorder()

			ServeConfirm(tt.idp, false).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantCalls, tt.idp.calls)
			if tt.wantArgs != nil {
				assert.Equal(t, tt.wantArgs, tt.idp.gotArgs)
			}

			c := cookies(rec)
			if tt.wantLocation == "/chat" {
				require.NotNil(t, c[auth.AccessCookie])
				assert.Equal(t, "at", c[auth.AccessCookie].Value)
				assert.Equal(t, "rt", c[auth.RefreshCookie].Value)
				assert.Negative(t, c[auth.VerifierCookie].MaxAge)
			} else {
				assert.Nil(t, c[auth.AccessCookie])
			}
		})
	}
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitLoginForm(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		idp := &fakeIdentity{session: activeSession()}
		rec := postForm(SubmitLoginForm(idp, true), "/account/login", url.Values{"email": {" a@b.c "}, "password": {"pw"}})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/chat", rec.Header().Get("HX-Redirect"))
		assert.Equal(t, []string{"a@b.c", "pw"}, idp.gotArgs)
		c := cookies(rec)
		require.NotNil(t, c[auth.AccessCookie])
		assert.True(t, c[auth.AccessCookie].Secure)
	})

	t.Run("rejected", func(t *testing.T) {
		idp := &fakeIdentity{err: identity.ErrRejected}
		rec := postForm(SubmitLoginForm(idp, false), "/account/login", url.Values{"email": {"a@b.c"}, "password": {"bad"}})

		assert.Empty(t, rec.Header().Get("HX-Redirect"))
		assert.Contains(t, rec.Body.String(), "Invalid email or password.")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("provider_down", func(t *testing.T) {
		idp := &fakeIdentity{err: errors.New("dial tcp: refused")}
		rec := postForm(SubmitLoginForm(idp, false), "/account/login", url.Values{"email": {"a@b.c"}, "password": {"pw"}})

		assert.Contains(t, rec.Body.String(), "Try again later.")
	})

	t.Run("missing_fields", func(t *testing.T) {
		idp := &fakeIdentity{}
		rec := postForm(SubmitLoginForm(idp, false), "/account/login", url.Values{"email": {"a@b.c"}})

		assert.Contains(t, rec.Body.String(), "required")
		assert.Empty(t, idp.calls)
	})
}

func TestSubmitSignupForm(t *testing.T) {
	t.Run("password_mismatch", func(t *testing.T) {
		idp := &fakeIdentity{}
		rec := postForm(SubmitSignupForm(idp, "http://site", false), "/account/signup",
			url.Values{"email": {"a@b.c"}, "password": {"one"}, "confirm_password": {"two"}})

		assert.Contains(t, rec.Body.String(), "Passwords do not match!")
		assert.Empty(t, idp.calls)
	})

	t.Run("confirmation_pending", func(t *testing.T) {
		idp := &fakeIdentity{session: &identity.Session{User: identity.User{ID: uuid.New()}}}
		rec := postForm(SubmitSignupForm(idp, "http://site/", false), "/account/signup",
			url.Values{"email": {"a@b.c"}, "password": {"secret1"}, "confirm_password": {"secret1"}})

		assert.Equal(t, "http://site/auth/confirm", idp.redirectTo)
		assert.Equal(t, "#auth-card", rec.Header().Get("HX-Retarget"))
		assert.Contains(t, rec.Body.String(), "Check your email")

		c := cookies(rec)
		require.NotNil(t, c[auth.VerifierCookie])
		assert.NotEmpty(t, c[auth.VerifierCookie].Value)
		assert.NotEqual(t, c[auth.VerifierCookie].Value, idp.gotArgs[2], "challenge must not be the verifier")
	})

	t.Run("autoconfirmed", func(t *testing.T) {
		idp := &fakeIdentity{session: activeSession()}
		rec := postForm(SubmitSignupForm(idp, "http://site", false), "/account/signup",
			url.Values{"email": {"a@b.c"}, "password": {"secret1"}, "confirm_password": {"secret1"}})

		assert.Equal(t, "/chat", rec.Header().Get("HX-Redirect"))
		assert.NotNil(t, cookies(rec)[auth.AccessCookie])
	})

	t.Run("rejected", func(t *testing.T) {
		idp := &fakeIdentity{err: identity.ErrRejected}
		rec := postForm(SubmitSignupForm(idp, "http://site", false), "/account/signup",
			url.Values{"email": {"a@b.c"}, "password": {"x"}, "confirm_password": {"x"}})

		assert.Contains(t, rec.Body.String(), "Could not create the account.")
		assert.Empty(t, rec.Result().Cookies())
	})
}

func TestSubmitLogoutReq(t *testing.T) {
	idp := &fakeIdentity{}
	req := httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookie, Value: "tok"})
	rec := httptest.NewRecorder()

	SubmitLogoutReq(idp, false).ServeHTTP(rec, req)

	assert.Equal(t, "tok", idp.signedOut)
	assert.Equal(t, "/account/login", rec.Header().Get("HX-Redirect"))
	for _, c := range rec.Result().Cookies() {
		assert.Negative(t, c.MaxAge, c.Name)
	}
}

func TestRefreshToken(t *testing.T) {
	t.Run("no_cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RefreshToken(&fakeIdentity{}, false).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/account/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "/account/login", rec.Header().Get("HX-Redirect"))
	})

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/account/refresh", nil)
		req.AddCookie(&http.Cookie{Name: auth.RefreshCookie, Value: "old"})
		rec := httptest.NewRecorder()
		RefreshToken(&fakeIdentity{session: activeSession()}, false).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "at", cookies(rec)[auth.AccessCookie].Value)
	})
}

func TestServeRoot(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		want   string
	}{
		{"anonymous", nil, "/account/login"},
		{"access_cookie", &http.Cookie{Name: auth.AccessCookie, Value: "x"}, "/chat"},
		{"refresh_cookie", &http.Cookie{Name: auth.RefreshCookie, Value: "x"}, "/chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			ServeRoot().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}
}

func TestServeChat(t *testing.T) {
	idp := &fakeIdentity{user: &identity.User{ID: uuid.New(), Email: "me@example.com"}}
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req = req.WithContext(auth.WithSession(req.Context(), idp.user.ID, "tok"))
	rec := httptest.NewRecorder()

	ServeChat(idp).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "me@example.com")
	assert.Contains(t, rec.Body.String(), `ws-connect="/ws"`)
}

func TestServeHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeHealth(func(context.Context) error { return nil }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ServeHealth(func(context.Context) error { return errors.New("down") }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
