package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/identity"
)

func TestJWT(t *testing.T) {
	t.Run("Valid_JWT", func(t *testing.T) {
		userID := uuid.New()
		tokenSecret := "validtokensecret"
		expiration := 15 * time.Second
		tokenString, err := MakeJWT(userID, tokenSecret, expiration)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		gotUserID, err := ValidateJWT(tokenString, tokenSecret)
		if err != nil {
			t.Fatalf("ValidateJWT() error = %+v", err)
		}
		if gotUserID != userID {
			t.Errorf("want = %+v, got = %+v", userID, gotUserID)
		}
	})

	t.Run("Incorrect_secret", func(t *testing.T) {
		tokenString, err := MakeJWT(uuid.New(), "validtokensecret", 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		if _, err = ValidateJWT(tokenString, "fakesecret"); err == nil {
			t.Fatal("ValidateJWT() expected error for wrong secret")
		}
	})

	t.Run("Expired_token", func(t *testing.T) {
		tokenString, err := MakeJWT(uuid.New(), "validtokensecret", -1*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		if _, err = ValidateJWT(tokenString, "validtokensecret"); err == nil {
			t.Fatal("ValidateJWT() expected error for expired token")
		}
	})

	t.Run("Corrupt_token", func(t *testing.T) {
		if _, err := ValidateJWT("corrupttoken", "validtokensecret"); err == nil {
			t.Fatal("ValidateJWT() expected error for corrupt token")
		}
	})
}

func TestGetUserFromContext(t *testing.T) {
	t.Run("is_valid_UUID", func(t *testing.T) {
		wantUserID := uuid.New()
		ctx := WithSession(context.Background(), wantUserID, "tok")
		gotUserID, err := GetUserFromContext(ctx)
		if err != nil {
			t.Fatalf("GetUserFromContext(): expected userID but got error = %+v", err)
		}
		if gotUserID != wantUserID {
			t.Errorf("want %+v but got %+v", wantUserID, gotUserID)
		}
		if got := GetAccessTokenFromContext(ctx); got != "tok" {
			t.Errorf("GetAccessTokenFromContext() = %q, want tok", got)
		}
	})

	t.Run("invalid_UUID", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), UserIDKey, "not-UUID")
		if _, err := GetUserFromContext(ctx); err == nil {
			t.Fatal("GetUserFromContext(): expected error but got none")
		}
	})

	t.Run("nil_UUID", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), UserIDKey, uuid.Nil)
		if _, err := GetUserFromContext(ctx); !errors.Is(err, ErrNoSession) {
			t.Fatalf("GetUserFromContext() error = %v, want ErrNoSession", err)
		}
	})

	t.Run("no_context", func(t *testing.T) {
		if _, err := GetUserFromContext(context.Background()); err == nil {
			t.Fatal("GetUserFromContext(): expected error but got none")
		}
	})
}

type fakeRefresher struct {
	session *identity.Session
	err     error
	got     string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*identity.Session, error) {
	f.got = refreshToken
	return f.session, f.err
}

func TestRefreshSession(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name          string
		cookie        string
		refresher     *fakeRefresher
		wantErr       bool
		wantNoSession bool
	}{
		{
			name:   "valid_refresh_token",
			cookie: "rt",
			refresher: &fakeRefresher{session: &identity.Session{
				AccessToken: "new-at", RefreshToken: "new-rt", ExpiresIn: 3600,
				User: identity.User{ID: userID},
			}},
		},
		{name: "no_cookie", refresher: &fakeRefresher{}, wantErr: true, wantNoSession: true},
		{name: "revoked", cookie: "rt", refresher: &fakeRefresher{err: identity.ErrRejected}, wantErr: true},
		{name: "empty_session", cookie: "rt", refresher: &fakeRefresher{session: &identity.Session{}}, wantErr: true, wantNoSession: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chat", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()

			gotID, gotTok, err := RefreshSession(rec, req, tt.refresher, true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RefreshSession() error = %+v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNoSession && !errors.Is(err, ErrNoSession) {
				t.Errorf("want ErrNoSession, got %v", err)
			}
			if tt.wantErr {
				if len(rec.Result().Cookies()) != 0 {
					t.Error("no cookies should be set on failure")
				}
				return
			}

			if gotID != userID || gotTok != "new-at" {
				t.Errorf("got (%v, %q), want (%v, new-at)", gotID, gotTok, userID)
			}
			if tt.refresher.got != tt.cookie {
				t.Errorf("refresher got %q, want %q", tt.refresher.got, tt.cookie)
			}

			cookies := map[string]*http.Cookie{}
			for _, c := range rec.Result().Cookies() {
				cookies[c.Name] = c
			}
			if c := cookies[AccessCookie]; c == nil || c.Value != "new-at" || c.MaxAge != 3600 || !c.HttpOnly || !c.Secure {
				t.Errorf("bad access cookie: %+v", c)
			}
			if c := cookies[RefreshCookie]; c == nil || c.Value != "new-rt" {
				t.Errorf("bad refresh cookie: %+v", c)
			}
		})
	}
}

func TestClearSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSessionCookies(rec, false)

	cookies := rec.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("want 3 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}
