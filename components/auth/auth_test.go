package auth

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginComponent(t *testing.T) {
	// Create a new buffer to write the component to
	var buf bytes.Buffer

	// Render the component
	err := Login().Render(context.Background(), &buf)

	// Assert that there was no error
	assert.NoError(t, err)

	// Get the rendered HTML
	html := buf.String()

	// Assert that the HTML contains the expected elements
	assert.Contains(t, html, "Welcome to ClaudeSpark")
	assert.Contains(t, html, "<form")
	assert.Contains(t, html, `hx-post="/account/login"`)
	assert.Contains(t, html, `name="email"`)
	assert.Contains(t, html, `name="password"`)
	assert.Contains(t, html, `type="submit"`)
	assert.Contains(t, html, "Sign In")
	assert.Contains(t, html, `hx-get="/account/signup"`)
	assert.Contains(t, html, "Sign up")
}

func TestSignupComponent(t *testing.T) {
	var buf bytes.Buffer

	err := Signup().Render(context.Background(), &buf)
	assert.NoError(t, err)

	html := buf.String()

	assert.Contains(t, html, "Create your account")
	assert.Contains(t, html, "<form")
	assert.Contains(t, html, `hx-post="/account/signup"`)
	assert.Contains(t, html, `name="email"`)
	assert.Contains(t, html, `name="password"`)
	assert.Contains(t, html, `name="confirm_password"`)
	assert.Contains(t, html, `type="submit"`)
	assert.Contains(t, html, "Create account")
	assert.Contains(t, html, `hx-get="/account/login"`)
	assert.Contains(t, html, "Sign in")
}

func TestErrorMsgAuthEscapes(t *testing.T) {
	var buf bytes.Buffer

	err := ErrorMsgAuth(`<script>alert(1)</script>`).Render(context.Background(), &buf)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `id="auth-error"`)
	assert.NotContains(t, buf.String(), "<script>")
}

func TestPages(t *testing.T) {
	var buf bytes.Buffer

	assert.NoError(t, LoginPage().Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "<!DOCTYPE html>")
	assert.Contains(t, buf.String(), `id="auth-card"`)

	buf.Reset()
	assert.NoError(t, ErrorPage().Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Sorry, something went wrong")
	assert.Contains(t, buf.String(), `href="/account/login"`)

	buf.Reset()
	assert.NoError(t, CheckEmail("a@b.c").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "a@b.c")
}
