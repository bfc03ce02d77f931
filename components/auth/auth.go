// Package auth renders the sign-in, sign-up and error pages.
package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/johndosdos/claudespark/components/layout"
)

const (
	cardClass  = `class="mx-auto mt-24 w-full max-w-sm rounded-xl bg-white p-8 shadow"`
	inputClass = `class="w-full rounded border px-3 py-2 focus:outline-none focus:ring"`
	buttonCls  = `class="w-full rounded bg-indigo-600 py-2 font-medium text-white hover:bg-indigo-700"`
	linkClass  = `class="text-indigo-600 hover:underline"`
)

// LoginPage is the full sign-in page.
func LoginPage() templ.Component {
	return layout.Base("Sign in - ClaudeSpark", Login())
}

// SignupPage is the full sign-up page.
func SignupPage() templ.Component {
	return layout.Base("Sign up - ClaudeSpark", Signup())
}

// Login is the sign-in card. The link at the bottom swaps it for the
// sign-up card.
func Login() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="auth-card" `+cardClass+`>`+
			`<h1 class="mb-1 text-2xl font-semibold">Welcome to ClaudeSpark</h1>`+
			`<p class="mb-6 text-sm text-slate-500">Sign in to chat with Claude.</p>`+
			`<form hx-post="/account/login" hx-target="#auth-error" hx-swap="outerHTML" class="space-y-4">`+
			`<input type="email" name="email" placeholder="Email" required autocomplete="email" `+inputClass+`>`+
			`<input type="password" name="password" placeholder="Password" required autocomplete="current-password" `+inputClass+`>`+
			`<p id="auth-error"></p>`+
			`<button type="submit" `+buttonCls+`>Sign In</button></form>`+
			`<p class="mt-6 text-center text-sm">Don't have an account? `+
			`<a href="/account/signup" hx-get="/account/signup" hx-target="#auth-card" hx-swap="outerHTML" `+linkClass+`>Sign up</a></p>`+
			`</div>`)
		return err
	})
}

// Signup is the sign-up card.
func Signup() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="auth-card" `+cardClass+`>`+
			`<h1 class="mb-6 text-2xl font-semibold">Create your account</h1>`+
			`<form hx-post="/account/signup" hx-target="#auth-error" hx-swap="outerHTML" class="space-y-4">`+
			`<input type="email" name="email" placeholder="Email" required autocomplete="email" `+inputClass+`>`+
			`<input type="password" name="password" placeholder="Password" required minlength="6" autocomplete="new-password" `+inputClass+`>`+
			`<input type="password" name="confirm_password" placeholder="Confirm password" required minlength="6" autocomplete="new-password" `+inputClass+`>`+
			`<p id="auth-error"></p>`+
			`<button type="submit" `+buttonCls+`>Create account</button></form>`+
			`<p class="mt-6 text-center text-sm">Already have an account? `+
			`<a href="/account/login" hx-get="/account/login" hx-target="#auth-card" hx-swap="outerHTML" `+linkClass+`>Sign in</a></p>`+
			`</div>`)
		return err
	})
}

// ErrorMsgAuth replaces the error line of the auth forms.
func ErrorMsgAuth(msg string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<p id="auth-error" class="text-sm text-red-600">%s</p>`, templ.EscapeString(msg))
		return err
	})
}

// CheckEmail replaces the sign-up card once the confirmation email is sent.
func CheckEmail(email string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div id="auth-card" `+cardClass+`>`+
			`<h1 class="mb-2 text-2xl font-semibold">Check your email</h1>`+
			`<p class="text-sm text-slate-600">We sent a confirmation link to <strong>%s</strong>. `+
			`Follow it to finish creating your account.</p></div>`,
			templ.EscapeString(email))
		return err
	})
}

// ErrorPage is shown when an email confirmation link could not be used.
func ErrorPage() templ.Component {
	return layout.Base("Error - ClaudeSpark", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div `+cardClass+`>`+
			`<h1 class="mb-2 text-2xl font-semibold">Sorry, something went wrong</h1>`+
			`<p class="mb-6 text-sm text-slate-600">The link may have expired or was already used.</p>`+
			`<a href="/account/login" `+linkClass+`>Back to sign in</a></div>`)
		return err
	}))
}
