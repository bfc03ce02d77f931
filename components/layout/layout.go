// Package layout holds the page shell shared by every full page.
package layout

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Base wraps body in the html document with the htmx scripts loaded.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title>`+
			`<script src="https://unpkg.com/htmx.org@2.0.4"></script>`+
			`<script src="https://unpkg.com/htmx-ext-ws@2.0.2/ws.js"></script>`+
			`<script src="https://cdn.tailwindcss.com"></script>`+
			`<link rel="stylesheet" href="/static/app.css">`+
			`</head><body class="min-h-screen bg-slate-50 text-slate-900">`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
