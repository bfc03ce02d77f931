package chat

import (
	"bytes"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	// Bot replies are model output; only user-generated-content markup
	// survives.
	ugc = bluemonday.UGCPolicy()
)

// RenderMarkdown converts a bot reply to sanitized HTML. Text that fails to
// convert is shown escaped.
func RenderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return templ.EscapeString(text)
	}
	return ugc.Sanitize(buf.String())
}
