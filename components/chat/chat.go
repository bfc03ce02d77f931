// Package chat renders the chat page and the fragments pushed over the
// websocket. Fragments carry hx-swap-oob so htmx swaps them by id.
package chat

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/johndosdos/claudespark/components/layout"
	"github.com/johndosdos/claudespark/internal/model"
)

// ChatLayout is the signed-in chat page.
func ChatLayout(email string) templ.Component {
	return layout.Base("ClaudeSpark", templ.Join(Header(email), ChatWindow()))
}

// Header shows the app name and the sign-out button. Signing out asks for
// confirmation first.
func Header(email string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<header class="flex items-center justify-between border-b bg-white px-4 py-3">`+
			`<h1 class="text-lg font-semibold">✨ ClaudeSpark</h1>`+
			`<div class="flex items-center gap-3"><span class="text-sm text-slate-500">%s</span>`+
			`<button type="button" hx-post="/account/logout" hx-confirm="Are you sure you want to sign out?" `+
			`class="rounded bg-slate-200 px-3 py-1 text-sm hover:bg-slate-300">Sign Out</button></div></header>`,
			templ.EscapeString(email))
		return err
	})
}

// ChatWindow opens the websocket and holds the transcript, the typing
// indicator and the composer. The transcript is filled by the first
// fragment the server pushes.
func ChatWindow() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<main hx-ext="ws" ws-connect="/ws" class="mx-auto flex h-[calc(100vh-57px)] max-w-3xl flex-col">`+
			`<div id="messages" class="flex-1 space-y-3 overflow-y-auto p-4"></div>`); err != nil {
			return err
		}
		for _, c := range []templ.Component{TypingIndicator(false), notice(""), ChatInput(false)} {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</main>`)
		return err
	})
}

// Transcript replaces the content of the message list.
func Transcript(msgs []model.Message, loc *time.Location) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div id="messages" hx-swap-oob="innerHTML">`); err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := Bubble(msg, loc).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// Bubble renders msg on the side of its author.
func Bubble(msg model.Message, loc *time.Location) templ.Component {
	if msg.IsBot() {
		return ReceiverBubble(msg, loc)
	}
	return SenderBubble(msg, loc)
}

// SenderBubble is a message typed by the viewer.
func SenderBubble(msg model.Message, loc *time.Location) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		class := "flex justify-end"
		if !msg.Confirmed() {
			class += " opacity-80"
		}
		_, err := fmt.Fprintf(w, `<div class="%s" id="%s">`+
			`<div class="max-w-[75%%] rounded-2xl rounded-br-sm bg-indigo-600 px-4 py-2 text-white">`+
			`<p class="whitespace-pre-wrap break-words">%s</p>`+
			`<time class="mt-1 block text-right text-xs text-indigo-200">%s</time></div></div>`,
			class, bubbleID(msg), templ.EscapeString(msg.Text), msg.DisplayTime(loc))
		return err
	})
}

// ReceiverBubble is a bot message. Its text is rendered as markdown.
func ReceiverBubble(msg model.Message, loc *time.Location) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="flex justify-start" id="%s">`+
			`<div class="max-w-[75%%] rounded-2xl rounded-bl-sm bg-white px-4 py-2 shadow">`+
			`<div class="prose prose-sm break-words">%s</div>`+
			`<time class="mt-1 block text-xs text-slate-400">%s</time></div></div>`,
			bubbleID(msg), RenderMarkdown(msg.Text), msg.DisplayTime(loc))
		return err
	})
}

func bubbleID(msg model.Message) string {
	if msg.Confirmed() {
		return fmt.Sprintf("msg-%d", msg.ID)
	}
	return fmt.Sprintf("local-%d", msg.LocalID)
}

// TypingIndicator shows the three dots while a reply is pending.
func TypingIndicator(on bool) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		inner := ""
		if on {
			inner = `<div class="flex items-center gap-1 px-4 py-2 text-sm text-slate-500" aria-label="Claude is typing">` +
				`<span class="animate-bounce">•</span><span class="animate-bounce [animation-delay:150ms]">•</span>` +
				`<span class="animate-bounce [animation-delay:300ms]">•</span></div>`
		}
		_, err := io.WriteString(w, `<div id="typing" hx-swap-oob="true">`+inner+`</div>`)
		return err
	})
}

// ChatInput is the composer. It is disabled while a send is in flight.
func ChatInput(inFlight bool) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		disabled, label := "", "Send"
		if inFlight {
			disabled, label = " disabled", "Sending"
		}
		_, err := fmt.Fprintf(w, `<form id="composer" ws-send hx-swap-oob="true" class="flex gap-2 border-t bg-white p-3">`+
			`<input type="text" name="message" placeholder="Type a message..." autocomplete="off" required%s `+
			`class="flex-1 rounded border px-3 py-2 focus:outline-none focus:ring">`+
			`<button type="submit"%s class="rounded bg-indigo-600 px-4 py-2 text-white disabled:opacity-50">%s</button></form>`,
			disabled, disabled, label)
		return err
	})
}

// RateLimitWarning tells the viewer to slow down for the given seconds.
func RateLimitWarning(seconds int) templ.Component {
	return notice(fmt.Sprintf("You're sending messages too quickly. Try again in %d seconds.", seconds))
}

// ClearNotice removes a shown warning.
func ClearNotice() templ.Component {
	return notice("")
}

func notice(text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		inner := ""
		if text != "" {
			inner = `<p class="px-4 py-1 text-center text-sm text-amber-700">` + templ.EscapeString(text) + `</p>`
		}
		_, err := io.WriteString(w, `<div id="notice" hx-swap-oob="true">`+inner+`</div>`)
		return err
	})
}
