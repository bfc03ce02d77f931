// Package model defines data structure.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Fixed bot texts shown by the chat view.
const (
	WelcomeText       = "👋 Hi! I'm your AI assistant (Claude). How can I help you today?"
	ErrorSentinelText = "❌ Error: Could not get a reply from Claude."
)

// Message is a single transcript entry. It is used for store rows, NATS
// payloads and the JSON read API.
//
// ID is assigned by the store once persisted. LocalID is the provisional
// identifier of a message that only exists in one view. Nonce ties the user
// message and the bot reply of one dispatch to their persisted copies.
type Message struct {
	ID        int64     `json:"id"`
	LocalID   int64     `json:"local_id,omitempty"`
	Nonce     string    `json:"nonce,omitempty"`
	ViewerID  uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Confirmed reports whether the message has a store-assigned identifier.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// IsBot mirrors the is_bot column of the messages table.
func (m Message) IsBot() bool {
	return m.Role == RoleBot
}

// Before orders messages by creation time, then by identifier. Confirmed
// messages sort before provisional ones created at the same instant.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	if m.Confirmed() != o.Confirmed() {
		return m.Confirmed()
	}
	if m.Confirmed() {
		return m.ID < o.ID
	}
	return m.LocalID < o.LocalID
}

// DisplayTime formats the creation time as HH:MM in loc.
func (m Message) DisplayTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return m.CreatedAt.In(loc).Format("15:04")
}

// ClientFrame is the JSON sent by the browser over the websocket. htmx's
// ws-send attaches the request HEADERS along with the form values.
type ClientFrame struct {
	Message string            `json:"message"`
	Headers map[string]string `json:"HEADERS"`
}
