// Package worker connects the message feed to the websocket hub.
package worker

import (
	"log/slog"

	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/internal/websocket"
)

// WorkerHub returns a feed handler that forwards every insert to hub.
func WorkerHub(hub *websocket.Hub) func(model.Message) {
	return func(payload model.Message) {
		if !hub.Deliver(payload) {
			slog.Debug("hub stopped; dropping feed message",
				slog.Int64("message_id", payload.ID))
		}
	}
}
