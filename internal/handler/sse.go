package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/model"
	ws "github.com/johndosdos/claudespark/internal/websocket"
)

// StreamSSE streams insert notifications of the signed-in viewer as
// "insert" events carrying the message JSON.
func StreamSSE(hub *ws.Hub, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		c := ws.NewSubscriber(userID)
		if !hub.Add(c) {
			http.Error(w, "Service unavailable.", http.StatusServiceUnavailable)
			return
		}
		defer hub.Remove(c)

		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			slog.WarnContext(ctx, "streaming unsupported", slog.Any("error", err))
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-c.MessageCh:
				if !ok {
					return
				}

				ev, err := insertEvent(message)
				if err != nil {
					slog.ErrorContext(ctx, "failed to encode message", slog.Any("error", err))
					continue
				}
				if err := writeEvent(rc, w, ev); err != nil {
					slog.InfoContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
					return
				}

			case <-ticker.C:
				ping := &sse.Message{}
				ping.AppendComment("keepalive")
				if err := writeEvent(rc, w, ping); err != nil {
					slog.InfoContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}
}

// insertEvent frames a persisted message as an "insert" event.
func insertEvent(message model.Message) (*sse.Message, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	ev := &sse.Message{
		ID:   sse.ID(strconv.FormatInt(message.ID, 10)),
		Type: sse.Type("insert"),
	}
	ev.AppendData(string(data))
	return ev, nil
}

func writeEvent(rc *http.ResponseController, w io.Writer, ev *sse.Message) error {
	if _, err := ev.WriteTo(w); err != nil {
		return err
	}
	return rc.Flush()
}
