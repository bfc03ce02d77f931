package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/johndosdos/claudespark/internal/model"
)

// ReadMessage reads composer submissions from the websocket stream until
// the connection closes, then unregisters the client.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.Hub.Remove(c)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "websocket read failed",
					slog.String("viewer_id", c.ViewerID.String()),
					slog.Any("error", err))
			}
			return
		}

		// The app only supports text format for now...
		if msgType != websocket.MessageText {
			continue
		}

		// htmx's ws-send attribute also sends a HEADERS field along with the
		// form values.
		var frame model.ClientFrame
		if err := json.Unmarshal(p, &frame); err != nil {
			slog.WarnContext(ctx, "failed to process payload from client",
				slog.String("viewer_id", c.ViewerID.String()),
				slog.Any("error", err))
			continue
		}

		c.session.Submit(ctx, frame.Message)
	}
}
