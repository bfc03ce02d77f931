package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/a-h/templ"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/chat"
	"github.com/johndosdos/claudespark/internal/model"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Client is one hub subscription. Websocket clients also own the chat
// session of their view; SSE subscribers only read MessageCh.
type Client struct {
	ViewerID  uuid.UUID
	conn      *websocket.Conn
	Hub       *Hub
	MessageCh chan model.Message
	session   *chat.Session
}

func NewClient(conn *websocket.Conn, session *chat.Session) *Client {
	return &Client{
		ViewerID:  session.ViewerID,
		conn:      conn,
		MessageCh: make(chan model.Message, 64),
		session:   session,
	}
}

// NewSubscriber returns a client without a websocket connection.
func NewSubscriber(viewerID uuid.UUID) *Client {
	return &Client{
		ViewerID:  viewerID,
		MessageCh: make(chan model.Message, 64),
	}
}

// WriteMessage merges feed messages into the session and writes the
// rendered fragments to the outgoing websocket stream.
func (c *Client) WriteMessage(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.MessageCh:
			// We don't want to continue processing when the channel has already been
			// closed.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			c.session.Deliver(payload)

		case <-c.session.Updates():
			for _, content := range c.session.Fragments() {
				if err := c.write(ctx, content); err != nil {
					slog.WarnContext(ctx, "failed to write fragment",
						slog.String("viewer_id", c.ViewerID.String()),
						slog.Any("error", err))
					c.conn.Close(websocket.StatusInternalError, "write failed")
					return
				}
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.InfoContext(ctx, "ping failed; closing connection",
					slog.String("viewer_id", c.ViewerID.String()),
					slog.Any("error", err))
				c.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

func (c *Client) write(ctx context.Context, content templ.Component) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	w, err := c.conn.Writer(writeCtx, websocket.MessageText)
	if err != nil {
		return err
	}
	if err := content.Render(writeCtx, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
