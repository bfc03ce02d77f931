package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/chat"
	ws "github.com/johndosdos/claudespark/internal/websocket"
)

// SessionFactory builds the chat session of a new view.
type SessionFactory func(viewerID uuid.UUID, accessToken string) *chat.Session

// ServeWs upgrades the connection and runs the chat view over it until the
// browser goes away.
func ServeWs(h *ws.Hub, newSession SessionFactory, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserFromContext(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			slog.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
			return
		}

		session := newSession(userID, auth.GetAccessTokenFromContext(r.Context()))
		// Runs last: in-flight replies see a cancelled context, then the
		// transcript is discarded.
		defer session.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Subscribe before loading so inserts made during the load are kept.
		c := ws.NewClient(conn, session)
		if !h.Add(c) {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}

		if err := session.Load(ctx); err != nil {
			slog.WarnContext(ctx, "failed to load transcript", slog.Any("error", err))
		}

		slog.InfoContext(ctx, "chat view opened", slog.String("viewer_id", userID.String()))

		// We block on c.ReadMessage() because the request context will be canceled as soon
		// we return from the ServeWs() handler.
		go c.WriteMessage(ctx)
		c.ReadMessage(ctx)
	}
}
