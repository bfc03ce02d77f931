package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/reply"
)

const maxChatBody = 64 << 10

// Replier answers a user message.
type Replier interface {
	Reply(ctx context.Context, viewerID uuid.UUID, text, nonce string) (string, error)
}

// ServeAPIChat is POST /api/chat: {"message", "nonce"?} in, {"reply"} out.
// A blank or malformed body is 400 and a generator failure is 502.
func ServeAPIChat(replier Replier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		viewerID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		var req reply.ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
			return
		}

		text, err := replier.Reply(ctx, viewerID, req.Message, req.Nonce)
		switch {
		case errors.Is(err, reply.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
			return
		case err != nil:
			slog.ErrorContext(ctx, "reply failed",
				slog.String("viewer_id", viewerID.String()),
				slog.Any("error", err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not get a reply"})
			return
		}

		writeJSON(w, http.StatusOK, reply.ChatResponse{Reply: text})
	}
}
