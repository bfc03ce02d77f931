package handler

import (
	"log/slog"
	"net/http"

	"github.com/johndosdos/claudespark/internal/auth"
	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/internal/transcript"
)

// ServeMessages returns the signed-in viewer's persisted messages, oldest
// first.
func ServeMessages(store transcript.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		viewerID, err := auth.GetUserFromContext(ctx)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		msgs, err := store.ListMessages(ctx, viewerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "failed to load messages from store",
				slog.String("viewer_id", viewerID.String()),
				slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if msgs == nil {
			msgs = []model.Message{}
		}

		writeJSON(w, http.StatusOK, msgs)
	}
}
