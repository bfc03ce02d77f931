// Package store persists chat messages. Postgres is the production backend;
// Bolt keeps everything in a local file for development.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/model"
)

// MessageStore is the message table of the session store.
type MessageStore interface {
	// ListMessages returns the messages of viewerID ordered by creation
	// time, oldest first.
	ListMessages(ctx context.Context, viewerID uuid.UUID) ([]model.Message, error)
	// InsertMessage persists msg and returns it with its ID assigned.
	InsertMessage(ctx context.Context, msg model.Message) (model.Message, error)
	Close() error
}
