package reply

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/claudespark/internal/model"
)

// ErrEmptyMessage is returned for input that is blank after sanitizing.
var ErrEmptyMessage = errors.New("reply: message is empty")

type sanitizer interface {
	Sanitize(s string) string
}

// Store persists messages and assigns their IDs.
type Store interface {
	InsertMessage(ctx context.Context, msg model.Message) (model.Message, error)
}

// Publisher notifies open sessions of persisted messages.
type Publisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// Service answers one user message with one bot reply. Both messages are
// persisted and published; failing to do so is logged and does not fail the
// reply.
type Service struct {
	provider  Provider
	store     Store
	feed      Publisher
	sanitizer sanitizer
	now       func() time.Time
	logger    *slog.Logger
}

// NewService returns a Service. store and feed may be nil.
func NewService(provider Provider, store Store, feed Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:  provider,
		store:     store,
		feed:      feed,
		sanitizer: bluemonday.StrictPolicy(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Reply records text as a message of viewerID and returns the bot's answer.
func (s *Service) Reply(ctx context.Context, viewerID uuid.UUID, text, nonce string) (string, error) {
	// Strip markup from incoming messages. Entities are decoded again since
	// the views escape on render.
	text = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
	if text == "" {
		return "", ErrEmptyMessage
	}

	s.record(ctx, model.Message{
		ViewerID:  viewerID,
		Nonce:     nonce,
		Role:      model.RoleUser,
		Text:      text,
		CreatedAt: s.now(),
	})

	reply, err := Collect(s.provider.Chat(ctx, text))
	if err != nil {
		return "", fmt.Errorf("reply: generate: %w", err)
	}

	s.record(ctx, model.Message{
		ViewerID:  viewerID,
		Nonce:     nonce,
		Role:      model.RoleBot,
		Text:      reply,
		CreatedAt: s.now(),
	})

	return reply, nil
}

func (s *Service) record(ctx context.Context, msg model.Message) {
	if s.store == nil {
		return
	}

	saved, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store message",
			slog.String("viewer_id", msg.ViewerID.String()),
			slog.String("role", string(msg.Role)),
			slog.Any("error", err))
		return
	}

	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, saved); err != nil {
		s.logger.WarnContext(ctx, "failed to publish message",
			slog.Int64("message_id", saved.ID),
			slog.Any("error", err))
	}
}
