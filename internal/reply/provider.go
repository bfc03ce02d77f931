// Package reply generates bot replies. Service is the server side of the
// /api/chat endpoint: it persists and publishes both sides of an exchange and
// asks a language model Provider for the answer. Client and Local adapt the
// endpoint to dispatch.ReplyGenerator.
package reply

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrEmptyReply is returned when a provider finishes without producing text.
var ErrEmptyReply = errors.New("reply: provider returned an empty reply")

// Provider is a language model backend. Chat yields the reply in chunks; a
// non-nil error ends the sequence.
type Provider interface {
	Chat(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Collect drains seq into a single reply.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk)
	}

	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
