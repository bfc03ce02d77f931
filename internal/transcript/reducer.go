// Package transcript keeps the ordered message log of one chat view
// consistent with the session store: an initial load, remote insert
// notifications, and optimistic local appends.
package transcript

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/model"
)

// Event is one of LoadCompleted, RemoteInsert or LocalAppend.
type Event interface {
	kind() string
}

// LoadCompleted carries the result of the initial fetch. Err is set when the
// fetch failed; the transcript then falls back to the welcome message.
type LoadCompleted struct {
	Messages []model.Message
	Err      error
	Now      time.Time
}

// RemoteInsert is an insert notification from the realtime feed. Delivery
// is at-least-once.
type RemoteInsert struct {
	Message model.Message
}

// LocalAppend is an optimistic entry originated by this view.
type LocalAppend struct {
	Message model.Message
}

func (LoadCompleted) kind() string { return "load" }
func (RemoteInsert) kind() string  { return "remote" }
func (LocalAppend) kind() string   { return "local" }

// State is an immutable snapshot of a transcript. Reduce never modifies the
// Messages slice of its input.
type State struct {
	ViewerID    uuid.UUID
	Messages    []model.Message
	NextLocalID int64
	Loaded      bool
}

// NewState returns an empty transcript for viewerID.
func NewState(viewerID uuid.UUID) State {
	return State{ViewerID: viewerID, NextLocalID: 1}
}

// Effect describes what an event did to the transcript.
type Effect string

const (
	EffectAppended   Effect = "appended"
	EffectReconciled Effect = "reconciled"
	EffectDuplicate  Effect = "duplicate"
	EffectForeign    Effect = "foreign"
	EffectSeeded     Effect = "seeded"
	EffectMerged     Effect = "merged"
)

// Reduce applies ev to s and returns the next state.
func Reduce(s State, ev Event) State {
	next, _ := apply(s, ev)
	return next
}

func apply(s State, ev Event) (State, Effect) {
	switch ev := ev.(type) {
	case LoadCompleted:
		return applyLoad(s, ev)
	case RemoteInsert:
		return applyRemote(s, ev.Message)
	case LocalAppend:
		return applyLocal(s, ev.Message)
	}
	return s, ""
}

func applyLoad(s State, ev LoadCompleted) (State, Effect) {
	next := s
	next.Loaded = true

	if ev.Err == nil {
		for _, m := range ev.Messages {
			next, _ = applyRemote(next, m)
		}
	}

	if len(next.Messages) > 0 {
		return next, EffectMerged
	}

	now := ev.Now
	if now.IsZero() {
		now = time.Now()
	}
	welcome := model.Message{
		LocalID:   next.NextLocalID,
		ViewerID:  s.ViewerID,
		Role:      model.RoleBot,
		Text:      model.WelcomeText,
		CreatedAt: now,
	}
	next.NextLocalID++
	next.Messages = []model.Message{welcome}

	return next, EffectSeeded
}

func applyRemote(s State, m model.Message) (State, Effect) {
	if s.ViewerID != uuid.Nil && m.ViewerID != s.ViewerID {
		return s, EffectForeign
	}

	// Unconfirmed remote messages carry no identity to deduplicate on.
	if !m.Confirmed() {
		return s, EffectForeign
	}

	m.LocalID = 0

	if slices.ContainsFunc(s.Messages, func(e model.Message) bool { return e.ID == m.ID }) {
		return s, EffectDuplicate
	}

	if m.Nonce != "" {
		i := slices.IndexFunc(s.Messages, func(e model.Message) bool {
			return !e.Confirmed() && e.Nonce == m.Nonce && e.Role == m.Role
		})
		if i >= 0 {
			msgs := slices.Delete(slices.Clone(s.Messages), i, i+1)
			next := s
			next.Messages = insertSorted(msgs, m)
			return next, EffectReconciled
		}
	}

	next := s
	next.Messages = insertSorted(slices.Clone(s.Messages), m)
	return next, EffectAppended
}

func applyLocal(s State, m model.Message) (State, Effect) {
	if m.Nonce != "" && slices.ContainsFunc(s.Messages, func(e model.Message) bool {
		return e.Confirmed() && e.Nonce == m.Nonce && e.Role == m.Role
	}) {
		return s, EffectDuplicate
	}

	m.ID = 0
	m.LocalID = s.NextLocalID
	m.ViewerID = s.ViewerID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if n := len(s.Messages); n > 0 && m.CreatedAt.Before(s.Messages[n-1].CreatedAt) {
		m.CreatedAt = s.Messages[n-1].CreatedAt
	}

	next := s
	next.NextLocalID++
	next.Messages = append(slices.Clone(s.Messages), m)
	return next, EffectAppended
}

// insertSorted places m after every entry that sorts before it. msgs must be
// owned by the caller.
func insertSorted(msgs []model.Message, m model.Message) []model.Message {
	i := len(msgs)
	for i > 0 && m.Before(msgs[i-1]) {
		i--
	}
	return slices.Insert(msgs, i, m)
}
