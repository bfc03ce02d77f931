package chat

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/johndosdos/claudespark/internal/dispatch"
	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/internal/reply"
)

type loaderFunc func(ctx context.Context, viewerID uuid.UUID) ([]model.Message, error)

func (f loaderFunc) ListMessages(ctx context.Context, viewerID uuid.UUID) ([]model.Message, error) {
	return f(ctx, viewerID)
}

type generatorFunc func(ctx context.Context, req dispatch.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req dispatch.Request) (string, error) {
	return f(ctx, req)
}

func renderAll(t *testing.T, s *Session) string {
	t.Helper()
	var buf bytes.Buffer
	for _, c := range s.Fragments() {
		require.NoError(t, c.Render(context.Background(), &buf))
	}
	return buf.String()
}

func emptyLoader() loaderFunc {
	return func(context.Context, uuid.UUID) ([]model.Message, error) { return nil, nil }
}

func TestSessionLoadShowsWelcome(t *testing.T) {
	s := NewSession(uuid.New(), Config{Loader: emptyLoader(), Generator: generatorFunc(nil)})
	defer s.Close()

	require.NoError(t, s.Load(context.Background()))

	select {
	case <-s.Updates():
	default:
		t.Fatal("expected an update after load")
	}

	html := renderAll(t, s)
	assert.Contains(t, html, `id="messages"`)
	assert.Contains(t, html, "How can I help you today?")

	assert.Empty(t, s.Fragments(), "fragments are cleared once taken")
}

func TestSessionLoadFailureShowsWelcome(t *testing.T) {
	loader := loaderFunc(func(context.Context, uuid.UUID) ([]model.Message, error) {
		return nil, errors.New("db down")
	})
	s := NewSession(uuid.New(), Config{Loader: loader})
	defer s.Close()

	require.NoError(t, s.Load(context.Background()))
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, model.WelcomeText, snap[0].Text)
}

func TestSessionSubmit(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, req dispatch.Request) (string, error) {
		return "echo: " + req.Text, nil
	})
	s := NewSession(uuid.New(), Config{Loader: emptyLoader(), Generator: gen})
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))
	s.Fragments()

	s.Submit(context.Background(), "hi")

	require.Eventually(t, func() bool {
		return len(s.Snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "hi", snap[1].Text)
	assert.Equal(t, model.RoleUser, snap[1].Role)
	assert.Equal(t, "echo: hi", snap[2].Text)
	assert.Equal(t, snap[1].Nonce, snap[2].Nonce)

	html := renderAll(t, s)
	assert.Contains(t, html, "echo: hi")
	assert.Contains(t, html, `id="composer"`)
}

func TestSessionDeliverReconciles(t *testing.T) {
	viewer := uuid.New()
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, _ dispatch.Request) (string, error) {
		<-release
		return "pong", nil
	})
	s := NewSession(viewer, Config{Loader: emptyLoader(), Generator: gen})
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))

	s.Submit(context.Background(), "ping")
	require.Eventually(t, func() bool { return len(s.Snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	local := s.Snapshot()[1]
	require.False(t, local.Confirmed())

	persisted := local
	persisted.ID = 42
	persisted.LocalID = 0
	persisted.ViewerID = viewer
	s.Deliver(persisted)
	s.Deliver(persisted)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(42), snap[1].ID)

	close(release)
	require.Eventually(t, func() bool { return len(s.Snapshot()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestSessionDeliverIgnoresOtherViewers(t *testing.T) {
	s := NewSession(uuid.New(), Config{Loader: emptyLoader()})
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))

	s.Deliver(model.Message{ID: 9, ViewerID: uuid.New(), Role: model.RoleUser, Text: "x", CreatedAt: time.Now()})
	assert.Len(t, s.Snapshot(), 1)
}

func TestSessionRateLimitWarning(t *testing.T) {
	gen := generatorFunc(func(context.Context, dispatch.Request) (string, error) { return "ok", nil })
	s := NewSession(uuid.New(), Config{
		Loader:    emptyLoader(),
		Generator: gen,
		Limiter:   rate.NewLimiter(rate.Every(time.Hour), 1),
	})
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))

	s.Submit(context.Background(), "one")
	require.Eventually(t, func() bool { return len(s.Snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	s.Fragments()

	s.Submit(context.Background(), "two")

	var html strings.Builder
	require.Eventually(t, func() bool {
		for _, c := range s.Fragments() {
			_ = c.Render(context.Background(), &html)
		}
		return strings.Contains(html.String(), "sending messages too quickly")
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, s.Snapshot(), 3)
}

func TestSessionCloseDiscardsReply(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(context.Context, dispatch.Request) (string, error) {
		<-release
		return "late", nil
	})
	s := NewSession(uuid.New(), Config{Loader: emptyLoader(), Generator: gen})
	require.NoError(t, s.Load(context.Background()))

	s.Submit(context.Background(), "hi")
	require.Eventually(t, func() bool { return len(s.Snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	s.Close()

	assert.Empty(t, s.Snapshot())
}

type cannedProvider string

func (p cannedProvider) Chat(context.Context, string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield(string(p), nil)
	}
}

type memStore struct {
	mu     sync.Mutex
	nextID int64
}

func (m *memStore) InsertMessage(_ context.Context, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	return msg, nil
}

// sessionFeed publishes straight back into one session, as the hub does.
type sessionFeed struct {
	session *Session
}

func (f *sessionFeed) Publish(_ context.Context, msg model.Message) error {
	f.session.Deliver(msg)
	return nil
}

func heldCount(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

func TestSessionFeedReplyWaitsForReveal(t *testing.T) {
	viewer := uuid.New()
	feed := &sessionFeed{}
	svc := reply.NewService(cannedProvider("hello"), &memStore{}, feed, nil)

	s := NewSession(viewer, Config{
		Loader:      emptyLoader(),
		Generator:   reply.Local{Service: svc},
		RevealDelay: 300 * time.Millisecond,
	})
	feed.session = s
	defer s.Close()
	require.NoError(t, s.Load(context.Background()))

	s.Submit(context.Background(), "hi")

	// The persisted reply is on the feed while the indicator is still up.
	require.Eventually(t, func() bool { return heldCount(s) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, dispatch.State{InFlight: true, Typing: true}, s.dispatcher.State())
	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "hi", snap[1].Text)
	assert.True(t, snap[1].Confirmed(), "user message is reconciled right away")

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap) == 3 && snap[2].Confirmed()
	}, 2*time.Second, 5*time.Millisecond)

	snap = s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "hello", snap[2].Text)
	assert.Equal(t, model.RoleBot, snap[2].Role)
	assert.Zero(t, heldCount(s))
	assert.Equal(t, dispatch.State{}, s.dispatcher.State())
}
