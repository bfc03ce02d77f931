// Package chat ties one chat view together: the transcript machine, the
// dispatcher and the fragments the view pushes to the browser.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	viewChat "github.com/johndosdos/claudespark/components/chat"
	"github.com/johndosdos/claudespark/internal/dispatch"
	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/internal/transcript"
)

// Config holds the collaborators of a Session.
type Config struct {
	Loader      transcript.Loader
	Generator   dispatch.ReplyGenerator
	AccessToken string
	RevealDelay time.Duration
	// Limiter is per session; nil disables rate limiting.
	Limiter  *rate.Limiter
	Location *time.Location
	Logger   *slog.Logger
}

// Session is the server side of one open chat view. State changes are
// coalesced: Updates signals that Fragments has something new to render.
type Session struct {
	ViewerID uuid.UUID

	machine    *transcript.Machine
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter
	loc        *time.Location
	logger     *slog.Logger

	mu              sync.Mutex
	messages        []model.Message
	transcriptDirty bool
	state           dispatch.State
	stateDirty      bool
	warning         int
	warned          bool
	held            []model.Message

	updates chan struct{}
	wg      sync.WaitGroup
}

// NewSession returns the session of viewerID. Nothing is loaded until Load.
func NewSession(viewerID uuid.UUID, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Session{
		ViewerID: viewerID,
		limiter:  cfg.Limiter,
		loc:      loc,
		logger:   logger.With(slog.String("viewer_id", viewerID.String())),
		updates:  make(chan struct{}, 1),
	}

	s.machine = transcript.New(viewerID, cfg.Loader, transcript.WithLogger(s.logger))
	opts := []dispatch.Option{
		dispatch.WithRevealDelay(cfg.RevealDelay),
		dispatch.WithAccessToken(cfg.AccessToken),
		dispatch.WithLogger(s.logger),
	}
	if cfg.Limiter != nil {
		opts = append(opts, dispatch.WithLimiter(cfg.Limiter))
	}
	s.dispatcher = dispatch.New(s.machine, cfg.Generator, opts...)

	s.machine.OnChange(s.onTranscript)
	s.dispatcher.OnChange(s.onState)

	return s
}

// Load reads the persisted transcript. Call it after the session is
// subscribed to the feed so no insert falls between the two.
func (s *Session) Load(ctx context.Context) error {
	return s.machine.Load(ctx)
}

// Deliver merges a message from the feed. The persisted reply to the send
// in flight is held back until the dispatcher has revealed it, so the feed
// cannot cut the typing indicator short.
func (s *Session) Deliver(msg model.Message) {
	s.mu.Lock()
	if p, ok := s.dispatcher.Pending(); ok && msg.IsBot() && msg.Nonce != "" && msg.Nonce == p.Nonce {
		s.held = append(s.held, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.apply(msg)
}

func (s *Session) apply(msg model.Message) {
	if err := s.machine.OnRemoteInsert(msg); err != nil && !errors.Is(err, transcript.ErrClosed) {
		s.logger.Warn("failed to apply remote insert", slog.Any("error", err))
	}
}

// release applies the held replies whose send has settled.
func (s *Session) release() {
	s.mu.Lock()
	if len(s.held) == 0 {
		s.mu.Unlock()
		return
	}
	p, inFlight := s.dispatcher.Pending()
	var ready, keep []model.Message
	for _, m := range s.held {
		if inFlight && m.Nonce == p.Nonce {
			keep = append(keep, m)
			continue
		}
		ready = append(ready, m)
	}
	s.held = keep
	s.mu.Unlock()

	for _, m := range ready {
		s.apply(m)
	}
}

// Submit dispatches text in the background. Rejections show up in the
// rendered state, not as errors.
func (s *Session) Submit(ctx context.Context, text string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.dispatcher.Submit(ctx, text)
		switch {
		case err == nil:
			s.clearWarning()
		case errors.Is(err, dispatch.ErrRateLimited):
			s.warn()
		case errors.Is(err, dispatch.ErrEmptyMessage),
			errors.Is(err, dispatch.ErrInFlight),
			errors.Is(err, transcript.ErrClosed):
			s.logger.DebugContext(ctx, "submit ignored", slog.Any("reason", err))
		default:
			s.logger.ErrorContext(ctx, "submit failed", slog.Any("error", err))
		}
	}()
}

// Updates receives a value whenever Fragments has changes to render.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Fragments returns the components for every change since the last call.
func (s *Session) Fragments() []templ.Component {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []templ.Component
	if s.transcriptDirty {
		out = append(out, viewChat.Transcript(s.messages, s.loc))
		s.transcriptDirty = false
	}
	if s.stateDirty {
		out = append(out, viewChat.TypingIndicator(s.state.Typing), viewChat.ChatInput(s.state.InFlight))
		s.stateDirty = false
	}
	if s.warned {
		if s.warning > 0 {
			out = append(out, viewChat.RateLimitWarning(s.warning))
		} else {
			out = append(out, viewChat.ClearNotice())
		}
		s.warned = false
	}
	return out
}

// Snapshot returns the current transcript.
func (s *Session) Snapshot() []model.Message {
	return s.machine.Snapshot()
}

// Close tears the view down. Replies still in flight are discarded. ctx of
// pending submits should be cancelled before calling Close.
func (s *Session) Close() {
	s.machine.Close()
	s.wg.Wait()
}

func (s *Session) onTranscript(msgs []model.Message) {
	s.mu.Lock()
	s.messages = msgs
	s.transcriptDirty = true
	s.mu.Unlock()
	s.signal()
}

func (s *Session) onState(st dispatch.State) {
	s.mu.Lock()
	s.state = st
	s.stateDirty = true
	s.mu.Unlock()
	s.signal()
	s.release()
}

func (s *Session) warn() {
	seconds := 1
	if s.limiter != nil {
		r := s.limiter.Reserve()
		seconds = max(1, int(math.Ceil(r.Delay().Seconds())))
		r.Cancel()
	}

	s.mu.Lock()
	s.warning = seconds
	s.warned = true
	s.mu.Unlock()
	s.signal()
}

func (s *Session) clearWarning() {
	s.mu.Lock()
	if s.warning == 0 {
		s.mu.Unlock()
		return
	}
	s.warning = 0
	s.warned = true
	s.mu.Unlock()
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
