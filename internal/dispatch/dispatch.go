// Package dispatch implements the chat composer: it decides when input is
// sendable, appends the optimistic user entry, calls the reply generator and
// reconciles the transcript once the call resolves or fails.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johndosdos/claudespark/internal/metrics"
	"github.com/johndosdos/claudespark/internal/model"
	"github.com/johndosdos/claudespark/internal/transcript"
)

var (
	ErrEmptyMessage = errors.New("dispatch: message is empty")
	ErrInFlight     = errors.New("dispatch: a send is already in flight")
	ErrRateLimited  = errors.New("dispatch: too many messages")
)

// Request is one call to the reply generator.
type Request struct {
	ViewerID    uuid.UUID
	Text        string
	Nonce       string
	AccessToken string
}

// ReplyGenerator turns a user utterance into a bot reply.
type ReplyGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Transcript is the part of transcript.Machine the dispatcher writes to.
type Transcript interface {
	ViewerID() uuid.UUID
	AppendLocal(msg model.Message) (model.Message, error)
	Closed() bool
}

// Status of a PendingSend.
type Status string

const (
	StatusInFlight  Status = "in_flight"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// PendingSend is the in-flight dispatch.
type PendingSend struct {
	LocalID int64
	Nonce   string
	Text    string
	Status  Status
}

// State is what the presentation layer needs from the composer.
type State struct {
	InFlight bool
	Typing   bool
}

// Dispatcher serializes sends for one chat view: at most one reply call is
// outstanding at a time.
type Dispatcher struct {
	transcript Transcript
	generator  ReplyGenerator

	mu        sync.Mutex
	pending   *PendingSend
	typing    bool
	observers []func(State)

	revealDelay time.Duration
	accessToken string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRevealDelay keeps the typing indicator up for d after the reply
// arrives, before the reply is shown.
func WithRevealDelay(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.revealDelay = d }
}

// WithAccessToken forwards the viewer's access token to the generator.
func WithAccessToken(token string) Option {
	return func(disp *Dispatcher) { disp.accessToken = token }
}

// WithLimiter rejects submissions the limiter does not allow.
func WithLimiter(l *rate.Limiter) Option {
	return func(disp *Dispatcher) { disp.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.logger = l }
}

// New returns a dispatcher appending to t and calling gen.
func New(t Transcript, gen ReplyGenerator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transcript: t,
		generator:  gen,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnChange registers fn to receive composer state changes.
func (d *Dispatcher) OnChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// State returns the current composer state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{InFlight: d.pending != nil, Typing: d.typing}
}

// Pending returns a copy of the in-flight send, if any.
func (d *Dispatcher) Pending() (PendingSend, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return PendingSend{}, false
	}
	return *d.pending, true
}

// Submit sends text to the reply generator and blocks until the outcome is
// in the transcript. Empty input and input submitted while another send is
// in flight are rejected without touching the transcript. Generator
// failures are absorbed into an error message in the transcript and are
// not returned. If the view is torn down before the reply arrives, the
// result is discarded.
func (d *Dispatcher) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		metrics.Dispatches.WithLabelValues("rejected_empty").Inc()
		return ErrEmptyMessage
	}

	d.mu.Lock()
	if d.pending != nil {
		d.mu.Unlock()
		metrics.Dispatches.WithLabelValues("rejected_in_flight").Inc()
		return ErrInFlight
	}
	if d.limiter != nil && !d.limiter.Allow() {
		d.mu.Unlock()
		metrics.Dispatches.WithLabelValues("rejected_rate").Inc()
		return ErrRateLimited
	}
	pending := &PendingSend{
		Nonce:  uuid.NewString(),
		Text:   text,
		Status: StatusInFlight,
	}
	d.pending = pending
	d.mu.Unlock()

	userMsg, err := d.transcript.AppendLocal(model.Message{
		Nonce: pending.Nonce,
		Role:  model.RoleUser,
		Text:  text,
	})
	if err != nil {
		d.settle(pending, StatusFailed, false)
		return err
	}

	d.mu.Lock()
	pending.LocalID = userMsg.LocalID
	d.typing = true
	d.mu.Unlock()
	d.notify()

	start := time.Now()
	reply, genErr := d.generator.Generate(ctx, Request{
		ViewerID:    d.transcript.ViewerID(),
		Text:        text,
		Nonce:       pending.Nonce,
		AccessToken: d.accessToken,
	})
	metrics.ReplyLatency.Observe(time.Since(start).Seconds())

	d.wait(ctx)

	botMsg := model.Message{Role: model.RoleBot, Nonce: pending.Nonce, Text: reply}
	status := StatusSucceeded
	if genErr != nil {
		d.logger.WarnContext(ctx, "reply generator failed",
			slog.String("viewer_id", d.transcript.ViewerID().String()),
			slog.String("nonce", pending.Nonce),
			slog.Any("error", genErr))
		botMsg = model.Message{Role: model.RoleBot, Text: model.ErrorSentinelText}
		status = StatusFailed
	}

	if d.transcript.Closed() {
		d.settle(pending, status, false)
		metrics.Dispatches.WithLabelValues("discarded").Inc()
		return nil
	}

	// The reply lands before the send is released so a new submission can
	// never be appended ahead of it.
	if _, err := d.transcript.AppendLocal(botMsg); err != nil {
		if errors.Is(err, transcript.ErrClosed) {
			d.settle(pending, status, false)
			metrics.Dispatches.WithLabelValues("discarded").Inc()
			return nil
		}
		d.settle(pending, StatusFailed, true)
		return err
	}
	d.settle(pending, status, true)

	metrics.Dispatches.WithLabelValues(string(status)).Inc()
	return nil
}

// settle ends the in-flight send.
func (d *Dispatcher) settle(p *PendingSend, status Status, notify bool) {
	d.mu.Lock()
	p.Status = status
	if d.pending == p {
		d.pending = nil
	}
	d.typing = false
	d.mu.Unlock()

	if notify {
		d.notify()
	}
}

func (d *Dispatcher) wait(ctx context.Context) {
	if d.revealDelay <= 0 {
		return
	}
	timer := time.NewTimer(d.revealDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) notify() {
	d.mu.Lock()
	s := State{InFlight: d.pending != nil, Typing: d.typing}
	observers := d.observers
	d.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}
