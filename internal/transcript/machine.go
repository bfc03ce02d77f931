package transcript

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/metrics"
	"github.com/johndosdos/claudespark/internal/model"
)

// ErrClosed is returned for events that arrive after the view was torn down.
var ErrClosed = errors.New("transcript: closed")

// Loader reads the persisted messages of a viewer, oldest first.
type Loader interface {
	ListMessages(ctx context.Context, viewerID uuid.UUID) ([]model.Message, error)
}

// Machine owns the transcript of one chat view. All mutations go through
// Reduce under a single lock, so optimistic and remote appends never lose
// each other's updates.
type Machine struct {
	viewerID uuid.UUID

	mu         sync.Mutex
	state      State
	closed     bool
	generation uint64

	// notifyMu keeps observers seeing snapshots in transition order.
	notifyMu  sync.Mutex
	observers []func([]model.Message)

	loader Loader
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger used for load failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New returns the transcript machine of viewerID.
func New(viewerID uuid.UUID, loader Loader, opts ...Option) *Machine {
	m := &Machine{
		viewerID: viewerID,
		state:    NewState(viewerID),
		loader:   loader,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ViewerID returns the owner of the transcript.
func (m *Machine) ViewerID() uuid.UUID {
	return m.viewerID
}

// OnChange registers fn to receive every new snapshot, in transition order.
// fn may read the machine but must not send it events.
func (m *Machine) OnChange(fn func([]model.Message)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Load fetches the viewer's persisted messages and merges them into the
// transcript. A fetch error is absorbed: the transcript falls back to the
// welcome message. The only error returned is ErrClosed.
func (m *Machine) Load(ctx context.Context) error {
	var (
		msgs []model.Message
		err  error
	)
	if m.loader == nil {
		err = errors.New("no loader configured")
	} else {
		msgs, err = m.loader.ListMessages(ctx, m.viewerID)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load transcript; showing welcome message",
			slog.String("viewer_id", m.viewerID.String()),
			slog.Any("error", err))
	}

	_, _, err = m.dispatch(LoadCompleted{Messages: msgs, Err: err, Now: m.now()})
	return err
}

// OnRemoteInsert appends msg unless an entry with the same confirmed ID is
// already present.
func (m *Machine) OnRemoteInsert(msg model.Message) error {
	_, _, err := m.dispatch(RemoteInsert{Message: msg})
	return err
}

// AppendLocal appends msg optimistically and returns it with its
// provisional ID assigned. If the persisted copy of msg (same nonce and role)
// already arrived through the feed, nothing is appended and the confirmed
// entry is returned.
func (m *Machine) AppendLocal(msg model.Message) (model.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	s, effect, err := m.dispatch(LocalAppend{Message: msg})
	if err != nil {
		return model.Message{}, err
	}
	if effect == EffectDuplicate {
		i := slices.IndexFunc(s.Messages, func(e model.Message) bool {
			return e.Confirmed() && e.Nonce == msg.Nonce && e.Role == msg.Role
		})
		return s.Messages[i], nil
	}
	return s.Messages[len(s.Messages)-1], nil
}

// Snapshot returns a copy of the current ordered transcript.
func (m *Machine) Snapshot() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Messages)
}

// Loaded reports whether the initial load has completed.
func (m *Machine) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Loaded
}

// Generation changes every time the machine is closed.
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Closed reports whether Close was called.
func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close discards the transcript. Later events return ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.generation++
	m.state = NewState(m.viewerID)
}

func (m *Machine) dispatch(ev Event) (State, Effect, error) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		metrics.TranscriptEvents.WithLabelValues(ev.kind(), "rejected").Inc()
		return State{}, "", ErrClosed
	}
	next, effect := apply(m.state, ev)
	m.state = next
	m.mu.Unlock()

	metrics.TranscriptEvents.WithLabelValues(ev.kind(), string(effect)).Inc()

	if effect != EffectDuplicate && effect != EffectForeign {
		for _, fn := range m.observers {
			fn(slices.Clone(next.Messages))
		}
	}

	return next, effect, nil
}
