package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/johndosdos/claudespark/internal/metrics"
	"github.com/johndosdos/claudespark/internal/model"
)

// Local is an in-process Feed for running without NATS. Handlers are called
// synchronously from Publish.
type Local struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(model.Message)
}

func NewLocal() *Local {
	return &Local{handlers: make(map[int]func(model.Message))}
}

func (l *Local) Publish(_ context.Context, msg model.Message) error {
	if !msg.Confirmed() {
		metrics.FeedPublishes.WithLabelValues("error").Inc()
		return fmt.Errorf("refusing to publish unpersisted message")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		h(msg)
	}
	metrics.FeedPublishes.WithLabelValues("ok").Inc()
	return nil
}

func (l *Local) Subscribe(ctx context.Context, handler func(model.Message)) error {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()

	return nil
}
