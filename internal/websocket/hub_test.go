package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/johndosdos/claudespark/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, cancel
}

func receive(t *testing.T, c *Client) (model.Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.MessageCh:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return model.Message{}, false
	}
}

func TestHubRoutesByViewer(t *testing.T) {
	h, _ := startHub(t)

	viewer := uuid.New()
	a, b := NewSubscriber(viewer), NewSubscriber(viewer)
	other := NewSubscriber(uuid.New())
	for _, c := range []*Client{a, b, other} {
		if !h.Add(c) {
			t.Fatal("Add() = false on a running hub")
		}
		if c.Hub != h {
			t.Fatal("client hub not set")
		}
	}

	msg := model.Message{ID: 1, ViewerID: viewer, Role: model.RoleUser, Text: "hi"}
	if !h.Deliver(msg) {
		t.Fatal("Deliver() = false on a running hub")
	}

	for _, c := range []*Client{a, b} {
		got, ok := receive(t, c)
		if !ok || got.ID != msg.ID {
			t.Errorf("got (%+v, %v), want message %d", got, ok, msg.ID)
		}
	}

	select {
	case got := <-other.MessageCh:
		t.Errorf("other viewer received %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h, _ := startHub(t)

	c := NewSubscriber(uuid.New())
	h.Add(c)
	h.Remove(c)
	h.Remove(c)

	if _, ok := receive(t, c); ok {
		t.Fatal("MessageCh should be closed after Remove")
	}
}

func TestHubSkipsSlowClients(t *testing.T) {
	h, _ := startHub(t)

	viewer := uuid.New()
	slow := NewSubscriber(viewer)
	h.Add(slow)

	for i := range cap(slow.MessageCh) + 10 {
		h.Deliver(model.Message{ID: int64(i + 1), ViewerID: viewer})
	}

	deadline := time.Now().Add(time.Second)
	for len(h.BrokerMsg) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("hub did not drain")
		}
		time.Sleep(time.Millisecond)
	}

	fast := NewSubscriber(viewer)
	h.Add(fast)
	h.Deliver(model.Message{ID: 1000, ViewerID: viewer})

	got, ok := receive(t, fast)
	if !ok || got.ID != 1000 {
		t.Fatalf("fast client got (%+v, %v)", got, ok)
	}
}

func TestHubStopped(t *testing.T) {
	h, cancel := startHub(t)

	c := NewSubscriber(uuid.New())
	h.Add(c)
	cancel()

	if _, ok := receive(t, c); ok {
		t.Fatal("MessageCh should be closed when the hub stops")
	}
	// Wait for Run to return.
	<-h.done

	if h.Add(NewSubscriber(uuid.New())) {
		t.Error("Add() = true on a stopped hub")
	}
	if h.Deliver(model.Message{ID: 1}) {
		t.Error("Deliver() = true on a stopped hub")
	}
	h.Remove(c)
}
