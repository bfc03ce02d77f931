package websocket

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/johndosdos/claudespark/internal/metrics"
	"github.com/johndosdos/claudespark/internal/model"
)

type Registration struct {
	Client *Client
	Done   chan struct{}
}

// Hub routes feed messages to the open views of their viewer. A viewer may
// have several views open at once.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	Register   chan Registration
	Unregister chan *Client
	BrokerMsg  chan model.Message
	done       chan struct{}
}

// NewHub returns a new instance of Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		BrokerMsg:  make(chan model.Message, 1024),
		done:       make(chan struct{}),
	}
}

// Run manages hub traffic until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.Register:
			client := reg.Client
			set, ok := h.clients[client.ViewerID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.ViewerID] = set
			}
			set[client] = struct{}{}
			client.Hub = h
			metrics.Sessions.Inc()
			close(reg.Done)

		case client := <-h.Unregister:
			set := h.clients[client.ViewerID]
			if _, ok := set[client]; !ok {
				continue
			}
			delete(set, client)
			if len(set) == 0 {
				delete(h.clients, client.ViewerID)
			}
			close(client.MessageCh)
			metrics.Sessions.Dec()

		case payload := <-h.BrokerMsg:
			for client := range h.clients[payload.ViewerID] {
				select {
				case client.MessageCh <- payload:
				default:
					slog.Warn("skipping message payload - channel full or client slow",
						slog.String("viewer_id", payload.ViewerID.String()),
						slog.Int64("message_id", payload.ID))
				}
			}

		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					close(client.MessageCh)
					metrics.Sessions.Dec()
				}
			}
			clear(h.clients)
			return
		}
	}
}

// Add registers c and waits until the hub has accepted it. It returns false
// if the hub is no longer running.
func (h *Hub) Add(c *Client) bool {
	reg := Registration{Client: c, Done: make(chan struct{})}
	select {
	case h.Register <- reg:
	case <-h.done:
		return false
	}
	<-reg.Done
	return true
}

// Remove unregisters c. Removing a client twice is harmless.
func (h *Hub) Remove(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Deliver queues a feed message for routing. It blocks while the queue is
// full and returns false once the hub has stopped.
func (h *Hub) Deliver(msg model.Message) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.BrokerMsg <- msg:
		return true
	case <-h.done:
		return false
	}
}
