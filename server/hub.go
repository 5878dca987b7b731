package server

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/broadcast"
	"github.com/outlinehq/go-outline-editor/outline"
)

// Hub routes websocket clients to per-document rooms, spawning rooms on
// first use and letting idle ones retire.
type Hub struct {
	svc    *outline.Service
	broker *broadcast.Broker
	log    zerolog.Logger

	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	closed bool
}

func NewHub(svc *outline.Service, broker *broadcast.Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		svc:    svc,
		broker: broker,
		log:    logger.With().Str("component", "server").Logger(),
		rooms:  make(map[uuid.UUID]*Room),
	}
}

// route hands the client to the document's room. pending is bumped before
// the send so the room cannot retire between unlock and delivery.
func (h *Hub) route(c *Client, docID uuid.UUID) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.sendError(0, codeUnavailable, "server shutting down")
		return
	}
	r, ok := h.rooms[docID]
	if !ok {
		r = newRoom(h, docID)
		h.rooms[docID] = r
		go r.run()
	}
	r.pending++
	h.mu.Unlock()

	r.reqs <- roomRequest{join: true, client: c}
}

// release marks one routed join as received.
func (h *Hub) release(r *Room) {
	h.mu.Lock()
	r.pending--
	h.mu.Unlock()
}

func (h *Hub) pendingOf(r *Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return r.pending
}

// retireIfIdle unregisters an empty room unless a join is on its way.
func (h *Hub) retireIfIdle(r *Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.pending > 0 {
		return false
	}
	if h.rooms[r.docID] == r {
		delete(h.rooms, r.docID)
	}
	return true
}

// detach removes the room from the routing table without stopping it, so an
// expiring room can drain while a replacement spins up.
func (h *Hub) detach(r *Room) {
	h.mu.Lock()
	if h.rooms[r.docID] == r {
		delete(h.rooms, r.docID)
	}
	h.mu.Unlock()
}

// Close stops every room and waits for them to drain. Joins routed after
// Close are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		close(r.stopc)
	}
	for _, r := range rooms {
		<-r.done
	}
}

// activeRooms reports how many rooms are registered, for tests.
func (h *Hub) activeRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
