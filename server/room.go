package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/broadcast"
)

// roomRequest is a join or leave. Both travel on one channel so requests
// from the same connection are processed in the order they were made.
type roomRequest struct {
	join   bool
	client *Client
}

// Room fans one document's events and presence out to its viewers. All
// bookkeeping runs on a single goroutine; clients reach it through the
// request channel, events arrive on the broker subscription.
type Room struct {
	docID uuid.UUID
	hub   *Hub
	log   zerolog.Logger

	clients map[*Client]bool
	sub     *broadcast.Subscription
	dying   bool

	reqs  chan roomRequest
	stopc chan struct{}
	done  chan struct{}

	// pending counts routed joins not yet received. Guarded by hub.mu.
	pending int
}

func newRoom(h *Hub, docID uuid.UUID) *Room {
	return &Room{
		docID:   docID,
		hub:     h,
		log:     h.log.With().Str("document", docID.String()).Logger(),
		clients: make(map[*Client]bool),
		sub:     h.broker.Subscribe(docID),
		reqs:    make(chan roomRequest, 32),
		stopc:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (r *Room) enqueueLeave(c *Client) {
	r.reqs <- roomRequest{client: c}
}

// run is the room's main loop. It exits only once no client remains and no
// routed join is in flight, so nobody is left blocked on its channels.
func (r *Room) run() {
	defer close(r.done)
	subC := r.sub.C
	stopc := r.stopc

	for {
		select {
		case req := <-r.reqs:
			if req.join {
				if r.dying {
					req.client.sendError(0, codeUnavailable, "document room is restarting, rejoin")
				} else {
					r.handleJoin(req.client)
				}
				r.hub.release(r)
			} else {
				r.handleLeave(req.client)
			}
			if r.maybeRetire() {
				return
			}
		case ev, ok := <-subC:
			if !ok {
				// The broker dropped this room for falling behind, or shut
				// down. Viewers need a fresh snapshot, so start over.
				subC = nil
				r.expire("event stream interrupted, rejoin")
				if r.maybeRetire() {
					return
				}
				continue
			}
			r.broadcast(eventMessage(ev))
		case <-stopc:
			stopc = nil
			r.expire("server shutting down")
			if r.maybeRetire() {
				return
			}
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	c.mu.Lock()
	if c.closed || c.room != nil {
		alreadyJoined := c.room != nil
		c.mu.Unlock()
		if alreadyJoined {
			c.sendError(0, codeBadRequest, "already in a document, leave first")
		}
		return
	}
	c.room = r
	c.mu.Unlock()
	r.clients[c] = true

	nodes, err := r.hub.svc.Outline(context.Background(), r.docID)
	if err != nil {
		r.log.Error().Err(err).Msg("load outline for join")
		delete(r.clients, c)
		c.mu.Lock()
		if c.room == r {
			c.room = nil
		}
		c.mu.Unlock()
		c.sendError(0, errorCode(err), "failed to load outline")
		return
	}

	// Snapshot for the new viewer, presence for the rest.
	c.sendMsg(ServerMessage{
		Type:    MsgOutline,
		DocID:   r.docID.String(),
		Nodes:   nodes,
		Clients: r.clientInfos(),
	})
	for other := range r.clients {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoined,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
			})
		}
	}
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	c.mu.Lock()
	if c.room == r {
		c.room = nil
	}
	c.mu.Unlock()

	r.broadcast(ServerMessage{Type: MsgLeft, ClientID: c.ID})
}

// expire kicks every viewer and detaches the room from the hub so the next
// join builds a fresh one. The loop keeps running until the kicked clients'
// leaves have drained.
func (r *Room) expire(reason string) {
	if r.dying {
		return
	}
	r.dying = true
	r.hub.detach(r)
	r.sub.Cancel()
	for c := range r.clients {
		c.sendError(0, codeUnavailable, reason)
		c.conn.Close()
	}
}

// maybeRetire reports whether the loop can exit. An empty healthy room
// unregisters itself as long as no join is on its way.
func (r *Room) maybeRetire() bool {
	if len(r.clients) > 0 {
		return false
	}
	if r.dying {
		return r.hub.pendingOf(r) == 0
	}
	if r.hub.retireIfIdle(r) {
		r.sub.Cancel()
		return true
	}
	return false
}

func (r *Room) broadcast(msg ServerMessage) {
	for c := range r.clients {
		c.sendMsg(msg)
	}
}

func (r *Room) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(r.clients))
	for c := range r.clients {
		infos = append(infos, c.Info())
	}
	return infos
}
