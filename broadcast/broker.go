// Package broadcast fans outline events out to document subscribers, either
// within one process or across instances through Redis.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/outline"
)

// subscriptionBuffer is how many events a subscriber may lag behind before
// it is dropped.
const subscriptionBuffer = 32

// Subscription delivers one document's events in publish order. C is closed
// when the subscription is cancelled, the broker shuts down, or the
// subscriber falls too far behind.
type Subscription struct {
	C <-chan outline.Event

	c      chan outline.Event
	broker *Broker
	docID  uuid.UUID
}

// Cancel detaches the subscription and closes C. Safe to call more than
// once.
func (s *Subscription) Cancel() {
	s.broker.cancel(s)
}

// Broker routes events to in-process subscribers keyed by document id.
type Broker struct {
	log zerolog.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	closed bool
}

func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		log:  logger.With().Str("component", "broadcast").Logger(),
		subs: make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe registers for the document's events. On a closed broker the
// returned subscription's channel is already closed.
func (b *Broker) Subscribe(docID uuid.UUID) *Subscription {
	ch := make(chan outline.Event, subscriptionBuffer)
	sub := &Subscription{C: ch, c: ch, broker: b, docID: docID}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	set, ok := b.subs[docID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[docID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber of its document. A subscriber
// with a full buffer is detached and its channel closed rather than holding
// up the rest; it can resubscribe and reload the document.
func (b *Broker) Publish(ev outline.Event) {
	docID := ev.Document()

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[docID] {
		select {
		case sub.c <- ev:
		default:
			b.log.Warn().
				Str("document", docID.String()).
				Msg("subscriber too slow, dropping")
			b.removeLocked(sub)
		}
	}
}

// Close drops every subscription. Later Subscribe calls return a closed
// channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			close(sub.c)
		}
	}
	b.subs = make(map[uuid.UUID]map[*Subscription]struct{})
}

func (b *Broker) cancel(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.docID]; ok {
		if _, present := set[sub]; present {
			b.removeLocked(sub)
		}
	}
}

// removeLocked detaches sub and closes its channel. Callers must hold b.mu
// and must have checked the subscription is still registered.
func (b *Broker) removeLocked(sub *Subscription) {
	set := b.subs[sub.docID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.docID)
	}
	close(sub.c)
}
