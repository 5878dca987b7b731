package outline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type planFunc func(t *Tree, now time.Time) (Event, ChangeSet, error)

type mutation struct {
	plan  planFunc
	reply chan mutationResult
}

type mutationResult struct {
	event Event
	err   error
}

// worker owns all writes to one document and processes them strictly in
// arrival order. It keeps the document's tree in memory between requests;
// the tree only advances after the store accepted the change set, so a
// failed write leaves no partial state behind.
type worker struct {
	svc   *Service
	docID uuid.UUID
	tree  *Tree
	log   zerolog.Logger

	requests chan mutation
	stopc    chan struct{}
	done     chan struct{}

	// pending counts accepted-but-unfinished requests. Guarded by svc.mu;
	// a worker never exits while pending is nonzero.
	pending int

	stopping bool
}

func newWorker(s *Service, docID uuid.UUID) *worker {
	return &worker{
		svc:      s,
		docID:    docID,
		log:      s.log.With().Str("doc", docID.String()).Logger(),
		requests: make(chan mutation, 64),
		stopc:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *worker) run() {
	defer close(w.done)
	idle := time.NewTimer(w.svc.idle)
	defer idle.Stop()

	for {
		if w.stopping {
			if w.pendingCount() == 0 {
				return
			}
			// Every counted sender is committed to delivering its request.
			m := <-w.requests
			m.reply <- mutationResult{err: ErrDocumentUnavailable}
			w.release()
			continue
		}
		select {
		case m := <-w.requests:
			w.handle(m)
			w.release()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.svc.idle)
		case <-w.stopc:
			w.stopping = true
		case <-idle.C:
			if w.retire() {
				return
			}
			idle.Reset(w.svc.idle)
		}
	}
}

func (w *worker) handle(m mutation) {
	ctx := context.Background()
	if w.tree == nil {
		nodes, err := w.svc.store.ListDocument(ctx, w.docID)
		if err != nil {
			w.log.Error().Err(err).Msg("load document")
			m.reply <- mutationResult{err: &PersistenceError{Op: "load", Err: err}}
			return
		}
		w.tree = NewTree(w.docID, nodes)
	}

	ev, cs, err := m.plan(w.tree, time.Now().UTC())
	if err != nil {
		m.reply <- mutationResult{err: err}
		return
	}
	if err := w.svc.store.Apply(ctx, cs); err != nil {
		w.log.Error().Err(err).Str("event", ev.Kind()).Msg("apply change set")
		m.reply <- mutationResult{err: &PersistenceError{Op: "apply", Err: err}}
		return
	}
	w.tree.apply(cs)
	w.svc.pub.Publish(ev)
	m.reply <- mutationResult{event: ev}
}

// retire removes the worker from the service if no request is in flight.
func (w *worker) retire() bool {
	w.svc.mu.Lock()
	defer w.svc.mu.Unlock()
	if w.pending > 0 {
		return false
	}
	delete(w.svc.workers, w.docID)
	return true
}

func (w *worker) release() {
	w.svc.mu.Lock()
	w.pending--
	w.svc.mu.Unlock()
}

func (w *worker) pendingCount() int {
	w.svc.mu.Lock()
	defer w.svc.mu.Unlock()
	return w.pending
}
