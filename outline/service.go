package outline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWorkerIdle is how long a document's worker lingers without traffic
// before it is retired. A retired document respawns on the next mutation.
const DefaultWorkerIdle = 2 * time.Minute

// NodeStore is the persistence layer the service writes through. No ordering
// logic lives behind it; it is a transactional table of nodes with the two
// positional lookups.
type NodeStore interface {
	// Get returns the node with the given id, or an error matching
	// ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Node, error)
	// ListDocument returns every node of a document, in no particular order.
	ListDocument(ctx context.Context, docID uuid.UUID) ([]Node, error)
	// ChildrenOf returns the unordered children of parentID (nil for the
	// root level) within a document.
	ChildrenOf(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]Node, error)
	// NodeAfter returns the sibling whose PrevID equals prevID, nil if none.
	NodeAfter(ctx context.Context, docID, prevID uuid.UUID) (*Node, error)
	// Apply persists a change set atomically: every upsert and delete, or
	// none of them.
	Apply(ctx context.Context, cs ChangeSet) error
	Close() error
}

// EventPublisher receives each committed event exactly once, in commit order
// per document.
type EventPublisher interface {
	Publish(ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Service is the public outline API. Every mutation for a document flows
// through that document's single worker goroutine, so two mutations on the
// same document are never applied concurrently and all subscribers observe
// them in one order. Reads go straight to the store and may see state that
// is about to change.
type Service struct {
	store NodeStore
	pub   EventPublisher
	log   zerolog.Logger
	idle  time.Duration

	mu      sync.Mutex
	workers map[uuid.UUID]*worker
	closed  bool
}

// NewService wires the service to its store and event publisher. A nil pub
// discards events. idle controls worker retirement; zero means
// DefaultWorkerIdle.
func NewService(st NodeStore, pub EventPublisher, logger zerolog.Logger, idle time.Duration) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if idle <= 0 {
		idle = DefaultWorkerIdle
	}
	return &Service{
		store:   st,
		pub:     pub,
		log:     logger.With().Str("component", "outline").Logger(),
		idle:    idle,
		workers: make(map[uuid.UUID]*worker),
	}
}

// InsertNode creates a node at (parentID, prevID) and returns the committed
// event. The sibling previously at that position now follows the new node.
func (s *Service) InsertNode(ctx context.Context, docID uuid.UUID, parentID, prevID *uuid.UUID, content string) (NodeInserted, error) {
	ev, err := s.do(ctx, docID, func(t *Tree, now time.Time) (Event, ChangeSet, error) {
		ev, cs, err := PlanInsert(t, parentID, prevID, content, now)
		if err != nil {
			return nil, ChangeSet{}, err
		}
		return ev, cs, nil
	})
	if err != nil {
		return NodeInserted{}, err
	}
	return ev.(NodeInserted), nil
}

// MoveNode reattaches a node at (newParentID, newPrevID) and returns the
// committed event, which carries the old position as well.
func (s *Service) MoveNode(ctx context.Context, docID, nodeID uuid.UUID, newParentID, newPrevID *uuid.UUID) (NodeMoved, error) {
	ev, err := s.do(ctx, docID, func(t *Tree, now time.Time) (Event, ChangeSet, error) {
		ev, cs, err := PlanMove(t, nodeID, newParentID, newPrevID, now)
		if err != nil {
			return nil, ChangeSet{}, err
		}
		return ev, cs, nil
	})
	if err != nil {
		return NodeMoved{}, err
	}
	return ev.(NodeMoved), nil
}

// UpdateContent replaces a node's content.
func (s *Service) UpdateContent(ctx context.Context, docID, nodeID uuid.UUID, content string) (NodeContentChanged, error) {
	ev, err := s.do(ctx, docID, func(t *Tree, now time.Time) (Event, ChangeSet, error) {
		ev, cs, err := PlanUpdateContent(t, nodeID, content, now)
		if err != nil {
			return nil, ChangeSet{}, err
		}
		return ev, cs, nil
	})
	if err != nil {
		return NodeContentChanged{}, err
	}
	return ev.(NodeContentChanged), nil
}

// DeleteNode removes a node, closing the gap at its old position. The zero
// policy promotes children to the deleted node's parent.
func (s *Service) DeleteNode(ctx context.Context, docID, nodeID uuid.UUID, policy ChildPolicy) (NodeDeleted, error) {
	ev, err := s.do(ctx, docID, func(t *Tree, now time.Time) (Event, ChangeSet, error) {
		ev, cs, err := PlanDelete(t, nodeID, policy, now)
		if err != nil {
			return nil, ChangeSet{}, err
		}
		return ev, cs, nil
	})
	if err != nil {
		return NodeDeleted{}, err
	}
	return ev.(NodeDeleted), nil
}

// GetNode fetches one node of a document.
func (s *Service) GetNode(ctx context.Context, docID, nodeID uuid.UUID) (*Node, error) {
	n, err := s.store.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if n.DocumentID != docID {
		return nil, fmt.Errorf("node %s not in document %s: %w", nodeID, docID, ErrNotFound)
	}
	return n, nil
}

// NextID returns the id of the sibling that follows nodeID, nil if the node
// is last among its siblings. The result is derived from the store's
// (document_id, prev_id) lookup, never from a stored pointer.
func (s *Service) NextID(ctx context.Context, docID, nodeID uuid.UUID) (*uuid.UUID, error) {
	if _, err := s.GetNode(ctx, docID, nodeID); err != nil {
		return nil, err
	}
	next, err := s.store.NodeAfter(ctx, docID, nodeID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	return CloneID(&next.ID), nil
}

// Outline returns a depth-first, sibling-ordered snapshot of the document.
// An unknown document yields an empty snapshot.
func (s *Service) Outline(ctx context.Context, docID uuid.UUID) ([]Node, error) {
	nodes, err := s.store.ListDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return NewTree(docID, nodes).Flatten(), nil
}

// OrderedChildren returns the children of parentID (nil for the root level)
// in sibling order.
func (s *Service) OrderedChildren(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]Node, error) {
	if parentID != nil {
		if _, err := s.GetNode(ctx, docID, *parentID); err != nil {
			return nil, err
		}
	}
	nodes, err := s.store.ChildrenOf(ctx, docID, parentID)
	if err != nil {
		return nil, err
	}
	return orderSiblings(nodes), nil
}

// do queues a mutation on the document's worker and waits for the result.
// Cancelling ctx abandons the wait; a mutation that was already queued may
// still commit.
func (s *Service) do(ctx context.Context, docID uuid.UUID, plan planFunc) (Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrDocumentUnavailable
	}
	w, ok := s.workers[docID]
	if !ok {
		w = newWorker(s, docID)
		s.workers[docID] = w
		go w.run()
	}
	w.pending++
	s.mu.Unlock()

	m := mutation{plan: plan, reply: make(chan mutationResult, 1)}
	w.requests <- m

	select {
	case res := <-m.reply:
		return res.event, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting mutations and shuts every worker down. Mutations
// already queued are drained with ErrDocumentUnavailable.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	workers := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		close(w.stopc)
	}
	for _, w := range workers {
		<-w.done
	}
}

// activeWorkers reports how many document workers are currently alive.
func (s *Service) activeWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
