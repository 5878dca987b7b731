package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

// docCache holds one document's nodes plus the recency stamp used for
// eviction.
type docCache struct {
	nodes    map[uuid.UUID]outline.Node
	lastUsed time.Time
}

// CachedStore wraps a backing NodeStore with an in-memory per-document
// cache. A document enters the cache when it is listed, stays current
// through Apply, and is evicted least-recently-used once maxDocs documents
// are resident. Writes reach the backing store first; the cache is updated
// only after they commit, so a failed write leaves the cache untouched.
type CachedStore struct {
	backing outline.NodeStore
	maxDocs int

	mu   sync.Mutex
	docs map[uuid.UUID]*docCache
}

// NewCachedStore creates a CachedStore keeping at most maxDocs documents in
// memory. maxDocs <= 0 means no limit.
func NewCachedStore(backing outline.NodeStore, maxDocs int) *CachedStore {
	return &CachedStore{
		backing: backing,
		maxDocs: maxDocs,
		docs:    make(map[uuid.UUID]*docCache),
	}
}

func (cs *CachedStore) Get(ctx context.Context, id uuid.UUID) (*outline.Node, error) {
	cs.mu.Lock()
	for _, dc := range cs.docs {
		if n, ok := dc.nodes[id]; ok {
			dc.lastUsed = time.Now()
			cp := n.Clone()
			cs.mu.Unlock()
			return &cp, nil
		}
	}
	cs.mu.Unlock()

	// Node-level misses go straight to the backing store; only whole
	// documents are cached.
	return cs.backing.Get(ctx, id)
}

func (cs *CachedStore) ListDocument(ctx context.Context, docID uuid.UUID) ([]outline.Node, error) {
	cs.mu.Lock()
	if dc, ok := cs.docs[docID]; ok {
		dc.lastUsed = time.Now()
		result := cloneAll(dc.nodes)
		cs.mu.Unlock()
		return result, nil
	}
	cs.mu.Unlock()

	nodes, err := cs.backing.ListDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	dc := &docCache{nodes: make(map[uuid.UUID]outline.Node, len(nodes)), lastUsed: time.Now()}
	for _, n := range nodes {
		dc.nodes[n.ID] = n.Clone()
	}
	cs.mu.Lock()
	if _, exists := cs.docs[docID]; !exists {
		cs.docs[docID] = dc
		cs.evictLocked()
	}
	cs.mu.Unlock()
	return nodes, nil
}

func (cs *CachedStore) ChildrenOf(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]outline.Node, error) {
	cs.mu.Lock()
	if dc, ok := cs.docs[docID]; ok {
		dc.lastUsed = time.Now()
		result := make([]outline.Node, 0)
		for _, n := range dc.nodes {
			if outline.SameID(n.ParentID, parentID) {
				result = append(result, n.Clone())
			}
		}
		cs.mu.Unlock()
		return result, nil
	}
	cs.mu.Unlock()

	return cs.backing.ChildrenOf(ctx, docID, parentID)
}

func (cs *CachedStore) NodeAfter(ctx context.Context, docID, prevID uuid.UUID) (*outline.Node, error) {
	cs.mu.Lock()
	if dc, ok := cs.docs[docID]; ok {
		dc.lastUsed = time.Now()
		for _, n := range dc.nodes {
			if n.PrevID != nil && *n.PrevID == prevID {
				cp := n.Clone()
				cs.mu.Unlock()
				return &cp, nil
			}
		}
		cs.mu.Unlock()
		return nil, nil
	}
	cs.mu.Unlock()

	return cs.backing.NodeAfter(ctx, docID, prevID)
}

// Apply forwards the change set to the backing store and, once it commits,
// folds it into the cached copy of the document.
func (cs *CachedStore) Apply(ctx context.Context, set outline.ChangeSet) error {
	if err := cs.backing.Apply(ctx, set); err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	dc, ok := cs.docs[set.DocumentID]
	if !ok {
		return nil
	}
	dc.lastUsed = time.Now()
	for _, n := range set.Upserts {
		dc.nodes[n.ID] = n.Clone()
	}
	for _, id := range set.Deletes {
		delete(dc.nodes, id)
	}
	return nil
}

func (cs *CachedStore) Close() error {
	return cs.backing.Close()
}

// evictLocked drops least-recently-used documents until the cache is back
// under maxDocs. Callers must hold cs.mu.
func (cs *CachedStore) evictLocked() {
	if cs.maxDocs <= 0 {
		return
	}
	for len(cs.docs) > cs.maxDocs {
		var (
			oldest   uuid.UUID
			oldestAt time.Time
		)
		first := true
		for id, dc := range cs.docs {
			if first || dc.lastUsed.Before(oldestAt) {
				oldest, oldestAt, first = id, dc.lastUsed, false
			}
		}
		delete(cs.docs, oldest)
	}
}

func cloneAll(nodes map[uuid.UUID]outline.Node) []outline.Node {
	result := make([]outline.Node, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, n.Clone())
	}
	return result
}
