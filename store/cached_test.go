package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

// countingStore wraps a NodeStore and counts backing reads, so tests can
// tell cache hits from misses.
type countingStore struct {
	outline.NodeStore
	gets     int
	lists    int
	children int
	afters   int
	applyErr error
}

func (c *countingStore) Get(ctx context.Context, id uuid.UUID) (*outline.Node, error) {
	c.gets++
	return c.NodeStore.Get(ctx, id)
}

func (c *countingStore) ListDocument(ctx context.Context, docID uuid.UUID) ([]outline.Node, error) {
	c.lists++
	return c.NodeStore.ListDocument(ctx, docID)
}

func (c *countingStore) ChildrenOf(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]outline.Node, error) {
	c.children++
	return c.NodeStore.ChildrenOf(ctx, docID, parentID)
}

func (c *countingStore) NodeAfter(ctx context.Context, docID, prevID uuid.UUID) (*outline.Node, error) {
	c.afters++
	return c.NodeStore.NodeAfter(ctx, docID, prevID)
}

func (c *countingStore) Apply(ctx context.Context, cs outline.ChangeSet) error {
	if c.applyErr != nil {
		return c.applyErr
	}
	return c.NodeStore.Apply(ctx, cs)
}

func TestCachedStore_ListCachesDocument(t *testing.T) {
	backing := &countingStore{NodeStore: NewMemoryStore()}
	ctx := context.Background()
	docID := uuid.New()

	a := makeNode(docID, nil, nil, "a")
	b := makeNode(docID, nil, ref(a.ID), "b")
	seed(t, backing.NodeStore, docID, a, b)

	cs := NewCachedStore(backing, 4)

	for i := 0; i < 3; i++ {
		nodes, err := cs.ListDocument(ctx, docID)
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != 2 {
			t.Fatalf("got %d nodes, want 2", len(nodes))
		}
	}
	if backing.lists != 1 {
		t.Errorf("backing hit %d times, want 1", backing.lists)
	}

	// Node reads for a cached document stay in memory too.
	if _, err := cs.Get(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.ChildrenOf(ctx, docID, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.NodeAfter(ctx, docID, a.ID); err != nil {
		t.Fatal(err)
	}
	if backing.gets != 0 || backing.children != 0 || backing.afters != 0 {
		t.Errorf("cached reads reached the backing store: gets=%d children=%d afters=%d",
			backing.gets, backing.children, backing.afters)
	}
}

func TestCachedStore_UncachedReadsPassThrough(t *testing.T) {
	backing := &countingStore{NodeStore: NewMemoryStore()}
	ctx := context.Background()
	docID := uuid.New()

	a := makeNode(docID, nil, nil, "a")
	seed(t, backing.NodeStore, docID, a)

	cs := NewCachedStore(backing, 4)

	if _, err := cs.Get(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.ChildrenOf(ctx, docID, nil); err != nil {
		t.Fatal(err)
	}
	if backing.gets != 1 || backing.children != 1 {
		t.Errorf("pass-through counts: gets=%d children=%d, want 1 and 1", backing.gets, backing.children)
	}
}

func TestCachedStore_ApplyWritesThrough(t *testing.T) {
	backing := &countingStore{NodeStore: NewMemoryStore()}
	ctx := context.Background()
	docID := uuid.New()

	a := makeNode(docID, nil, nil, "a")
	seed(t, backing.NodeStore, docID, a)

	cs := NewCachedStore(backing, 4)
	if _, err := cs.ListDocument(ctx, docID); err != nil {
		t.Fatal(err)
	}

	b := makeNode(docID, nil, ref(a.ID), "b")
	if err := cs.Apply(ctx, outline.ChangeSet{DocumentID: docID, Upserts: []outline.Node{b}}); err != nil {
		t.Fatal(err)
	}

	// Both the backing store and the cached copy see the write.
	if _, err := backing.NodeStore.Get(ctx, b.ID); err != nil {
		t.Fatalf("backing store missing upsert: %v", err)
	}
	nodes, err := cs.ListDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Errorf("cached document has %d nodes, want 2", len(nodes))
	}
	if backing.lists != 1 {
		t.Errorf("backing listed %d times, want 1 (cache should absorb the second read)", backing.lists)
	}
}

func TestCachedStore_FailedApplyLeavesCacheUntouched(t *testing.T) {
	backing := &countingStore{NodeStore: NewMemoryStore()}
	ctx := context.Background()
	docID := uuid.New()

	a := makeNode(docID, nil, nil, "a")
	seed(t, backing.NodeStore, docID, a)

	cs := NewCachedStore(backing, 4)
	if _, err := cs.ListDocument(ctx, docID); err != nil {
		t.Fatal(err)
	}

	backing.applyErr = errors.New("backing down")
	b := makeNode(docID, nil, ref(a.ID), "b")
	if err := cs.Apply(ctx, outline.ChangeSet{DocumentID: docID, Upserts: []outline.Node{b}}); err == nil {
		t.Fatal("expected apply error")
	}

	nodes, _ := cs.ListDocument(ctx, docID)
	if len(nodes) != 1 {
		t.Errorf("cache absorbed a failed write: %d nodes", len(nodes))
	}
}

func TestCachedStore_EvictsLeastRecentlyUsed(t *testing.T) {
	backing := &countingStore{NodeStore: NewMemoryStore()}
	ctx := context.Background()

	docs := make([]uuid.UUID, 3)
	for i := range docs {
		docs[i] = uuid.New()
		seed(t, backing.NodeStore, docs[i], makeNode(docs[i], nil, nil, "x"))
	}

	cs := NewCachedStore(backing, 2)
	for _, docID := range docs {
		if _, err := cs.ListDocument(ctx, docID); err != nil {
			t.Fatal(err)
		}
	}
	if backing.lists != 3 {
		t.Fatalf("backing listed %d times, want 3", backing.lists)
	}

	// docs[0] was the least recently used and should be gone; listing it
	// again reaches the backing store.
	if _, err := cs.ListDocument(ctx, docs[0]); err != nil {
		t.Fatal(err)
	}
	if backing.lists != 4 {
		t.Errorf("backing listed %d times, want 4 after eviction", backing.lists)
	}

	// docs[2] stayed resident.
	if _, err := cs.ListDocument(ctx, docs[2]); err != nil {
		t.Fatal(err)
	}
	if backing.lists != 4 {
		t.Errorf("backing listed %d times, want still 4 for a resident document", backing.lists)
	}
}
