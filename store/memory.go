package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

// MemoryStore is an in-memory implementation of outline.NodeStore. It is the
// fallback when neither Postgres nor Firestore is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]outline.Node
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[uuid.UUID]outline.Node)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*outline.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, outline.ErrNotFound)
	}
	cp := n.Clone()
	return &cp, nil
}

func (s *MemoryStore) ListDocument(_ context.Context, docID uuid.UUID) ([]outline.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]outline.Node, 0)
	for _, n := range s.nodes {
		if n.DocumentID == docID {
			result = append(result, n.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) ChildrenOf(_ context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]outline.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]outline.Node, 0)
	for _, n := range s.nodes {
		if n.DocumentID == docID && outline.SameID(n.ParentID, parentID) {
			result = append(result, n.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) NodeAfter(_ context.Context, docID, prevID uuid.UUID) (*outline.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nodes {
		if n.DocumentID == docID && n.PrevID != nil && *n.PrevID == prevID {
			cp := n.Clone()
			return &cp, nil
		}
	}
	return nil, nil
}

// Apply commits the whole change set under one lock, so readers never see a
// half-applied rewrite.
func (s *MemoryStore) Apply(_ context.Context, cs outline.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range cs.Upserts {
		s.nodes[n.ID] = n.Clone()
	}
	for _, id := range cs.Deletes {
		delete(s.nodes, id)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
