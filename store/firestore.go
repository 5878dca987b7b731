package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/outlinehq/go-outline-editor/outline"
)

// FirestoreStore is a Firestore-backed implementation of outline.NodeStore.
// Each node lives in its own document keyed by the node id, so a multi-node
// rewrite maps onto a Firestore transaction.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "nodes",
	}
}

func (s *FirestoreStore) nodeRef(id uuid.UUID) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id.String())
}

func nodeFields(n outline.Node) map[string]interface{} {
	fields := map[string]interface{}{
		"documentId": n.DocumentID.String(),
		"parentId":   nil,
		"prevId":     nil,
		"content":    n.Content,
		"createdAt":  n.CreatedAt,
		"updatedAt":  n.UpdatedAt,
	}
	if n.ParentID != nil {
		fields["parentId"] = n.ParentID.String()
	}
	if n.PrevID != nil {
		fields["prevId"] = n.PrevID.String()
	}
	return fields
}

func snapshotToNode(snap *firestore.DocumentSnapshot) (outline.Node, error) {
	id, err := uuid.Parse(snap.Ref.ID)
	if err != nil {
		return outline.Node{}, fmt.Errorf("node doc id %q: %w", snap.Ref.ID, err)
	}
	data := snap.Data()
	rawDoc, _ := data["documentId"].(string)
	docID, err := uuid.Parse(rawDoc)
	if err != nil {
		return outline.Node{}, fmt.Errorf("node %s documentId %q: %w", id, rawDoc, err)
	}

	n := outline.Node{ID: id, DocumentID: docID}
	n.Content, _ = data["content"].(string)
	n.CreatedAt, _ = data["createdAt"].(time.Time)
	n.UpdatedAt, _ = data["updatedAt"].(time.Time)
	if raw, ok := data["parentId"].(string); ok {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return outline.Node{}, fmt.Errorf("node %s parentId %q: %w", id, raw, err)
		}
		n.ParentID = &parsed
	}
	if raw, ok := data["prevId"].(string); ok {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return outline.Node{}, fmt.Errorf("node %s prevId %q: %w", id, raw, err)
		}
		n.PrevID = &parsed
	}
	return n, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id uuid.UUID) (*outline.Node, error) {
	snap, err := s.nodeRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("node %s: %w", id, outline.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	n, err := snapshotToNode(snap)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *FirestoreStore) ListDocument(ctx context.Context, docID uuid.UUID) ([]outline.Node, error) {
	iter := s.client.Collection(s.collection).
		Where("documentId", "==", docID.String()).
		Documents(ctx)
	return collectSnapshots(iter)
}

func (s *FirestoreStore) ChildrenOf(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]outline.Node, error) {
	var parent interface{}
	if parentID != nil {
		parent = parentID.String()
	}
	iter := s.client.Collection(s.collection).
		Where("documentId", "==", docID.String()).
		Where("parentId", "==", parent).
		Documents(ctx)
	return collectSnapshots(iter)
}

func (s *FirestoreStore) NodeAfter(ctx context.Context, docID, prevID uuid.UUID) (*outline.Node, error) {
	iter := s.client.Collection(s.collection).
		Where("documentId", "==", docID.String()).
		Where("prevId", "==", prevID.String()).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n, err := snapshotToNode(snap)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Apply commits the whole change set inside one Firestore transaction.
func (s *FirestoreStore) Apply(ctx context.Context, cs outline.ChangeSet) error {
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, n := range cs.Upserts {
			if err := tx.Set(s.nodeRef(n.ID), nodeFields(n)); err != nil {
				return fmt.Errorf("set node %s: %w", n.ID, err)
			}
		}
		for _, id := range cs.Deletes {
			if err := tx.Delete(s.nodeRef(id)); err != nil {
				return fmt.Errorf("delete node %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func collectSnapshots(iter *firestore.DocumentIterator) ([]outline.Node, error) {
	defer iter.Stop()

	result := make([]outline.Node, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		n, err := snapshotToNode(snap)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}
