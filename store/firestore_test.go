package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

func testFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	projectID := os.Getenv("FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT not set, skipping Firestore tests")
	}
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		t.Fatalf("failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// cleanupNodes deletes every node of the given document after the test.
func cleanupNodes(t *testing.T, s *FirestoreStore, docID uuid.UUID) {
	t.Cleanup(func() {
		ctx := context.Background()
		iter := s.client.Collection(s.collection).
			Where("documentId", "==", docID.String()).
			Documents(ctx)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				break
			}
			_, _ = snap.Ref.Delete(ctx)
		}
	})
}

func TestFirestoreStore_RoundTrip(t *testing.T) {
	client := testFirestoreClient(t)
	s := NewFirestoreStore(client)
	ctx := context.Background()
	docID := uuid.New()
	cleanupNodes(t, s, docID)

	a := makeNode(docID, nil, nil, "a")
	b := makeNode(docID, nil, ref(a.ID), "b")
	c := makeNode(docID, ref(a.ID), nil, "c")
	seed(t, s, docID, a, b, c)

	got, err := s.Get(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "b" || got.DocumentID != docID {
		t.Errorf("unexpected node: %+v", got)
	}
	if got.PrevID == nil || *got.PrevID != a.ID {
		t.Errorf("b.prev = %v, want %s", got.PrevID, a.ID)
	}

	nodes, err := s.ListDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 3 {
		t.Errorf("got %d nodes, want 3", len(nodes))
	}

	roots, err := s.ChildrenOf(ctx, docID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Errorf("got %d root nodes, want 2", len(roots))
	}

	kids, err := s.ChildrenOf(ctx, docID, ref(a.ID))
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 1 || kids[0].ID != c.ID {
		t.Errorf("unexpected children of a: %+v", kids)
	}

	next, err := s.NodeAfter(ctx, docID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.ID != b.ID {
		t.Errorf("node after a = %+v, want %s", next, b.ID)
	}
}

func TestFirestoreStore_GetNotFound(t *testing.T) {
	client := testFirestoreClient(t)
	s := NewFirestoreStore(client)

	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, outline.ErrNotFound) {
		t.Errorf("got %v, want %v", err, outline.ErrNotFound)
	}
}

func TestFirestoreStore_ApplyRewriteAndDelete(t *testing.T) {
	client := testFirestoreClient(t)
	s := NewFirestoreStore(client)
	ctx := context.Background()
	docID := uuid.New()
	cleanupNodes(t, s, docID)

	a := makeNode(docID, nil, nil, "a")
	b := makeNode(docID, nil, ref(a.ID), "b")
	c := makeNode(docID, nil, ref(b.ID), "c")
	seed(t, s, docID, a, b, c)

	// Splice b out in one transaction.
	c.PrevID = ref(a.ID)
	err := s.Apply(ctx, outline.ChangeSet{
		DocumentID: docID,
		Upserts:    []outline.Node{c},
		Deletes:    []uuid.UUID{b.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, b.ID); !errors.Is(err, outline.ErrNotFound) {
		t.Errorf("deleted node still present: %v", err)
	}
	next, err := s.NodeAfter(ctx, docID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next == nil || next.ID != c.ID {
		t.Errorf("node after a = %+v, want %s", next, c.ID)
	}
}
