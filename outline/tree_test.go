package outline

import (
	"testing"

	"github.com/google/uuid"
)

// fixedDocument wires up a small document by hand:
//
//	a
//	  a1
//	  a2
//	b
func fixedDocument(docID uuid.UUID) []Node {
	a := Node{ID: uuid.New(), DocumentID: docID, Content: "a"}
	a1 := Node{ID: uuid.New(), DocumentID: docID, ParentID: ref(a.ID), Content: "a1"}
	a2 := Node{ID: uuid.New(), DocumentID: docID, ParentID: ref(a.ID), PrevID: ref(a1.ID), Content: "a2"}
	b := Node{ID: uuid.New(), DocumentID: docID, PrevID: ref(a.ID), Content: "b"}
	return []Node{b, a2, a, a1}
}

func TestTreeFlattenDepthFirst(t *testing.T) {
	docID := uuid.New()
	tree := NewTree(docID, fixedDocument(docID))

	flat := tree.Flatten()
	if !sameContents(flat, "a", "a1", "a2", "b") {
		t.Errorf("flatten = %v, want [a a1 a2 b]", contents(flat))
	}
}

func TestTreeOrderedChildrenEmpty(t *testing.T) {
	tree := NewTree(uuid.New(), nil)
	if got := tree.OrderedChildren(nil); len(got) != 0 {
		t.Errorf("empty tree returned children %v", contents(got))
	}
}

func TestTreeIsDescendant(t *testing.T) {
	docID := uuid.New()
	nodes := fixedDocument(docID)
	tree := NewTree(docID, nodes)

	var a, a1, b Node
	for _, n := range nodes {
		switch n.Content {
		case "a":
			a = n
		case "a1":
			a1 = n
		case "b":
			b = n
		}
	}

	if !tree.IsDescendant(a1.ID, a.ID) {
		t.Errorf("a1 should be a descendant of a")
	}
	if tree.IsDescendant(a.ID, a1.ID) {
		t.Errorf("a is not a descendant of its own child")
	}
	if tree.IsDescendant(b.ID, a.ID) {
		t.Errorf("siblings are not descendants of each other")
	}
	if tree.IsDescendant(a.ID, a.ID) {
		t.Errorf("a node is not its own descendant")
	}
}

func TestTreeNodeReturnsCopy(t *testing.T) {
	docID := uuid.New()
	tree := NewTree(docID, fixedDocument(docID))

	flat := tree.Flatten()
	got, ok := tree.Node(flat[3].ID)
	if !ok {
		t.Fatalf("node %s missing", flat[3].ID)
	}
	*got.PrevID = uuid.New()

	again, _ := tree.Node(flat[3].ID)
	if *again.PrevID == *got.PrevID {
		t.Errorf("mutating a returned node leaked into the tree")
	}
}

func TestOrderSiblings(t *testing.T) {
	docID := uuid.New()
	a := Node{ID: uuid.New(), DocumentID: docID, Content: "a"}
	b := Node{ID: uuid.New(), DocumentID: docID, PrevID: ref(a.ID), Content: "b"}
	c := Node{ID: uuid.New(), DocumentID: docID, PrevID: ref(b.ID), Content: "c"}

	got := orderSiblings([]Node{c, a, b})
	if !sameContents(got, "a", "b", "c") {
		t.Errorf("ordered = %v, want [a b c]", contents(got))
	}

	// A node with an unresolvable link keeps its input position at the tail.
	orphan := Node{ID: uuid.New(), DocumentID: docID, PrevID: ref(uuid.New()), Content: "orphan"}
	got = orderSiblings([]Node{orphan, c, a, b})
	if !sameContents(got, "a", "b", "c", "orphan") {
		t.Errorf("ordered = %v, want [a b c orphan]", contents(got))
	}
}
