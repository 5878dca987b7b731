package outline

import "github.com/google/uuid"

// Tree is an in-memory view of one document's nodes. It carries no ordering
// logic beyond derivation: the next sibling of a node is the unique sibling
// whose PrevID equals that node's ID. A Tree is not safe for concurrent use;
// each document's serialization unit owns its Tree exclusively.
type Tree struct {
	docID uuid.UUID
	nodes map[uuid.UUID]*Node
}

// NewTree builds a view of the given nodes. The slice is copied.
func NewTree(docID uuid.UUID, nodes []Node) *Tree {
	t := &Tree{
		docID: docID,
		nodes: make(map[uuid.UUID]*Node, len(nodes)),
	}
	for _, n := range nodes {
		cp := n.Clone()
		t.nodes[cp.ID] = &cp
	}
	return t
}

// DocID returns the document this tree belongs to.
func (t *Tree) DocID() uuid.UUID { return t.docID }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id uuid.UUID) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// next returns the sibling that follows prevID, nil if none.
func (t *Tree) next(prevID uuid.UUID) *Node {
	for _, n := range t.nodes {
		if n.PrevID != nil && *n.PrevID == prevID {
			return n
		}
	}
	return nil
}

// head returns the first child under parentID, nil if none.
func (t *Tree) head(parentID *uuid.UUID) *Node {
	for _, n := range t.nodes {
		if n.PrevID == nil && SameID(n.ParentID, parentID) {
			return n
		}
	}
	return nil
}

// OrderedChildren returns the children of parentID in sibling order, walking
// the prev chain from the first child. The walk is bounded by the tree size
// so a corrupt chain cannot loop forever.
func (t *Tree) OrderedChildren(parentID *uuid.UUID) []Node {
	var out []Node
	seen := make(map[uuid.UUID]bool)
	for n := t.head(parentID); n != nil && !seen[n.ID]; n = t.next(n.ID) {
		seen[n.ID] = true
		out = append(out, n.Clone())
	}
	return out
}

// IsDescendant reports whether nodeID is inside the subtree rooted at
// ancestorID, walking the parent chain upward. A node is not its own
// descendant.
func (t *Tree) IsDescendant(nodeID, ancestorID uuid.UUID) bool {
	if nodeID == ancestorID {
		return false
	}
	seen := make(map[uuid.UUID]bool)
	cur, ok := t.nodes[nodeID]
	for ok && cur.ParentID != nil && !seen[cur.ID] {
		seen[cur.ID] = true
		if *cur.ParentID == ancestorID {
			return true
		}
		cur, ok = t.nodes[*cur.ParentID]
	}
	return false
}

// Flatten returns every node of the document depth-first: each parent is
// followed by its children in sibling order.
func (t *Tree) Flatten() []Node {
	out := make([]Node, 0, len(t.nodes))
	seen := make(map[uuid.UUID]bool)
	var walk func(parentID *uuid.UUID)
	walk = func(parentID *uuid.UUID) {
		for _, c := range t.OrderedChildren(parentID) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			id := c.ID
			walk(&id)
		}
	}
	walk(nil)
	return out
}

// apply commits a change set to the view. The caller has already persisted
// it; a tree is only ever mutated with durable state.
func (t *Tree) apply(cs ChangeSet) {
	for _, n := range cs.Upserts {
		cp := n.Clone()
		t.nodes[cp.ID] = &cp
	}
	for _, id := range cs.Deletes {
		delete(t.nodes, id)
	}
}

// orderSiblings sorts one sibling group into chain order. Nodes whose link
// cannot be resolved keep their input order at the tail.
func orderSiblings(nodes []Node) []Node {
	if len(nodes) < 2 {
		return nodes
	}
	byPrev := make(map[uuid.UUID]*Node, len(nodes))
	var headNode *Node
	for i := range nodes {
		n := &nodes[i]
		if n.PrevID == nil {
			headNode = n
		} else {
			byPrev[*n.PrevID] = n
		}
	}
	out := make([]Node, 0, len(nodes))
	seen := make(map[uuid.UUID]bool)
	for n := headNode; n != nil && !seen[n.ID]; n = byPrev[n.ID] {
		seen[n.ID] = true
		out = append(out, *n)
	}
	for _, n := range nodes {
		if !seen[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
