package outline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChildPolicy selects what happens to a deleted node's children.
type ChildPolicy int

const (
	// PromoteChildren reattaches the children to the deleted node's parent
	// as a contiguous run at its old position, preserving their relative
	// order. This is the default.
	PromoteChildren ChildPolicy = iota
	// CascadeDelete removes the whole subtree.
	CascadeDelete
)

func (p ChildPolicy) String() string {
	switch p {
	case PromoteChildren:
		return "promote"
	case CascadeDelete:
		return "cascade"
	default:
		return fmt.Sprintf("ChildPolicy(%d)", int(p))
	}
}

// planner overlays staged rewrites on a Tree so that lookups made later in a
// plan observe rewrites staged earlier in the same plan. The tree itself is
// never touched: plans are computed in full, persisted by the caller, and
// only then committed to the view.
type planner struct {
	tree        *Tree
	staged      map[uuid.UUID]*Node
	removed     map[uuid.UUID]bool
	order       []uuid.UUID
	removeOrder []uuid.UUID
}

func newPlanner(t *Tree) *planner {
	return &planner{
		tree:    t,
		staged:  make(map[uuid.UUID]*Node),
		removed: make(map[uuid.UUID]bool),
	}
}

// node returns the staged view of id.
func (p *planner) node(id uuid.UUID) (Node, bool) {
	if p.removed[id] {
		return Node{}, false
	}
	if n, ok := p.staged[id]; ok {
		return n.Clone(), true
	}
	return p.tree.Node(id)
}

// occupant returns a copy of the node currently holding position
// (parentID, prevID): the head of the sibling group when prevID is nil,
// otherwise the sibling following prevID. exclude is skipped so a move can
// look up its target position without finding itself.
func (p *planner) occupant(parentID, prevID *uuid.UUID, exclude uuid.UUID) *Node {
	matches := func(n *Node) bool {
		if n.ID == exclude || p.removed[n.ID] {
			return false
		}
		if prevID == nil {
			return n.PrevID == nil && SameID(n.ParentID, parentID)
		}
		return n.PrevID != nil && *n.PrevID == *prevID
	}
	for _, n := range p.staged {
		if matches(n) {
			cp := n.Clone()
			return &cp
		}
	}
	for id, n := range p.tree.nodes {
		if _, ok := p.staged[id]; ok {
			continue
		}
		if matches(n) {
			cp := n.Clone()
			return &cp
		}
	}
	return nil
}

func (p *planner) stage(n Node) {
	if _, ok := p.staged[n.ID]; !ok {
		p.order = append(p.order, n.ID)
	}
	cp := n.Clone()
	p.staged[n.ID] = &cp
}

func (p *planner) remove(id uuid.UUID) {
	if !p.removed[id] {
		p.removeOrder = append(p.removeOrder, id)
	}
	p.removed[id] = true
}

func (p *planner) changeSet() ChangeSet {
	cs := ChangeSet{DocumentID: p.tree.docID}
	for _, id := range p.order {
		cs.Upserts = append(cs.Upserts, p.staged[id].Clone())
	}
	cs.Deletes = append(cs.Deletes, p.removeOrder...)
	return cs
}

// PlanInsert computes the write set for a new node at (parentID, prevID).
// The sibling previously at that position, if any, is re-pointed at the new
// node so the rest of the chain is preserved.
func PlanInsert(t *Tree, parentID, prevID *uuid.UUID, content string, now time.Time) (NodeInserted, ChangeSet, error) {
	p := newPlanner(t)
	if parentID != nil {
		if _, ok := p.node(*parentID); !ok {
			return NodeInserted{}, ChangeSet{}, fmt.Errorf("insert under %s: %w", *parentID, ErrNotFound)
		}
	}
	if prevID != nil {
		prev, ok := p.node(*prevID)
		if !ok || !SameID(prev.ParentID, parentID) {
			return NodeInserted{}, ChangeSet{}, fmt.Errorf("insert after %s: %w", *prevID, ErrInvalidPosition)
		}
	}

	n := Node{
		ID:         uuid.New(),
		DocumentID: t.docID,
		ParentID:   CloneID(parentID),
		PrevID:     CloneID(prevID),
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	next := p.occupant(parentID, prevID, n.ID)
	p.stage(n)

	var nextID *uuid.UUID
	if next != nil {
		nextID = CloneID(&next.ID)
		next.PrevID = CloneID(&n.ID)
		next.UpdatedAt = now
		p.stage(*next)
	}
	return NodeInserted{Node: n, NextID: nextID}, p.changeSet(), nil
}

// PlanMove computes the write set that detaches nodeID from its position,
// closing the gap behind it, and splices it in at (newParentID, newPrevID).
func PlanMove(t *Tree, nodeID uuid.UUID, newParentID, newPrevID *uuid.UUID, now time.Time) (NodeMoved, ChangeSet, error) {
	p := newPlanner(t)
	n, ok := p.node(nodeID)
	if !ok {
		return NodeMoved{}, ChangeSet{}, fmt.Errorf("move %s: %w", nodeID, ErrNotFound)
	}
	if newPrevID != nil && *newPrevID == nodeID {
		return NodeMoved{}, ChangeSet{}, fmt.Errorf("move %s after itself: %w", nodeID, ErrInvalidPosition)
	}
	if newParentID != nil {
		if *newParentID == nodeID || t.IsDescendant(*newParentID, nodeID) {
			return NodeMoved{}, ChangeSet{}, fmt.Errorf("move %s under %s: %w", nodeID, *newParentID, ErrCycle)
		}
		if _, ok := p.node(*newParentID); !ok {
			return NodeMoved{}, ChangeSet{}, fmt.Errorf("move under %s: %w", *newParentID, ErrNotFound)
		}
	}

	// Detach: the old next sibling inherits the node's old prev pointer.
	oldPrevID := CloneID(n.PrevID)
	var oldNextID *uuid.UUID
	if oldNext := p.occupant(n.ParentID, &n.ID, uuid.Nil); oldNext != nil {
		oldNextID = CloneID(&oldNext.ID)
		oldNext.PrevID = CloneID(n.PrevID)
		oldNext.UpdatedAt = now
		p.stage(*oldNext)
	}

	// The target prev must be a sibling under the target parent once the
	// node is out of the way.
	if newPrevID != nil {
		prev, ok := p.node(*newPrevID)
		if !ok || !SameID(prev.ParentID, newParentID) {
			return NodeMoved{}, ChangeSet{}, fmt.Errorf("move after %s: %w", *newPrevID, ErrInvalidPosition)
		}
	}

	newNext := p.occupant(newParentID, newPrevID, nodeID)
	moved := n
	moved.ParentID = CloneID(newParentID)
	moved.PrevID = CloneID(newPrevID)
	moved.UpdatedAt = now
	p.stage(moved)

	var nextID *uuid.UUID
	if newNext != nil {
		nextID = CloneID(&newNext.ID)
		newNext.PrevID = CloneID(&nodeID)
		newNext.UpdatedAt = now
		p.stage(*newNext)
	}

	ev := NodeMoved{Node: moved, OldPrevID: oldPrevID, OldNextID: oldNextID, NextID: nextID}
	return ev, p.changeSet(), nil
}

// PlanUpdateContent computes the write set for a content replacement.
// Ordering pointers are never touched.
func PlanUpdateContent(t *Tree, nodeID uuid.UUID, content string, now time.Time) (NodeContentChanged, ChangeSet, error) {
	p := newPlanner(t)
	n, ok := p.node(nodeID)
	if !ok {
		return NodeContentChanged{}, ChangeSet{}, fmt.Errorf("update %s: %w", nodeID, ErrNotFound)
	}
	n.Content = content
	n.UpdatedAt = now
	p.stage(n)

	ev := NodeContentChanged{DocumentID: t.docID, NodeID: nodeID, Content: content, UpdatedAt: now}
	return ev, p.changeSet(), nil
}

// PlanDelete computes the write set that removes nodeID, closes the gap at
// its old position and applies the child policy to its subtree.
func PlanDelete(t *Tree, nodeID uuid.UUID, policy ChildPolicy, now time.Time) (NodeDeleted, ChangeSet, error) {
	p := newPlanner(t)
	n, ok := p.node(nodeID)
	if !ok {
		return NodeDeleted{}, ChangeSet{}, fmt.Errorf("delete %s: %w", nodeID, ErrNotFound)
	}

	children := t.OrderedChildren(&nodeID)
	oldNext := p.occupant(n.ParentID, &n.ID, uuid.Nil)

	var reparented []Node
	switch policy {
	case CascadeDelete:
		var drop func(id uuid.UUID)
		drop = func(id uuid.UUID) {
			for _, c := range t.OrderedChildren(&id) {
				drop(c.ID)
			}
			p.remove(id)
		}
		drop(nodeID)
	default:
		for i, c := range children {
			c.ParentID = CloneID(n.ParentID)
			if i == 0 {
				c.PrevID = CloneID(n.PrevID)
			}
			c.UpdatedAt = now
			p.stage(c)
			reparented = append(reparented, c)
		}
		p.remove(nodeID)
	}

	var nextID *uuid.UUID
	if oldNext != nil {
		nextID = CloneID(&oldNext.ID)
		gap := CloneID(n.PrevID)
		if policy != CascadeDelete && len(children) > 0 {
			gap = CloneID(&children[len(children)-1].ID)
		}
		oldNext.PrevID = gap
		oldNext.UpdatedAt = now
		p.stage(*oldNext)
	}

	ev := NodeDeleted{Node: n, NextID: nextID, ReparentedChildren: reparented}
	return ev, p.changeSet(), nil
}
