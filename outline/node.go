package outline

import (
	"time"

	"github.com/google/uuid"
)

// Node is a position in one document's outline tree. Sibling order is a
// singly linked list through PrevID; the next sibling is never stored and is
// always derived (the unique sibling whose PrevID equals this node's ID).
type Node struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID uuid.UUID  `json:"documentId"`
	ParentID   *uuid.UUID `json:"parentId"`
	PrevID     *uuid.UUID `json:"prevId"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Clone returns a copy of the node that shares no pointers with the original.
func (n Node) Clone() Node {
	cp := n
	cp.ParentID = CloneID(n.ParentID)
	cp.PrevID = CloneID(n.PrevID)
	return cp
}

// CloneID copies a nullable node reference.
func CloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SameID reports whether two nullable node references point at the same node.
func SameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ChangeSet is the full write set of one outline operation. Either every
// upsert and delete in it is persisted or none are.
type ChangeSet struct {
	DocumentID uuid.UUID
	Upserts    []Node
	Deletes    []uuid.UUID
}

// Empty reports whether the change set carries no writes.
func (cs ChangeSet) Empty() bool {
	return len(cs.Upserts) == 0 && len(cs.Deletes) == 0
}
