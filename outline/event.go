package outline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds, used as wire tags by transports that relay events.
const (
	KindNodeInserted       = "node_inserted"
	KindNodeMoved          = "node_moved"
	KindNodeContentChanged = "node_content_changed"
	KindNodeDeleted        = "node_deleted"
)

// Event is a committed outline change. Exactly four types implement it:
// NodeInserted, NodeMoved, NodeContentChanged and NodeDeleted. Each carries
// enough positional context for a subscriber to patch its own representation
// without re-fetching the tree.
type Event interface {
	// Kind returns the event's wire tag.
	Kind() string
	// Document returns the document the event belongs to.
	Document() uuid.UUID

	isEvent()
}

// NodeInserted reports a new node. NextID is the sibling that now follows the
// inserted node, nil if it was placed last.
type NodeInserted struct {
	Node   Node       `json:"node"`
	NextID *uuid.UUID `json:"nextId"`
}

func (e NodeInserted) Kind() string        { return KindNodeInserted }
func (e NodeInserted) Document() uuid.UUID { return e.Node.DocumentID }
func (e NodeInserted) isEvent()            {}

// NodeMoved reports a structural move. Node carries the new position; the
// old position is described by OldPrevID and OldNextID so a subscriber can
// detach before attaching.
type NodeMoved struct {
	Node      Node       `json:"node"`
	OldPrevID *uuid.UUID `json:"oldPrevId"`
	OldNextID *uuid.UUID `json:"oldNextId"`
	NextID    *uuid.UUID `json:"nextId"`
}

func (e NodeMoved) Kind() string        { return KindNodeMoved }
func (e NodeMoved) Document() uuid.UUID { return e.Node.DocumentID }
func (e NodeMoved) isEvent()            {}

// NodeContentChanged reports a content edit. Ordering pointers are untouched.
type NodeContentChanged struct {
	DocumentID uuid.UUID `json:"documentId"`
	NodeID     uuid.UUID `json:"nodeId"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (e NodeContentChanged) Kind() string        { return KindNodeContentChanged }
func (e NodeContentChanged) Document() uuid.UUID { return e.DocumentID }
func (e NodeContentChanged) isEvent()            {}

// NodeDeleted reports a removal. Node is the pre-delete snapshot, NextID the
// sibling that closed the gap. ReparentedChildren lists the promoted children
// with their rewritten pointers, in sibling order; it is empty when children
// were deleted recursively or the node had none.
type NodeDeleted struct {
	Node               Node       `json:"node"`
	NextID             *uuid.UUID `json:"nextId"`
	ReparentedChildren []Node     `json:"reparentedChildren"`
}

func (e NodeDeleted) Kind() string        { return KindNodeDeleted }
func (e NodeDeleted) Document() uuid.UUID { return e.Node.DocumentID }
func (e NodeDeleted) isEvent()            {}

// DecodeEvent unmarshals an event payload previously produced by marshaling
// one of the four event types, dispatching on its kind tag.
func DecodeEvent(kind string, data []byte) (Event, error) {
	switch kind {
	case KindNodeInserted:
		var e NodeInserted
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindNodeMoved:
		var e NodeMoved
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindNodeContentChanged:
		var e NodeContentChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindNodeDeleted:
		var e NodeDeleted
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
