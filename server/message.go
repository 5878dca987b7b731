package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

// Message types sent by clients.
const (
	MsgJoin   = "join"
	MsgLeave  = "leave"
	MsgInsert = "insert"
	MsgMove   = "move"
	MsgUpdate = "update"
	MsgDelete = "delete"
)

// Message types sent by the server. Node events use the outline.Kind*
// constants as their type verbatim.
const (
	MsgOutline = "outline"
	MsgJoined  = "joined"
	MsgLeft    = "left"
	MsgAck     = "ack"
	MsgError   = "error"
)

// ClientMessage is a message from client to server. Seq is an arbitrary
// client-chosen number echoed back on the matching ack or error.
type ClientMessage struct {
	Type     string     `json:"type"`
	Seq      int64      `json:"seq,omitempty"`
	DocID    uuid.UUID  `json:"docId,omitempty"`
	NodeID   *uuid.UUID `json:"nodeId,omitempty"`
	ParentID *uuid.UUID `json:"parentId,omitempty"`
	PrevID   *uuid.UUID `json:"prevId,omitempty"`
	Content  string     `json:"content,omitempty"`
	Policy   string     `json:"policy,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type      string         `json:"type"`
	Seq       int64          `json:"seq,omitempty"`
	DocID     string         `json:"docId,omitempty"`
	Nodes     []outline.Node `json:"nodes,omitempty"`
	Node      *outline.Node  `json:"node,omitempty"`
	NodeID    *uuid.UUID     `json:"nodeId,omitempty"`
	NextID    *uuid.UUID     `json:"nextId,omitempty"`
	OldPrevID *uuid.UUID     `json:"oldPrevId,omitempty"`
	OldNextID *uuid.UUID     `json:"oldNextId,omitempty"`
	Content   string         `json:"content,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	Children  []outline.Node `json:"reparentedChildren,omitempty"`
	ClientID  string         `json:"clientId,omitempty"`
	Name      string         `json:"name,omitempty"`
	Color     string         `json:"color,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Clients   []ClientInfo   `json:"clients,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

func idRef(id uuid.UUID) *uuid.UUID {
	return &id
}

// eventMessage flattens a node event into the frame sent to clients.
func eventMessage(ev outline.Event) ServerMessage {
	switch e := ev.(type) {
	case outline.NodeInserted:
		n := e.Node
		return ServerMessage{
			Type:   e.Kind(),
			DocID:  n.DocumentID.String(),
			Node:   &n,
			NextID: e.NextID,
		}
	case outline.NodeMoved:
		n := e.Node
		return ServerMessage{
			Type:      e.Kind(),
			DocID:     n.DocumentID.String(),
			Node:      &n,
			NextID:    e.NextID,
			OldPrevID: e.OldPrevID,
			OldNextID: e.OldNextID,
		}
	case outline.NodeContentChanged:
		at := e.UpdatedAt
		return ServerMessage{
			Type:      e.Kind(),
			DocID:     e.DocumentID.String(),
			NodeID:    idRef(e.NodeID),
			Content:   e.Content,
			UpdatedAt: &at,
		}
	case outline.NodeDeleted:
		n := e.Node
		return ServerMessage{
			Type:     e.Kind(),
			DocID:    n.DocumentID.String(),
			Node:     &n,
			NodeID:   idRef(n.ID),
			NextID:   e.NextID,
			Children: e.ReparentedChildren,
		}
	}
	return ServerMessage{}
}

// parsePolicy maps the wire policy names onto a ChildPolicy. Empty selects
// promotion.
func parsePolicy(s string) (outline.ChildPolicy, error) {
	switch s {
	case "", "promote":
		return outline.PromoteChildren, nil
	case "cascade":
		return outline.CascadeDelete, nil
	default:
		return outline.PromoteChildren, fmt.Errorf("unknown delete policy %q", s)
	}
}
