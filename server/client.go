package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/outlinehq/go-outline-editor/outline"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// Client represents a single WebSocket connection.
type Client struct {
	ID    string
	Name  string
	Color string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}

	// The room this client is currently in (nil if not joined). closed is
	// set when the read pump winds down so a join in flight does not attach
	// a dead connection.
	mu     sync.Mutex
	room   *Room
	closed bool
}

var (
	adjectives = []string{"Red", "Blue", "Green", "Gold", "Silver", "Purple", "Orange", "Teal", "Coral", "Jade"}
	animals    = []string{"Fox", "Owl", "Bear", "Wolf", "Hawk", "Deer", "Lynx", "Crow", "Dove", "Seal"}
	colors     = []string{"#e74c3c", "#3498db", "#2ecc71", "#f39c12", "#9b59b6", "#1abc9c", "#e67e22", "#00bcd4", "#ff5722", "#8bc34a"}
)

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Client{
		ID:    generateID(),
		Name:  adjectives[r.Intn(len(adjectives))] + " " + animals[r.Intn(len(animals))],
		Color: colors[r.Intn(len(colors))],
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 256),
		quit:  make(chan struct{}),
	}
}

func generateID() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, 8)
	for i := range b {
		b[i] = chars[r.Intn(len(chars))]
	}
	return string(b)
}

// ReadPump reads messages from the WebSocket and routes them.
func (c *Client) ReadPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		r := c.room
		c.room = nil
		c.mu.Unlock()
		if r != nil {
			r.enqueueLeave(c)
		}
		close(c.quit)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Str("client", c.ID).Err(err).Msg("read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(0, codeBadRequest, "invalid message format")
			continue
		}

		switch msg.Type {
		case MsgJoin:
			if msg.DocID == uuid.Nil {
				c.sendError(msg.Seq, codeBadRequest, "docId is required")
				continue
			}
			c.detach()
			c.hub.route(c, msg.DocID)
		case MsgLeave:
			c.detach()
		case MsgInsert, MsgMove, MsgUpdate, MsgDelete:
			c.handleMutation(msg)
		default:
			c.sendError(msg.Seq, codeBadRequest, "unknown message type: "+msg.Type)
		}
	}
}

// detach leaves the current room, if any.
func (c *Client) detach() {
	c.mu.Lock()
	r := c.room
	c.room = nil
	c.mu.Unlock()
	if r != nil {
		r.enqueueLeave(c)
	}
}

// handleMutation runs one edit against the outline service and answers with
// an ack or an error frame. The resulting node event reaches this client
// through its room subscription like everyone else's.
func (c *Client) handleMutation(msg ClientMessage) {
	c.mu.Lock()
	r := c.room
	c.mu.Unlock()
	if r == nil {
		c.sendError(msg.Seq, codeBadRequest, "not joined to a document")
		return
	}

	if msg.Type != MsgInsert && msg.NodeID == nil {
		c.sendError(msg.Seq, codeBadRequest, "nodeId is required")
		return
	}

	ctx := context.Background()
	var (
		nodeID uuid.UUID
		err    error
	)
	switch msg.Type {
	case MsgInsert:
		var ev outline.NodeInserted
		ev, err = c.hub.svc.InsertNode(ctx, r.docID, msg.ParentID, msg.PrevID, msg.Content)
		nodeID = ev.Node.ID
	case MsgMove:
		nodeID = *msg.NodeID
		_, err = c.hub.svc.MoveNode(ctx, r.docID, nodeID, msg.ParentID, msg.PrevID)
	case MsgUpdate:
		nodeID = *msg.NodeID
		_, err = c.hub.svc.UpdateContent(ctx, r.docID, nodeID, msg.Content)
	case MsgDelete:
		var policy outline.ChildPolicy
		policy, err = parsePolicy(msg.Policy)
		if err != nil {
			c.sendError(msg.Seq, codeBadRequest, err.Error())
			return
		}
		nodeID = *msg.NodeID
		_, err = c.hub.svc.DeleteNode(ctx, r.docID, nodeID, policy)
	}
	if err != nil {
		c.sendError(msg.Seq, errorCode(err), err.Error())
		return
	}
	c.sendMsg(ServerMessage{Type: MsgAck, Seq: msg.Seq, NodeID: &nodeID})
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Client) sendMsg(msg ServerMessage) {
	select {
	case c.send <- msg.Encode():
	default:
		// Client too slow to drain its queue; drop the connection rather
		// than silently losing frames.
		c.conn.Close()
	}
}

func (c *Client) sendError(seq int64, code, message string) {
	c.sendMsg(ServerMessage{Type: MsgError, Seq: seq, Code: code, Message: message})
}

func (c *Client) Info() ClientInfo {
	return ClientInfo{ID: c.ID, Name: c.Name, Color: c.Color}
}

// Error codes shared by WebSocket error frames and REST responses.
const (
	codeBadRequest      = "bad_request"
	codeNotFound        = "not_found"
	codeInvalidPosition = "invalid_position"
	codeCycle           = "cycle"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, outline.ErrNotFound):
		return codeNotFound
	case errors.Is(err, outline.ErrInvalidPosition):
		return codeInvalidPosition
	case errors.Is(err, outline.ErrCycle):
		return codeCycle
	case errors.Is(err, outline.ErrDocumentUnavailable):
		return codeUnavailable
	case errors.Is(err, outline.ErrPersistence):
		return codeInternal
	default:
		return codeBadRequest
	}
}
