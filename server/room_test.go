package server

import (
	"testing"

	"github.com/google/uuid"

	"github.com/outlinehq/go-outline-editor/outline"
)

func TestRoom_Presence(t *testing.T) {
	srv, _ := newTestServer(t)
	docID := uuid.New()

	conn1 := wsConnect(t, srv)
	snap1 := wsJoin(t, conn1, docID)
	if len(snap1.Clients) != 1 {
		t.Fatalf("clients = %d, want 1", len(snap1.Clients))
	}
	selfID := snap1.Clients[0].ID

	conn2 := wsConnect(t, srv)
	snap2 := wsJoin(t, conn2, docID)
	if len(snap2.Clients) != 2 {
		t.Errorf("clients = %d, want 2", len(snap2.Clients))
	}

	joined := readWsMsg(t, conn1)
	if joined.Type != MsgJoined {
		t.Fatalf("expected joined, got %q", joined.Type)
	}
	if joined.ClientID == "" || joined.ClientID == selfID {
		t.Errorf("joined clientId = %q, want another client", joined.ClientID)
	}
	if joined.Name == "" || joined.Color == "" {
		t.Errorf("joined frame missing presence fields: %+v", joined)
	}

	conn2.Close()
	left := readWsMsg(t, conn1)
	if left.Type != MsgLeft {
		t.Fatalf("expected left, got %q", left.Type)
	}
	if left.ClientID != joined.ClientID {
		t.Errorf("left clientId = %q, want %q", left.ClientID, joined.ClientID)
	}
}

func TestRoom_SwitchDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	docA := uuid.New()
	docB := uuid.New()
	restInsert(t, srv, docB, nil, nil, "in b")

	conn := wsConnect(t, srv)
	wsJoin(t, conn, docA)

	// Joining another document implicitly leaves the first.
	snap := wsJoin(t, conn, docB)
	if snap.DocID != docB.String() {
		t.Errorf("docId = %q, want %q", snap.DocID, docB)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].Content != "in b" {
		t.Errorf("snapshot = %v, want the b node", snap.Nodes)
	}
}

func TestRoom_JoinRequiresDocID(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := wsConnect(t, srv)
	if err := conn.WriteJSON(ClientMessage{Type: MsgJoin}); err != nil {
		t.Fatal(err)
	}
	msg := readWsMsg(t, conn)
	if msg.Type != MsgError {
		t.Fatalf("expected error, got %q", msg.Type)
	}
	if msg.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", msg.Code, codeBadRequest)
	}
}

func TestRoom_MutationRequiresJoin(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := wsConnect(t, srv)
	if err := conn.WriteJSON(ClientMessage{Type: MsgInsert, Seq: 7, Content: "x"}); err != nil {
		t.Fatal(err)
	}
	msg := readWsMsg(t, conn)
	if msg.Type != MsgError {
		t.Fatalf("expected error, got %q", msg.Type)
	}
	if msg.Seq != 7 {
		t.Errorf("seq = %d, want 7", msg.Seq)
	}
	if msg.Code != codeBadRequest {
		t.Errorf("code = %q, want %q", msg.Code, codeBadRequest)
	}
}

func TestRoom_ErrorFrames(t *testing.T) {
	srv, _ := newTestServer(t)
	docID := uuid.New()

	conn := wsConnect(t, srv)
	wsJoin(t, conn, docID)

	// Deleting a node that does not exist reports not_found with the seq.
	missing := uuid.New()
	if err := conn.WriteJSON(ClientMessage{Type: MsgDelete, Seq: 3, NodeID: &missing}); err != nil {
		t.Fatal(err)
	}
	msg := readWsMsg(t, conn)
	if msg.Type != MsgError {
		t.Fatalf("expected error, got %q", msg.Type)
	}
	if msg.Seq != 3 {
		t.Errorf("seq = %d, want 3", msg.Seq)
	}
	if msg.Code != codeNotFound {
		t.Errorf("code = %q, want %q", msg.Code, codeNotFound)
	}

	// A mutation without a node id never reaches the service.
	if err := conn.WriteJSON(ClientMessage{Type: MsgUpdate, Seq: 4, Content: "x"}); err != nil {
		t.Fatal(err)
	}
	msg = readWsMsg(t, conn)
	if msg.Type != MsgError || msg.Code != codeBadRequest {
		t.Fatalf("frame = %+v, want bad_request error", msg)
	}

	// The connection is still usable afterwards.
	if err := conn.WriteJSON(ClientMessage{Type: MsgInsert, Seq: 5, Content: "still here"}); err != nil {
		t.Fatal(err)
	}
	frames := readFrames(t, conn, 2)
	if _, ok := frames[MsgAck]; !ok {
		t.Fatalf("no ack in %v", frames)
	}
}

func TestRoom_RESTEventReachesViewers(t *testing.T) {
	srv, _ := newTestServer(t)
	docID := uuid.New()

	conn := wsConnect(t, srv)
	wsJoin(t, conn, docID)

	node := restInsert(t, srv, docID, nil, nil, "from rest")

	msg := readWsMsg(t, conn)
	if msg.Type != outline.KindNodeInserted {
		t.Fatalf("expected insert event, got %q", msg.Type)
	}
	if msg.Node == nil || msg.Node.ID != node.ID {
		t.Errorf("event node = %v, want %s", msg.Node, node.ID)
	}
	if msg.Node.Content != "from rest" {
		t.Errorf("content = %q, want %q", msg.Node.Content, "from rest")
	}
}
