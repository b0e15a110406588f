package collaboration

import (
	"encoding/json"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/operations"
)

// newMockClient builds a connection without a websocket; messages pile up in
// sendChan where the test can inspect them.
func newMockClient(id ClientID, author string) *ClientConnection {
	return &ClientConnection{
		ID:        id,
		AuthorID:  operations.AuthorID(author),
		documents: mapset.NewSet[string](),
		lastSeen:  time.Now(),
		sendChan:  make(chan *Message, 16),
		closeChan: make(chan struct{}),
		logger:    logging.NewLogger("websocket"),
	}
}

func drain(c *ClientConnection) []*Message {
	var msgs []*Message
	for {
		select {
		case msg := <-c.sendChan:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func makeOp(t *testing.T, kind operations.Kind, pos int, content string, length int, author string, lt uint64) operations.Operation {
	t.Helper()

	op, err := operations.New(operations.NewOperationID(), kind, pos, content, length, operations.AuthorID(author), lt)
	if err != nil {
		t.Fatalf("Failed to build operation: %v", err)
	}
	return op
}

func submitRaw(t *testing.T, payload SubmitPayload) rawMessage {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return rawMessage{Type: MsgSubmit, Payload: data, MessageID: "m1"}
}

func TestHub_AddRemoveClient(t *testing.T) {
	hub := NewSessionHub(coordinator.NewRegistry(coordinator.DefaultConfig()))

	client := newMockClient("client1", "alice")
	hub.AddClient(client)
	if hub.ConnectedClients() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ConnectedClients())
	}

	if err := hub.RemoveClient("client1"); err != nil {
		t.Fatalf("RemoveClient failed: %v", err)
	}
	if hub.ConnectedClients() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ConnectedClients())
	}

	if err := hub.RemoveClient("client1"); err != ErrClientNotFound {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}
}

func TestHub_SubmitAcksSenderAndBroadcastsToOthers(t *testing.T) {
	hub := NewSessionHub(coordinator.NewRegistry(coordinator.DefaultConfig()))

	sender := newMockClient("client1", "alice")
	peer := newMockClient("client2", "bob")
	outsider := newMockClient("client3", "carol")
	for _, c := range []*ClientConnection{sender, peer, outsider} {
		hub.AddClient(c)
	}
	sender.SubscribeToDocument("doc1")
	peer.SubscribeToDocument("doc1")

	op := makeOp(t, operations.KindInsert, 0, "hello", 0, "alice", 1)
	hub.HandleMessage(sender, submitRaw(t, SubmitPayload{DocumentID: "doc1", Operation: op, BaseVersion: 0}))

	senderMsgs := drain(sender)
	if len(senderMsgs) != 1 || senderMsgs[0].Type != MsgAcknowledgment {
		t.Fatalf("Expected a single ack for the sender, got %v", senderMsgs)
	}
	ack := senderMsgs[0].Payload.(AckPayload)
	if ack.OperationID != op.ID || ack.Version != 1 {
		t.Errorf("Ack mismatch: %+v", ack)
	}

	peerMsgs := drain(peer)
	if len(peerMsgs) != 1 || peerMsgs[0].Type != MsgOperation {
		t.Fatalf("Expected the rebased operation for the peer, got %v", peerMsgs)
	}
	broadcast := peerMsgs[0].Payload.(OperationPayload)
	if broadcast.Operation.ID != op.ID || broadcast.Version != 1 {
		t.Errorf("Broadcast mismatch: %+v", broadcast)
	}

	if msgs := drain(outsider); len(msgs) != 0 {
		t.Errorf("Unsubscribed client must not receive broadcasts, got %v", msgs)
	}
}

func TestHub_StaleClientGetsSnapshot(t *testing.T) {
	registry := coordinator.NewRegistry(coordinator.Config{HistoryWindow: 2, ImplicitCreate: true})
	hub := NewSessionHub(registry)

	for i := 0; i < 6; i++ {
		if _, err := registry.Submit("doc1", makeOp(t, operations.KindInsert, 0, "x", 0, "seed", uint64(i)), uint64(i)); err != nil {
			t.Fatalf("Seed submit %d failed: %v", i, err)
		}
	}

	client := newMockClient("client1", "alice")
	hub.AddClient(client)

	stale := makeOp(t, operations.KindInsert, 0, "y", 0, "alice", 1)
	hub.HandleMessage(client, submitRaw(t, SubmitPayload{DocumentID: "doc1", Operation: stale, BaseVersion: 1}))

	msgs := drain(client)
	if len(msgs) != 1 || msgs[0].Type != MsgSync {
		t.Fatalf("Expected a sync message, got %v", msgs)
	}
	sync := msgs[0].Payload.(SyncPayload)
	if sync.Version != 6 || sync.Content != "xxxxxx" {
		t.Errorf("Snapshot mismatch: %+v", sync)
	}
}

func TestHub_InvalidOperationGetsTypedError(t *testing.T) {
	hub := NewSessionHub(coordinator.NewRegistry(coordinator.DefaultConfig()))

	client := newMockClient("client1", "alice")
	hub.AddClient(client)

	bad := operations.Operation{ID: "op1", Kind: operations.KindInsert, Position: -1, Content: "x", Author: "alice"}
	hub.HandleMessage(client, submitRaw(t, SubmitPayload{DocumentID: "doc1", Operation: bad, BaseVersion: 0}))

	msgs := drain(client)
	if len(msgs) != 1 || msgs[0].Type != MsgError {
		t.Fatalf("Expected an error message, got %v", msgs)
	}
	payload := msgs[0].Payload.(ErrorPayload)
	if payload.Code != CodeInvalidOperation {
		t.Errorf("Expected code %s, got %s", CodeInvalidOperation, payload.Code)
	}
}

func TestHub_SubscribeDeliversInitialSync(t *testing.T) {
	registry := coordinator.NewRegistry(coordinator.DefaultConfig())
	hub := NewSessionHub(registry)
	registry.Submit("doc1", makeOp(t, operations.KindInsert, 0, "seed", 0, "seed", 1), 0)

	client := newMockClient("client1", "alice")
	hub.AddClient(client)

	data, _ := json.Marshal(SubscribePayload{DocumentID: "doc1"})
	hub.HandleMessage(client, rawMessage{Type: MsgSubscribe, Payload: data, MessageID: "m1"})

	if !client.IsSubscribedTo("doc1") {
		t.Errorf("Client must be subscribed after the subscribe message")
	}

	msgs := drain(client)
	if len(msgs) != 1 || msgs[0].Type != MsgSync {
		t.Fatalf("Expected initial sync, got %v", msgs)
	}
	sync := msgs[0].Payload.(SyncPayload)
	if sync.Content != "seed" || sync.Version != 1 {
		t.Errorf("Sync mismatch: %+v", sync)
	}
}

func TestHub_UnsubscribeStopsBroadcasts(t *testing.T) {
	registry := coordinator.NewRegistry(coordinator.DefaultConfig())
	hub := NewSessionHub(registry)

	sender := newMockClient("client1", "alice")
	peer := newMockClient("client2", "bob")
	hub.AddClient(sender)
	hub.AddClient(peer)
	peer.SubscribeToDocument("doc1")

	data, err := json.Marshal(SubscribePayload{DocumentID: "doc1"})
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	hub.HandleMessage(peer, rawMessage{Type: MsgUnsubscribe, Payload: data, MessageID: "m1"})

	if peer.IsSubscribedTo("doc1") {
		t.Fatalf("Peer must be unsubscribed after the unsubscribe message")
	}

	op := makeOp(t, operations.KindInsert, 0, "hello", 0, "alice", 1)
	hub.HandleMessage(sender, submitRaw(t, SubmitPayload{DocumentID: "doc1", Operation: op, BaseVersion: 0}))

	if msgs := drain(peer); len(msgs) != 0 {
		t.Errorf("Unsubscribed peer must not receive broadcasts, got %v", msgs)
	}
}

func TestHub_UnsupportedMessageType(t *testing.T) {
	hub := NewSessionHub(coordinator.NewRegistry(coordinator.DefaultConfig()))
	client := newMockClient("client1", "alice")
	hub.AddClient(client)

	hub.HandleMessage(client, rawMessage{Type: MessageType("presence"), MessageID: "m1"})

	msgs := drain(client)
	if len(msgs) != 1 || msgs[0].Type != MsgError {
		t.Fatalf("Expected an error message, got %v", msgs)
	}
}
