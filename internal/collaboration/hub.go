package collaboration

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/operations"
)

// rawMessage is the wire envelope before the payload is decoded per type.
type rawMessage struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	MessageID string          `json:"message_id"`
}

// SessionHub is the calling layer around the coordinator registry: it owns
// the connected sessions, routes submissions into the registry and fans the
// rebased operations back out. Retry and resync policy lives here, never in
// the engine: a stale client gets a fresh snapshot, an invalid operation
// gets an error and is dropped.
type SessionHub struct {
	registry *coordinator.Registry
	clients  map[ClientID]*ClientConnection
	origins  map[operations.OperationID]ClientID
	logger   *logging.Logger
	mutex    sync.RWMutex
}

func NewSessionHub(registry *coordinator.Registry) *SessionHub {
	hub := &SessionHub{
		registry: registry,
		clients:  make(map[ClientID]*ClientConnection),
		origins:  make(map[operations.OperationID]ClientID),
		logger:   logging.NewLogger("collaboration"),
	}
	registry.AddCollaborator(hub)
	return hub
}

func (h *SessionHub) AddClient(client *ClientConnection) {
	h.mutex.Lock()
	h.clients[client.ID] = client
	h.mutex.Unlock()

	h.logger.LogClientConnect(string(client.ID), string(client.AuthorID))
}

func (h *SessionHub) RemoveClient(clientID ClientID) error {
	h.mutex.Lock()
	client, exists := h.clients[clientID]
	if !exists {
		h.mutex.Unlock()
		return ErrClientNotFound
	}
	delete(h.clients, clientID)
	h.mutex.Unlock()

	client.Close()
	h.logger.LogClientDisconnect(string(clientID))
	return nil
}

func (h *SessionHub) ConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleMessage dispatches one decoded envelope from a client's read pump.
func (h *SessionHub) HandleMessage(client *ClientConnection, raw rawMessage) {
	switch raw.Type {
	case MsgSubmit:
		var payload SubmitPayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			h.sendError(client, CodeInvalidOperation, fmt.Sprintf("malformed submit payload: %v", err))
			return
		}
		h.handleSubmit(client, payload)

	case MsgSubscribe:
		var payload SubscribePayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			h.sendError(client, CodeInvalidOperation, fmt.Sprintf("malformed subscribe payload: %v", err))
			return
		}
		h.handleSubscribe(client, payload.DocumentID)

	case MsgUnsubscribe:
		var payload SubscribePayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			h.sendError(client, CodeInvalidOperation, fmt.Sprintf("malformed unsubscribe payload: %v", err))
			return
		}
		client.UnsubscribeFromDocument(payload.DocumentID)

	default:
		h.sendError(client, CodeInvalidOperation, fmt.Sprintf("unsupported message type %q", raw.Type))
	}
}

func (h *SessionHub) handleSubmit(client *ClientConnection, payload SubmitPayload) {
	op := payload.Operation

	// Remember who sent it so the fan-out can skip them; the collaborator
	// callback fires synchronously inside Submit.
	h.mutex.Lock()
	h.origins[op.ID] = client.ID
	h.mutex.Unlock()
	defer func() {
		h.mutex.Lock()
		delete(h.origins, op.ID)
		h.mutex.Unlock()
	}()

	res, err := h.registry.Submit(payload.DocumentID, op, payload.BaseVersion)
	if err != nil {
		h.submitFailed(client, payload.DocumentID, err)
		return
	}

	ack := &Message{
		Type: MsgAcknowledgment,
		Payload: AckPayload{
			DocumentID:  payload.DocumentID,
			OperationID: op.ID,
			Operation:   res.Operation,
			Version:     res.Version,
		},
		MessageID: newMessageID(),
		Timestamp: time.Now(),
		AuthorID:  op.Author,
	}
	if err := client.SendMessage(ack); err != nil {
		h.logger.LogBroadcastError(string(client.ID), err)
	}
}

// submitFailed maps the engine's error taxonomy onto the client's recovery
// path: stale clients get a snapshot to resync from, everything else gets a
// typed error.
func (h *SessionHub) submitFailed(client *ClientConnection, documentID string, err error) {
	switch {
	case errors.Is(err, document.ErrStaleClient):
		snap, snapErr := h.registry.GetSnapshot(documentID)
		if snapErr != nil {
			h.sendError(client, CodeInternal, snapErr.Error())
			return
		}
		h.sendSync(client, snap)

	case errors.Is(err, operations.ErrInvalidOperation):
		h.sendError(client, CodeInvalidOperation, err.Error())

	case errors.Is(err, coordinator.ErrUnknownDocument):
		h.sendError(client, CodeUnknownDocument, err.Error())

	default:
		h.sendError(client, CodeInternal, err.Error())
	}
}

func (h *SessionHub) handleSubscribe(client *ClientConnection, documentID string) {
	snap, err := h.registry.Open(documentID, nil)
	if err != nil {
		h.sendError(client, CodeUnknownDocument, err.Error())
		return
	}

	client.SubscribeToDocument(documentID)
	h.sendSync(client, snap)
}

// OperationApplied implements coordinator.Collaborator: every applied
// operation is fanned out verbatim to the document's other sessions.
func (h *SessionHub) OperationApplied(documentID string, res coordinator.Result) {
	msg := &Message{
		Type: MsgOperation,
		Payload: OperationPayload{
			DocumentID: documentID,
			Operation:  res.Operation,
			Version:    res.Version,
		},
		MessageID: newMessageID(),
		Timestamp: time.Now(),
		AuthorID:  res.Operation.Author,
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	origin := h.origins[res.Operation.ID]
	for clientID, client := range h.clients {
		if clientID == origin {
			continue
		}
		if client.IsSubscribedTo(documentID) {
			if err := client.SendMessage(msg); err != nil {
				h.logger.LogBroadcastError(string(clientID), err)
			}
		}
	}
}

func (h *SessionHub) sendSync(client *ClientConnection, snap document.Snapshot) {
	msg := &Message{
		Type: MsgSync,
		Payload: SyncPayload{
			DocumentID: snap.DocumentID,
			Content:    snap.Content,
			Version:    snap.Version,
		},
		MessageID: newMessageID(),
		Timestamp: time.Now(),
		AuthorID:  client.AuthorID,
	}
	if err := client.SendMessage(msg); err != nil {
		h.logger.LogBroadcastError(string(client.ID), err)
	}
}

func (h *SessionHub) sendError(client *ClientConnection, code, message string) {
	msg := &Message{
		Type:      MsgError,
		Payload:   ErrorPayload{Code: code, Message: message},
		MessageID: newMessageID(),
		Timestamp: time.Now(),
		AuthorID:  client.AuthorID,
	}
	if err := client.SendMessage(msg); err != nil {
		h.logger.LogBroadcastError(string(client.ID), err)
	}
}

func newMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
