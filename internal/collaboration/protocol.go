package collaboration

import (
	"time"

	"github.com/mobius-platform/collabd/internal/operations"
)

type MessageType string

const (
	MsgSubmit         MessageType = "submit"
	MsgOperation      MessageType = "operation"
	MsgAcknowledgment MessageType = "ack"
	MsgSync           MessageType = "sync"
	MsgSubscribe      MessageType = "subscribe"
	MsgUnsubscribe    MessageType = "unsubscribe"
	MsgError          MessageType = "error"
)

type Message struct {
	Type      MessageType         `json:"type"`
	Payload   interface{}         `json:"payload"`
	MessageID string              `json:"message_id"`
	Timestamp time.Time           `json:"timestamp"`
	AuthorID  operations.AuthorID `json:"author_id"`
}

// SubmitPayload is a client asking the engine to apply an edit it made
// against BaseVersion of the document.
type SubmitPayload struct {
	DocumentID  string               `json:"document_id"`
	Operation   operations.Operation `json:"operation"`
	BaseVersion uint64               `json:"base_version"`
}

// OperationPayload carries a rebased operation to every other session
// subscribed to the document. It must be applied verbatim.
type OperationPayload struct {
	DocumentID string               `json:"document_id"`
	Operation  operations.Operation `json:"operation"`
	Version    uint64               `json:"version"`
}

// AckPayload confirms a submission back to its sender.
type AckPayload struct {
	DocumentID  string                 `json:"document_id"`
	OperationID operations.OperationID `json:"operation_id"`
	Operation   operations.Operation   `json:"operation"`
	Version     uint64                 `json:"version"`
}

// SyncPayload carries a full snapshot. Sent on subscribe and whenever a
// client's base version is too old to rebase.
type SyncPayload struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Version    uint64 `json:"version"`
}

// SubscribePayload attaches or detaches a session to a document's broadcast
// set, depending on the message type carrying it.
type SubscribePayload struct {
	DocumentID string `json:"document_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes mirror the engine's error taxonomy so clients can pick a
// recovery path without string matching.
const (
	CodeInvalidOperation = "invalid_operation"
	CodeStaleClient      = "stale_client"
	CodeUnknownDocument  = "unknown_document"
	CodeInternal         = "internal"
)
