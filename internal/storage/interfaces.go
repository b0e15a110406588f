package storage

import (
	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/operations"
)

// SnapshotStore persists point-in-time document state. Snapshots are the
// resync source for clients that fell out of the rebase window and the
// restore source at process start.
type SnapshotStore interface {
	SaveSnapshot(snap document.Snapshot) error
	LoadSnapshot(documentID string) (document.Snapshot, error)
	ListDocuments() ([]string, error)
	DeleteDocument(documentID string) error
}

// OperationLog persists the rebased form of every applied operation in
// version order. It is an audit/replay record; the engine rebases against
// in-memory history only.
type OperationLog interface {
	AppendOperation(documentID string, op operations.Operation, version uint64) error
	LoadOperationsSince(documentID string, sinceVersion uint64) ([]document.Entry, error)
	LatestVersion(documentID string) (uint64, error)
}

type Store interface {
	SnapshotStore
	OperationLog
	Close() error
}
