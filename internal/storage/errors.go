package storage

import "errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrStoreClosed      = errors.New("store is closed")
)
