package document

import "errors"

var (
	// ErrStaleClient means the caller's base version fell out of the
	// retained history window. The caller must resync from a snapshot and
	// resubmit against the current version.
	ErrStaleClient = errors.New("base version older than retained history")

	// ErrFutureVersion means the caller claimed a base version the document
	// has not reached. Only a buggy client can produce it.
	ErrFutureVersion = errors.New("base version ahead of document")
)
