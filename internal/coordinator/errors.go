package coordinator

import "errors"

var (
	// ErrUnknownDocument is returned when implicit creation is disabled and
	// no document state exists for the requested id.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrInternal marks invariant violations inside the engine. A document
	// that produced one refuses further mutation until Reset.
	ErrInternal = errors.New("internal invariant violation")
)
