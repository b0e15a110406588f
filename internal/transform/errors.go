package transform

import "errors"

// ErrInvariantViolation means a transform rule produced an impossible
// operation. It is a bug in the engine, never in the client; the coordinator
// refuses further writes to the affected document when it sees one.
var ErrInvariantViolation = errors.New("transform invariant violation")
