package operations

import "errors"

// ErrInvalidOperation covers every construction-time rejection: bad kind,
// negative position, missing or extraneous payload. Callers should treat it
// as a client bug and discard the edit rather than retry.
var ErrInvalidOperation = errors.New("invalid operation")
