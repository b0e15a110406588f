package operations

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

type OperationID string

func NewOperationID() OperationID {
	return OperationID(uuid.NewString())
}

type AuthorID string

func NewAuthorID(name string) AuthorID {
	hash := sha3.Sum256([]byte(name))
	return AuthorID(hex.EncodeToString(hash[:]))
}

type Kind string

const (
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
	KindRetain  Kind = "retain"
	KindReplace Kind = "replace"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindDelete, KindRetain, KindReplace:
		return true
	}
	return false
}

// Operation is an immutable description of a single edit. Position and
// Length are measured in Unicode scalar values, not bytes, so the same
// offsets are valid on every replica regardless of encoding.
type Operation struct {
	ID          OperationID `json:"id"`
	Kind        Kind        `json:"kind"`
	Position    int         `json:"position"`
	Content     string      `json:"content,omitempty"`
	Length      int         `json:"length,omitempty"`
	Author      AuthorID    `json:"author"`
	LogicalTime uint64      `json:"logical_time"`
}

// New validates and constructs an operation. Bounds against the current
// document content are checked at apply time; everything checkable from the
// operation alone is checked here. Violations are rejected, never clamped.
func New(id OperationID, kind Kind, position int, content string, length int, author AuthorID, logicalTime uint64) (Operation, error) {
	op := Operation{
		ID:          id,
		Kind:        kind,
		Position:    position,
		Content:     content,
		Length:      length,
		Author:      author,
		LogicalTime: logicalTime,
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

func (op Operation) Validate() error {
	if op.ID == "" {
		return fmt.Errorf("%w: missing operation id", ErrInvalidOperation)
	}
	if op.Author == "" {
		return fmt.Errorf("%w: missing author", ErrInvalidOperation)
	}
	if !op.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, op.Position)
	}
	switch op.Kind {
	case KindInsert:
		if op.Content == "" {
			return fmt.Errorf("%w: insert requires content", ErrInvalidOperation)
		}
		if op.Length != 0 {
			return fmt.Errorf("%w: insert must not carry a length", ErrInvalidOperation)
		}
	case KindDelete:
		if op.Length <= 0 {
			return fmt.Errorf("%w: delete requires a positive length", ErrInvalidOperation)
		}
		if op.Content != "" {
			return fmt.Errorf("%w: delete must not carry content", ErrInvalidOperation)
		}
	case KindReplace:
		if op.Content == "" {
			return fmt.Errorf("%w: replace requires content", ErrInvalidOperation)
		}
		if op.Length <= 0 {
			return fmt.Errorf("%w: replace requires a positive length", ErrInvalidOperation)
		}
	case KindRetain:
		if op.Content != "" || op.Length != 0 {
			return fmt.Errorf("%w: retain carries no payload", ErrInvalidOperation)
		}
	}
	return nil
}

// ContentLen is the inserted payload's span in Unicode scalar values.
func (op Operation) ContentLen() int {
	return utf8.RuneCountInString(op.Content)
}

// End is the exclusive end of the span the operation removes from the
// pre-operation content. Inserts and retains span nothing.
func (op Operation) End() int {
	switch op.Kind {
	case KindDelete, KindReplace:
		return op.Position + op.Length
	default:
		return op.Position
	}
}

// AsRetain returns a retain no-op carrying the operation's identity. Used
// when a transform consumes an operation entirely; the operation still
// occupies a history slot so duplicate-submission detection keeps working.
func (op Operation) AsRetain() Operation {
	op.Kind = KindRetain
	op.Content = ""
	op.Length = 0
	return op
}

// Before reports whether a is ordered ahead of b in the deterministic
// tie-break order: logical time ascending, then author id ascending. Every
// replica applies the same total order, which is why wall-clock time never
// participates.
func Before(a, b Operation) bool {
	if a.LogicalTime != b.LogicalTime {
		return a.LogicalTime < b.LogicalTime
	}
	return a.Author < b.Author
}
