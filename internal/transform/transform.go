// Package transform implements the pairwise operational-transform rules that
// keep concurrent edits convergent. Every function here is pure: operations
// go in by value and rewritten copies come out, so a transform can never
// corrupt the history it is folded against.
package transform

import (
	"fmt"

	"github.com/mobius-platform/collabd/internal/operations"
)

// Against rebases a over b, where b was already applied and happened
// concurrently from a's perspective. Applying b then Against(a, b) yields the
// same document as the intended concurrent application of both in either
// order.
func Against(a, b operations.Operation) (operations.Operation, error) {
	if a.Kind == operations.KindRetain || b.Kind == operations.KindRetain {
		return a, nil
	}

	// A replace is a delete and an insert at the same offset. Decomposing b
	// keeps the pairwise rules below exhaustive over insert/delete alone.
	if b.Kind == operations.KindReplace {
		del := b
		del.Kind = operations.KindDelete
		del.Content = ""
		ins := b
		ins.Kind = operations.KindInsert
		ins.Length = 0

		out, err := Against(a, del)
		if err != nil {
			return operations.Operation{}, err
		}
		if out.Kind == operations.KindRetain {
			return out, nil
		}
		if out.Kind == operations.KindInsert {
			// The surviving insert sits at the replacement text's own offset.
			// Two replaces over the identical span race on equal terms and
			// tie-break; every other survivor lands on the side of the
			// replacement text that the mirror-image transform puts it on.
			if a.Kind == operations.KindReplace && a.Position == b.Position && a.Length == b.Length {
				return insertOverInsert(out, ins), nil
			}
			if a.Position > b.Position {
				out.Position += ins.ContentLen()
			}
			return out, nil
		}
		return Against(out, ins)
	}

	var out operations.Operation
	switch {
	case isInsert(a) && b.Kind == operations.KindInsert:
		out = insertOverInsert(a, b)
	case isInsert(a) && b.Kind == operations.KindDelete:
		out = insertOverDelete(a, b)
	case isDelete(a) && b.Kind == operations.KindInsert:
		out = deleteOverInsert(a, b)
	case isDelete(a) && b.Kind == operations.KindDelete:
		out = deleteOverDelete(a, b)
	default:
		return operations.Operation{}, fmt.Errorf("%w: transform of %q over %q", ErrInvariantViolation, a.Kind, b.Kind)
	}

	if out.Position < 0 || out.Length < 0 {
		// A rule producing a negative offset means the engine itself is
		// broken. Clamping here would hide replica divergence, so fail loudly.
		return operations.Operation{}, fmt.Errorf("%w: transform produced position=%d length=%d for operation %s",
			ErrInvariantViolation, out.Position, out.Length, out.ID)
	}
	return out, nil
}

// AgainstAll folds a left-to-right over a history slice. The slice must be in
// application order; reordering it would break convergence.
func AgainstAll(a operations.Operation, history []operations.Operation) (operations.Operation, error) {
	out := a
	var err error
	for _, b := range history {
		out, err = Against(out, b)
		if err != nil {
			return operations.Operation{}, err
		}
	}
	return out, nil
}

// isInsert treats a replace's insert half as positioned at a.Position; its
// deleted span is handled by the delete rules.
func isInsert(a operations.Operation) bool {
	return a.Kind == operations.KindInsert
}

func isDelete(a operations.Operation) bool {
	return a.Kind == operations.KindDelete || a.Kind == operations.KindReplace
}

func insertOverInsert(a, b operations.Operation) operations.Operation {
	switch {
	case b.Position < a.Position:
		a.Position += b.ContentLen()
	case b.Position == a.Position:
		// Simultaneous insert at the same point: the lower
		// (logical_time, author) tuple counts as earlier and keeps its
		// offset; the other shifts past it.
		if operations.Before(b, a) {
			a.Position += b.ContentLen()
		}
	}
	return a
}

func insertOverDelete(a, b operations.Operation) operations.Operation {
	switch {
	case b.End() <= a.Position:
		// Everything b removed sits before a; slide left by the full span.
		a.Position -= b.Length
	case b.Position < a.Position:
		// a targets a point strictly inside the span b already deleted.
		// The dual of the delete-absorbs-insert policy: had the orders been
		// reversed, the delete would have swallowed this text, so the
		// insert is annihilated here as well. Keeping it would leave the
		// two replicas disagreeing about whether the text exists.
		return a.AsRetain()
	}
	// Inserts at or before the deleted span's start keep their offset.
	return a
}

func deleteOverInsert(a, b operations.Operation) operations.Operation {
	switch {
	case b.Position <= a.Position:
		a.Position += b.ContentLen()
	case b.Position < a.Position+a.Length:
		// The insert landed strictly inside the span being deleted. Policy:
		// the delete absorbs it, removing the originally intended span plus
		// the concurrently inserted text.
		a.Length += b.ContentLen()
	}
	return a
}

func deleteOverDelete(a, b operations.Operation) operations.Operation {
	// Units b removed strictly before a's start slide a left.
	shift := min(b.End(), a.Position) - b.Position
	if shift < 0 {
		shift = 0
	}

	// Whatever both wanted gone is already gone; a keeps only its remainder.
	// The overlapping span is attributed to the lower (logical_time, author)
	// tuple, but content-wise both replicas end up without it either way.
	overlap := min(a.End(), b.End()) - max(a.Position, b.Position)
	if overlap < 0 {
		overlap = 0
	}

	// b's span swallowing a's with room on both sides puts a's offset
	// strictly inside the erased region, where an insert cannot stand.
	buried := b.Position < a.Position && b.End() > a.End()

	a.Position -= shift
	a.Length -= overlap
	if a.Length == 0 {
		if a.Kind == operations.KindReplace && !buried {
			// The span is gone but the replacement text sits at the erasure's
			// edge, where the mirror-image transform keeps it. It lives on as
			// a plain insert; only a replace buried strictly inside the
			// concurrent span loses its text, the same way a bare insert
			// there is annihilated.
			a.Kind = operations.KindInsert
			return a
		}
		// Fully consumed: degrade to a retain rather than dropping the
		// operation, so version and replay bookkeeping stay intact.
		return a.AsRetain()
	}
	return a
}
