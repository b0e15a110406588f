package document

import (
	"fmt"

	"github.com/mobius-platform/collabd/internal/operations"
)

// DefaultHistoryWindow bounds the rebase log. A client whose base version
// has fallen out of the window must resynchronize from a snapshot; it never
// gets a silently wrong rebase.
const DefaultHistoryWindow = 256

// Entry is an applied operation together with the version it produced.
type Entry struct {
	Operation operations.Operation `json:"operation"`
	Version   uint64               `json:"version"`
}

// Snapshot is a copied view of a document, safe to hand to persistence or
// resyncing clients while the document keeps changing.
type Snapshot struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Version    uint64 `json:"version"`
}

// Document is the materialized state of one collaboratively edited text.
// It is exclusively owned by its coordinator; nothing here locks, because
// the coordinator serializes all access per document.
type Document struct {
	id      string
	content []rune
	version uint64
	history []Entry
	window  int
}

func New(id string, window int) *Document {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Document{
		id:      id,
		content: []rune{},
		history: make([]Entry, 0, window),
		window:  window,
	}
}

// NewFromSnapshot restores a document from persisted state. Its history is
// empty, so every client older than snap.Version resyncs.
func NewFromSnapshot(snap Snapshot, window int) *Document {
	doc := New(snap.DocumentID, window)
	doc.content = []rune(snap.Content)
	doc.version = snap.Version
	return doc
}

func (d *Document) ID() string      { return d.id }
func (d *Document) Version() uint64 { return d.version }
func (d *Document) Len() int        { return len(d.content) }

func (d *Document) Content() string {
	return string(d.content)
}

func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		DocumentID: d.id,
		Content:    string(d.content),
		Version:    d.version,
	}
}

// HistorySince returns the applied entries after baseVersion, oldest first.
// Returns ErrStaleClient when baseVersion predates the retained window and
// ErrFutureVersion when it is ahead of the document.
func (d *Document) HistorySince(baseVersion uint64) ([]Entry, error) {
	if baseVersion > d.version {
		return nil, fmt.Errorf("%w: base version %d ahead of document version %d", ErrFutureVersion, baseVersion, d.version)
	}
	if baseVersion == d.version {
		return nil, nil
	}
	if len(d.history) == 0 || d.history[0].Version > baseVersion+1 {
		return nil, fmt.Errorf("%w: base version %d predates retained history", ErrStaleClient, baseVersion)
	}

	start := len(d.history) - int(d.version-baseVersion)
	out := make([]Entry, d.version-baseVersion)
	copy(out, d.history[start:])
	return out, nil
}

// Apply splices the operation into the content, records it in the history
// window and advances the version. Bounds violations are rejected before any
// mutation; the document is never left half applied.
func (d *Document) Apply(op operations.Operation) (uint64, error) {
	if err := d.checkBounds(op); err != nil {
		return 0, err
	}

	switch op.Kind {
	case operations.KindInsert:
		d.content = splice(d.content, op.Position, 0, op.Content)
	case operations.KindDelete:
		d.content = splice(d.content, op.Position, op.Length, "")
	case operations.KindReplace:
		d.content = splice(d.content, op.Position, op.Length, op.Content)
	case operations.KindRetain:
		// No content change; still consumes a version so replicas agree on
		// operation counts.
	}

	d.version++
	d.history = append(d.history, Entry{Operation: op, Version: d.version})
	if len(d.history) > d.window {
		d.history = d.history[1:]
	}
	return d.version, nil
}

func (d *Document) checkBounds(op operations.Operation) error {
	if op.Position > len(d.content) {
		return fmt.Errorf("%w: position %d beyond content length %d", operations.ErrInvalidOperation, op.Position, len(d.content))
	}
	if end := op.End(); end > len(d.content) {
		return fmt.Errorf("%w: span [%d,%d) beyond content length %d", operations.ErrInvalidOperation, op.Position, end, len(d.content))
	}
	return nil
}

func splice(content []rune, pos, length int, insert string) []rune {
	out := make([]rune, 0, len(content)-length+len(insert))
	out = append(out, content[:pos]...)
	out = append(out, []rune(insert)...)
	out = append(out, content[pos+length:]...)
	return out
}
