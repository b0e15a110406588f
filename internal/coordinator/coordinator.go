// Package coordinator serializes edits per document. A Registry owns every
// live Document, rebases each submitted operation through the history the
// submitting client has not seen, applies it, and hands the rebased form to
// the broadcast collaborator for fan-out.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/logging"
	"github.com/mobius-platform/collabd/internal/operations"
	"github.com/mobius-platform/collabd/internal/transform"
)

// Result is what a successful submission yields: the operation as actually
// applied and the version it produced. Duplicate submissions of the same
// operation id get the recorded Result back without reapplying.
type Result struct {
	Operation operations.Operation `json:"operation"`
	Version   uint64               `json:"version"`
}

// Collaborator receives every applied operation: the broadcast collaborator
// fans it out to other sessions, the persistence collaborator records it.
// Implementations must not block; they are invoked inside the per-document
// critical section so the notification order matches the version order.
type Collaborator interface {
	OperationApplied(documentID string, res Result)
}

// Config controls registry behavior.
type Config struct {
	// HistoryWindow bounds each document's rebase log.
	HistoryWindow int
	// ImplicitCreate makes Submit create unknown documents on first use.
	// When disabled, Submit and GetSnapshot return ErrUnknownDocument.
	ImplicitCreate bool
}

func DefaultConfig() Config {
	return Config{
		HistoryWindow:  document.DefaultHistoryWindow,
		ImplicitCreate: true,
	}
}

// docState pairs a document with its exclusion primitive and replay record.
// The mutex serializes Submit per document; documents never contend with
// each other.
type docState struct {
	mu       sync.Mutex
	doc      *document.Document
	results  map[operations.OperationID]Result
	resultBy []operations.OperationID // oldest first, evicted with history
	poisoned bool
}

type Registry struct {
	mu            sync.RWMutex
	documents     map[string]*docState
	config        Config
	collaborators []Collaborator
	logger        *logging.Logger
}

func NewRegistry(config Config) *Registry {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = document.DefaultHistoryWindow
	}
	return &Registry{
		documents: make(map[string]*docState),
		config:    config,
		logger:    logging.NewLogger("coordinator"),
	}
}

// AddCollaborator wires a fan-out or persistence collaborator. Must be
// called before submissions begin; the registry does no locking around it.
func (r *Registry) AddCollaborator(c Collaborator) {
	r.collaborators = append(r.collaborators, c)
}

// Open creates the document if it does not exist and returns its snapshot.
// Used by the calling layer for explicit opens and for restoring persisted
// documents at startup.
func (r *Registry) Open(documentID string, snap *document.Snapshot) (document.Snapshot, error) {
	st := r.getOrCreate(documentID, snap)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.doc.Snapshot(), nil
}

// Submit rebases op against everything applied since baseVersion, applies
// it, and returns the rebased operation with the new version. See the
// package comment for the full contract.
func (r *Registry) Submit(documentID string, op operations.Operation, baseVersion uint64) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, err
	}

	st, err := r.lookup(documentID)
	if err != nil {
		return Result{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.poisoned {
		return Result{}, fmt.Errorf("%w: document %s refuses writes until reset", ErrInternal, documentID)
	}

	// Client retry of an operation we already applied: replay the recorded
	// outcome, mutate nothing.
	if res, ok := st.results[op.ID]; ok {
		r.logger.LogDuplicateSubmission(documentID, string(op.ID))
		return res, nil
	}

	entries, err := st.doc.HistorySince(baseVersion)
	if err != nil {
		if errors.Is(err, document.ErrStaleClient) {
			r.logger.LogStaleClient(documentID, baseVersion, st.doc.Version())
		}
		if errors.Is(err, document.ErrFutureVersion) {
			err = fmt.Errorf("%w: %v", operations.ErrInvalidOperation, err)
		}
		return Result{}, err
	}

	concurrent := make([]operations.Operation, len(entries))
	for i, e := range entries {
		concurrent[i] = e.Operation
	}

	rebased, err := transform.AgainstAll(op, concurrent)
	if err != nil {
		// A transform invariant violation means this document's state can no
		// longer be trusted to converge. Poison it rather than guess.
		st.poisoned = true
		r.logger.LogDocumentPoisoned(documentID, err)
		return Result{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	version, err := st.doc.Apply(rebased)
	if err != nil {
		return Result{}, err
	}

	res := Result{Operation: rebased, Version: version}
	r.recordResult(st, op.ID, res)
	r.logger.LogOperationApplied(documentID, string(op.ID), version)

	for _, c := range r.collaborators {
		c.OperationApplied(documentID, res)
	}
	return res, nil
}

// GetSnapshot returns the current content and version, bypassing transform
// entirely. This is the resync path for stale clients.
func (r *Registry) GetSnapshot(documentID string) (document.Snapshot, error) {
	st, err := r.lookup(documentID)
	if err != nil {
		return document.Snapshot{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.doc.Snapshot(), nil
}

// Reset discards a poisoned document's state and reinstalls it from the
// given snapshot. Manual recovery only; healthy documents cannot be reset.
func (r *Registry) Reset(documentID string, snap document.Snapshot) error {
	st, err := r.lookup(documentID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.poisoned {
		return fmt.Errorf("%w: document %s is healthy", ErrInternal, documentID)
	}
	st.doc = document.NewFromSnapshot(snap, r.config.HistoryWindow)
	st.results = make(map[operations.OperationID]Result)
	st.resultBy = nil
	st.poisoned = false
	r.logger.LogDocumentReset(documentID, snap.Version)
	return nil
}

// Evict drops a document from memory, e.g. when its last session leaves.
// The calling layer is responsible for persisting a snapshot first.
func (r *Registry) Evict(documentID string) {
	r.mu.Lock()
	delete(r.documents, documentID)
	r.mu.Unlock()
}

func (r *Registry) lookup(documentID string) (*docState, error) {
	r.mu.RLock()
	st, ok := r.documents[documentID]
	r.mu.RUnlock()
	if ok {
		return st, nil
	}
	if !r.config.ImplicitCreate {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}
	return r.getOrCreate(documentID, nil), nil
}

func (r *Registry) getOrCreate(documentID string, snap *document.Snapshot) *docState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.documents[documentID]; ok {
		return st
	}
	var doc *document.Document
	if snap != nil {
		doc = document.NewFromSnapshot(*snap, r.config.HistoryWindow)
	} else {
		doc = document.New(documentID, r.config.HistoryWindow)
	}
	st := &docState{
		doc:     doc,
		results: make(map[operations.OperationID]Result),
	}
	r.documents[documentID] = st
	return st
}

// recordResult remembers the outcome for replay detection, bounded by the
// same window as the history log: once an operation can no longer take part
// in a rebase, its replay record goes too.
func (r *Registry) recordResult(st *docState, id operations.OperationID, res Result) {
	st.results[id] = res
	st.resultBy = append(st.resultBy, id)
	if len(st.resultBy) > r.config.HistoryWindow {
		evicted := st.resultBy[0]
		st.resultBy = st.resultBy[1:]
		delete(st.results, evicted)
	}
}
