package storage

import (
	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/document"
	"github.com/mobius-platform/collabd/internal/logging"
)

// DefaultSnapshotEvery is how many applied operations pass between persisted
// snapshots of a document.
const DefaultSnapshotEvery = 16

// SnapshotSource is the read-side view of the registry the recorder needs.
type SnapshotSource interface {
	GetSnapshot(documentID string) (document.Snapshot, error)
}

type record struct {
	documentID string
	res        coordinator.Result
}

// Recorder is the persistence collaborator: it receives every applied
// operation from the registry, appends it to the durable operation log, and
// saves a full snapshot every N operations. Writes happen on a worker
// goroutine so the per-document critical section never waits on disk.
type Recorder struct {
	store    Store
	source   SnapshotSource
	every    uint64
	incoming chan record
	done     chan struct{}
	logger   *logging.Logger
}

func NewRecorder(store Store, source SnapshotSource, snapshotEvery uint64) *Recorder {
	if snapshotEvery == 0 {
		snapshotEvery = DefaultSnapshotEvery
	}
	r := &Recorder{
		store:    store,
		source:   source,
		every:    snapshotEvery,
		incoming: make(chan record, 1024),
		done:     make(chan struct{}),
		logger:   logging.NewLogger("recorder"),
	}
	go r.run()
	return r
}

// OperationApplied implements coordinator.Collaborator. It never blocks: if
// the write queue is full the record is dropped and the next snapshot will
// still capture the content.
func (r *Recorder) OperationApplied(documentID string, res coordinator.Result) {
	select {
	case r.incoming <- record{documentID: documentID, res: res}:
	default:
		r.logger.Warn("Persistence queue full, dropping operation record", map[string]interface{}{
			"document_id":  documentID,
			"operation_id": string(res.Operation.ID),
		})
	}
}

// Close drains pending records and stops the worker.
func (r *Recorder) Close() {
	close(r.incoming)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	for rec := range r.incoming {
		if err := r.store.AppendOperation(rec.documentID, rec.res.Operation, rec.res.Version); err != nil {
			r.logger.LogPersistenceError(rec.documentID, err)
			continue
		}
		if rec.res.Version%r.every == 0 {
			r.snapshot(rec.documentID)
		}
	}
}

func (r *Recorder) snapshot(documentID string) {
	snap, err := r.source.GetSnapshot(documentID)
	if err != nil {
		r.logger.LogPersistenceError(documentID, err)
		return
	}
	if err := r.store.SaveSnapshot(snap); err != nil {
		r.logger.LogPersistenceError(documentID, err)
	}
}
