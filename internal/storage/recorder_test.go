package storage

import (
	"fmt"
	"testing"

	"github.com/mobius-platform/collabd/internal/coordinator"
	"github.com/mobius-platform/collabd/internal/document"
)

type fakeSource struct {
	snaps map[string]document.Snapshot
}

func (f *fakeSource) GetSnapshot(documentID string) (document.Snapshot, error) {
	snap, ok := f.snaps[documentID]
	if !ok {
		return document.Snapshot{}, coordinator.ErrUnknownDocument
	}
	return snap, nil
}

func TestRecorder_AppendsAndSnapshotsOnCadence(t *testing.T) {
	store := setupTestStore(t)
	source := &fakeSource{snaps: map[string]document.Snapshot{
		"doc1": {DocumentID: "doc1", Content: "content at 4", Version: 4},
	}}
	recorder := NewRecorder(store, source, 4)

	for i := 1; i <= 6; i++ {
		op := makeOp(t, "insert", 0, fmt.Sprintf("c%d", i), 0, uint64(i))
		recorder.OperationApplied("doc1", coordinator.Result{Operation: op, Version: uint64(i)})
	}
	recorder.Close()

	entries, err := store.LoadOperationsSince("doc1", 0)
	if err != nil {
		t.Fatalf("LoadOperationsSince failed: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("Expected 6 recorded operations, got %d", len(entries))
	}

	// Only version 4 crossed the cadence boundary.
	snap, err := store.LoadSnapshot("doc1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Version != 4 {
		t.Errorf("Expected snapshot at version 4, got %d", snap.Version)
	}
}

func TestRecorder_SurvivesMissingSource(t *testing.T) {
	store := setupTestStore(t)
	recorder := NewRecorder(store, &fakeSource{snaps: map[string]document.Snapshot{}}, 1)

	op := makeOp(t, "insert", 0, "x", 0, 1)
	recorder.OperationApplied("gone", coordinator.Result{Operation: op, Version: 1})
	recorder.Close()

	// The operation record still lands even though the snapshot source had
	// nothing to offer.
	entries, err := store.LoadOperationsSince("gone", 0)
	if err != nil {
		t.Fatalf("LoadOperationsSince failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 recorded operation, got %d", len(entries))
	}
}
