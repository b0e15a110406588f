package operations

import (
	"errors"
	"testing"
)

func TestNew_ValidOperations(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		pos     int
		content string
		length  int
	}{
		{"insert", KindInsert, 0, "hello", 0},
		{"delete", KindDelete, 3, "", 2},
		{"replace", KindReplace, 1, "x", 4},
		{"retain", KindRetain, 0, "", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op, err := New(NewOperationID(), tc.kind, tc.pos, tc.content, tc.length, "author1", 1)
			if err != nil {
				t.Fatalf("Expected valid operation, got %v", err)
			}
			if op.Kind != tc.kind {
				t.Errorf("Expected kind %s, got %s", tc.kind, op.Kind)
			}
		})
	}
}

func TestNew_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		pos     int
		content string
		length  int
	}{
		{"negative position", KindInsert, -1, "x", 0},
		{"insert without content", KindInsert, 0, "", 0},
		{"insert with length", KindInsert, 0, "x", 1},
		{"delete without length", KindDelete, 0, "", 0},
		{"delete with negative length", KindDelete, 0, "", -2},
		{"delete with content", KindDelete, 0, "x", 1},
		{"replace without content", KindReplace, 0, "", 1},
		{"replace without length", KindReplace, 0, "x", 0},
		{"retain with payload", KindRetain, 0, "x", 0},
		{"unknown kind", Kind("move"), 0, "x", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(NewOperationID(), tc.kind, tc.pos, tc.content, tc.length, "author1", 1)
			if !errors.Is(err, ErrInvalidOperation) {
				t.Errorf("Expected ErrInvalidOperation, got %v", err)
			}
		})
	}
}

func TestNew_RequiresIdentity(t *testing.T) {
	if _, err := New("", KindInsert, 0, "x", 0, "author1", 1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Expected rejection for missing id, got %v", err)
	}
	if _, err := New(NewOperationID(), KindInsert, 0, "x", 0, "", 1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Expected rejection for missing author, got %v", err)
	}
}

func TestContentLen_CountsScalars(t *testing.T) {
	op, err := New(NewOperationID(), KindInsert, 0, "héllo", 0, "author1", 1)
	if err != nil {
		t.Fatalf("Failed to build operation: %v", err)
	}
	if op.ContentLen() != 5 {
		t.Errorf("Expected 5 scalar values, got %d", op.ContentLen())
	}
}

func TestEnd_SpansOnlyDeleteAndReplace(t *testing.T) {
	del, _ := New(NewOperationID(), KindDelete, 2, "", 3, "author1", 1)
	if del.End() != 5 {
		t.Errorf("Expected end 5, got %d", del.End())
	}

	ins, _ := New(NewOperationID(), KindInsert, 2, "abc", 0, "author1", 1)
	if ins.End() != 2 {
		t.Errorf("Insert spans nothing, expected end 2, got %d", ins.End())
	}
}

func TestAsRetain_KeepsIdentity(t *testing.T) {
	op, err := New(NewOperationID(), KindDelete, 2, "", 3, "author1", 7)
	if err != nil {
		t.Fatalf("Failed to build operation: %v", err)
	}

	retain := op.AsRetain()
	if retain.Kind != KindRetain || retain.Length != 0 || retain.Content != "" {
		t.Errorf("Expected bare retain, got %+v", retain)
	}
	if retain.ID != op.ID || retain.Author != op.Author || retain.LogicalTime != op.LogicalTime {
		t.Errorf("Retain must keep id, author and logical time")
	}
	if op.Kind != KindDelete {
		t.Errorf("AsRetain must not mutate the receiver")
	}
}

func TestBefore_TotalOrder(t *testing.T) {
	early := Operation{Author: "bob", LogicalTime: 3}
	late := Operation{Author: "alice", LogicalTime: 5}

	if !Before(early, late) {
		t.Errorf("Lower logical time must order first regardless of author")
	}
	if Before(late, early) {
		t.Errorf("Ordering must be antisymmetric")
	}

	a := Operation{Author: "alice", LogicalTime: 5}
	z := Operation{Author: "zoe", LogicalTime: 5}
	if !Before(a, z) {
		t.Errorf("Equal logical times fall back to author id ordering")
	}
	if Before(a, a) {
		t.Errorf("Ordering must be irreflexive")
	}
}

func TestNewAuthorID_Deterministic(t *testing.T) {
	if NewAuthorID("alice") != NewAuthorID("alice") {
		t.Errorf("Author ids must be stable per name")
	}
	if NewAuthorID("alice") == NewAuthorID("bob") {
		t.Errorf("Distinct names must not collide")
	}
}

func TestNewOperationID_Unique(t *testing.T) {
	seen := make(map[OperationID]bool)
	for i := 0; i < 100; i++ {
		id := NewOperationID()
		if seen[id] {
			t.Fatalf("Duplicate operation id %s", id)
		}
		seen[id] = true
	}
}
