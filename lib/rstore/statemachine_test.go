package rstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rkv-db/rkv/lib/kv"
	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/lib/rstore/internal"
)

// newTestStateMachine creates a state machine over a fresh bolt store
func newTestStateMachine(t *testing.T) (sm raft.StateMachine, store kv.Store) {
	t.Helper()
	store, err := kv.NewBoltStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewStateMachine(store), store
}

// TestStateMachineApply tests the decoding and application of commands
func TestStateMachineApply(t *testing.T) {
	sm, store := newTestStateMachine(t)

	put := internal.Command{Type: internal.CommandTPut, Key: "k1", Value: []byte("v1")}
	if err := sm.Apply(1, put.Serialize()); err != nil {
		t.Fatalf("apply put failed: %v", err)
	}

	value, loaded, err := store.Get("k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !loaded || !bytes.Equal(value, []byte("v1")) {
		t.Errorf("Get() = %q (found=%v), want %q", value, loaded, "v1")
	}

	del := internal.Command{Type: internal.CommandTDelete, Key: "k1"}
	if err := sm.Apply(2, del.Serialize()); err != nil {
		t.Fatalf("apply delete failed: %v", err)
	}
	if _, loaded, _ := store.Get("k1"); loaded {
		t.Errorf("expected key to be gone after delete")
	}

	batch := internal.Command{Type: internal.CommandTBatch, Ops: []kv.Op{
		{Kind: kv.OpPut, Key: "a", Value: []byte("1")},
		{Kind: kv.OpPut, Key: "b", Value: []byte("2")},
	}}
	if err := sm.Apply(3, batch.Serialize()); err != nil {
		t.Fatalf("apply batch failed: %v", err)
	}
	for _, key := range []string{"a", "b"} {
		if _, loaded, _ := store.Get(key); !loaded {
			t.Errorf("expected %q to be present after batch", key)
		}
	}

	index, err := sm.AppliedIndex()
	if err != nil {
		t.Fatalf("applied index failed: %v", err)
	}
	if index != 3 {
		t.Errorf("AppliedIndex() = %d, want 3", index)
	}
}

// TestStateMachineApplyIdempotent verifies that a replayed entry is a no-op
func TestStateMachineApplyIdempotent(t *testing.T) {
	sm, store := newTestStateMachine(t)

	first := internal.Command{Type: internal.CommandTPut, Key: "k", Value: []byte("first")}
	if err := sm.Apply(4, first.Serialize()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// Replay of the same index with different content must not change state
	second := internal.Command{Type: internal.CommandTPut, Key: "k", Value: []byte("second")}
	if err := sm.Apply(4, second.Serialize()); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	value, _, _ := store.Get("k")
	if !bytes.Equal(value, []byte("first")) {
		t.Errorf("Get() after replay = %q, want %q", value, "first")
	}
}

// TestStateMachineApplyEmptyEntry verifies that entries without a command
// still advance the applied index
func TestStateMachineApplyEmptyEntry(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	if err := sm.Apply(9, nil); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	index, err := sm.AppliedIndex()
	if err != nil {
		t.Fatalf("applied index failed: %v", err)
	}
	if index != 9 {
		t.Errorf("AppliedIndex() = %d, want 9", index)
	}
}

// TestStateMachineApplyInvalidCommand verifies that garbage entries fail
func TestStateMachineApplyInvalidCommand(t *testing.T) {
	sm, _ := newTestStateMachine(t)

	if err := sm.Apply(1, []byte{0xFF, 0x00}); err == nil {
		t.Errorf("apply of garbage data succeeded, want error")
	}
}
