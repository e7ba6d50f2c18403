package rstore_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rkv-db/rkv/lib/kv"
	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/lib/raft/transport"
	"github.com/rkv-db/rkv/lib/rstore"
)

// newTestStore boots a single-replica cluster with a bolt-backed state
// machine and returns the replicated store on top of it.
func newTestStore(t *testing.T) rstore.IStore {
	t.Helper()

	dir := t.TempDir()
	db, err := kv.NewBoltStore(filepath.Join(dir, "kv.db"))
	if err != nil {
		t.Fatalf("failed to create kv store: %v", err)
	}

	net := transport.NewInprocNetwork()
	node, err := raft.NewNode(raft.Config{
		ID:                 "n1",
		Addr:               "n1",
		DataDir:            dir,
		Transport:          net.Transport(),
		StateMachine:       rstore.NewStateMachine(db),
		MinElectionTimeout: 50 * time.Millisecond,
		MaxElectionTimeout: 150 * time.Millisecond,
		HeartbeatInterval:  10 * time.Millisecond,
		Bootstrap:          true,
		Members:            map[string]string{"n1": "n1"},
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	if err := node.Start(); err != nil {
		t.Fatalf("failed to start node: %v", err)
	}

	store := rstore.NewReplicatedStore(node, db, 2*time.Second)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStorePutGetDelete tests the basic write and read path through
// consensus
func TestStorePutGetDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put("key", []byte("value")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	value, loaded, err := store.Get("key", rstore.ReadLinearizable)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !loaded || !bytes.Equal(value, []byte("value")) {
		t.Errorf("Get() = %q (found=%v), want value", value, loaded)
	}

	// Local reads see the write too once applied (single replica, the
	// barrier above established visibility).
	value, loaded, err = store.Get("key", rstore.ReadLocal)
	if err != nil {
		t.Fatalf("local get failed: %v", err)
	}
	if !loaded || !bytes.Equal(value, []byte("value")) {
		t.Errorf("local Get() = %q (found=%v), want value", value, loaded)
	}

	if err := store.Delete("key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, loaded, err = store.Get("key", rstore.ReadLinearizable)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded {
		t.Errorf("expected key to be gone after delete")
	}
}

// TestStoreTxn tests atomic batches
func TestStoreTxn(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put("old", []byte("x")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	err := store.Txn([]rstore.WriteOp{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
		{Delete: true, Key: "old"},
	})
	if err != nil {
		t.Fatalf("txn failed: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if _, loaded, _ := store.Get(key, rstore.ReadLinearizable); !loaded {
			t.Errorf("expected %q to be present after txn", key)
		}
	}
	if _, loaded, _ := store.Get("old", rstore.ReadLinearizable); loaded {
		t.Errorf("expected 'old' to be deleted by txn")
	}

	// An empty batch is rejected without going through consensus.
	err = store.Txn(nil)
	assertRetCode(t, err, rstore.RetCInvalidOperation)
}

// TestStoreInvalidKeys tests client-side validation
func TestStoreInvalidKeys(t *testing.T) {
	store := newTestStore(t)

	assertRetCode(t, store.Put("", []byte("v")), rstore.RetCInvalidOperation)
	assertRetCode(t, store.Delete(""), rstore.RetCInvalidOperation)

	_, _, err := store.Get("", rstore.ReadLinearizable)
	assertRetCode(t, err, rstore.RetCInvalidOperation)

	assertRetCode(t, store.Txn([]rstore.WriteOp{{Key: ""}}), rstore.RetCInvalidOperation)
	assertRetCode(t, store.AddMember("", ""), rstore.RetCInvalidOperation)
	assertRetCode(t, store.RemoveMember(""), rstore.RetCInvalidOperation)
}

// TestStoreUnknownReadMode verifies that a read mode outside the defined set
// is rejected instead of silently served locally.
func TestStoreUnknownReadMode(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Get("k", rstore.ReadMode(99))
	assertRetCode(t, err, rstore.RetCUnsupportedOperation)
}

// TestStoreMembershipErrors verifies the mapping of membership errors
func TestStoreMembershipErrors(t *testing.T) {
	store := newTestStore(t)
	waitStoreLeader(t, store)

	// n1 already is a member
	assertRetCode(t, store.AddMember("n1", "n1"), rstore.RetCInvalidOperation)

	// nx is not a member
	assertRetCode(t, store.RemoveMember("nx"), rstore.RetCInvalidOperation)
}

// waitStoreLeader blocks until the single replica elected itself
func waitStoreLeader(t *testing.T, store rstore.IStore) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status, _ := store.Status(); status.Role == raft.RoleLeader {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("replica never became leader")
}

// TestStoreStatus tests the status surface
func TestStoreStatus(t *testing.T) {
	store := newTestStore(t)

	// Wait for the single replica to elect itself.
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := store.Status()
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if status.Role == raft.RoleLeader {
			if status.ID != "n1" || status.LeaderID != "n1" {
				t.Errorf("status = %+v, want self-leader n1", status)
			}
			if !status.Configuration.Contains("n1") {
				t.Errorf("configuration %v does not contain n1", status.Configuration)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("replica never became leader, status = %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// assertRetCode fails the test unless err is an *rstore.Error carrying the
// given return code
func assertRetCode(t *testing.T, err error, want rstore.RetCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error with code %s, got nil", want)
		return
	}
	var kvErr *rstore.Error
	if !errors.As(err, &kvErr) {
		t.Errorf("expected *rstore.Error, got %T (%v)", err, err)
		return
	}
	if kvErr.Code != want {
		t.Errorf("error code = %s, want %s (%v)", kvErr.Code, want, err)
	}
}
