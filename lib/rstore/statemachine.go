package rstore

import (
	"fmt"
	"io"

	"github.com/rkv-db/rkv/lib/kv"
	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/lib/rstore/internal"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// kvStateMachine adapts a kv.Store to the consensus layer: committed log
// entries are decoded into store operations and applied atomically together
// with the entry index, which makes re-application after a crash a no-op.
type kvStateMachine struct {
	store kv.Store
}

// NewStateMachine wraps the given store for use as the replicated state
// machine of a consensus node.
func NewStateMachine(store kv.Store) raft.StateMachine {
	return &kvStateMachine{store: store}
}

// Apply executes one committed entry. Entries without a command (nil data)
// still advance the durable applied index.
func (fsm *kvStateMachine) Apply(index uint64, data []byte) error {
	if len(data) == 0 {
		return fsm.store.Apply(index, nil)
	}

	cmd := internal.Command{}
	if err := cmd.Deserialize(data); err != nil {
		return fmt.Errorf("failed to deserialize command at index %d: %w", index, err)
	}
	ops, err := cmd.ToOps()
	if err != nil {
		return fmt.Errorf("invalid command at index %d: %w", index, err)
	}

	return fsm.store.Apply(index, ops)
}

func (fsm *kvStateMachine) AppliedIndex() (uint64, error) {
	return fsm.store.AppliedIndex()
}

func (fsm *kvStateMachine) Snapshot(w io.Writer) (uint64, error) {
	return fsm.store.Snapshot(w)
}

func (fsm *kvStateMachine) Restore(r io.Reader) error {
	return fsm.store.Restore(r)
}
