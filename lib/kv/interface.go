package kv

import (
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Operation Types
// --------------------------------------------------------------------------

// OpKind tags a single logical store operation.
type OpKind uint8

const (
	OpPut OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "Put"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Op is one logical operation against the store. A slice of Ops passed to
// Apply is committed in a single storage transaction.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// StoreFactory is a function type that creates a new Store.
// This is used to abstract the creation of the store from its users.
type StoreFactory func() (Store, error)

// Store is the local transactional store adapter. It wraps an embedded
// transactional KV engine and ties every mutation to a log index: Apply
// commits the given operations and the new applied index in one atomic
// transaction, which is what makes re-application after a crash a no-op.
//
// Implementations must provide snapshot-isolated reads: Get and Snapshot may
// run concurrently with Apply without observing partial transactions.
type Store interface {
	// Get returns the value for a key. The boolean return value indicates
	// whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)

	// Apply atomically applies all ops and advances the applied index to
	// index. If index is not greater than the current applied index the call
	// is a no-op and returns nil (idempotent re-application).
	Apply(index uint64, ops []Op) error

	// AppliedIndex returns the index of the last applied operation batch.
	AppliedIndex() (uint64, error)

	// Snapshot writes a consistent point-in-time copy of the whole store to
	// w and returns the applied index the copy corresponds to. Writes may
	// proceed concurrently; they are not part of the copy.
	Snapshot(w io.Writer) (appliedIndex uint64, err error)

	// Restore replaces the entire store content with the snapshot read from
	// r. The applied index contained in the snapshot becomes the store's
	// applied index.
	Restore(r io.Reader) error

	// Close closes the store.
	Close() error
}
