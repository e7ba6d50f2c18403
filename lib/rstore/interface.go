package rstore

import (
	"fmt"

	"github.com/rkv-db/rkv/lib/raft"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ReadMode selects the consistency of a Get.
type ReadMode uint8

const (
	// ReadLinearizable serves the read on the leader after a quorum
	// barrier: the result reflects every write committed before the call.
	ReadLinearizable ReadMode = iota

	// ReadLocal serves the read from the local replica without contacting
	// the leader. The result is a consistent snapshot of the local state
	// machine but may lag behind the leader.
	ReadLocal
)

func (m ReadMode) String() string {
	switch m {
	case ReadLinearizable:
		return "linearizable"
	case ReadLocal:
		return "local"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// IStore is the interface for interacting with the replicated key–value
// store. All write operations return only an error (nil on success), while
// read operations return the requested data along with an error.
//
// Writes and linearizable reads succeed only on the leader; on any other
// replica they fail with RetCNotLeader and, when known, the leader's client
// address as a redirect hint.
type IStore interface {
	// Put inserts or updates a key–value pair.
	Put(key string, value []byte) (err error)
	// Delete deletes a key–value pair.
	Delete(key string) (err error)
	// Get returns the value for a key. The boolean return value indicates
	// whether a value for the key was found.
	Get(key string, mode ReadMode) (value []byte, loaded bool, err error)
	// Txn applies a batch of writes atomically: either every operation in
	// the batch becomes visible or none does.
	Txn(ops []WriteOp) (err error)
	// AddMember adds a replica to the cluster. The call returns once the
	// new configuration is committed.
	AddMember(id, addr string) (err error)
	// RemoveMember removes a replica from the cluster.
	RemoveMember(id string) (err error)
	// Status returns the consensus state of the local replica.
	Status() (raft.Status, error)
	// Close shuts down the replica.
	Close() error
}

// WriteOp is one operation inside a Txn batch.
type WriteOp struct {
	Delete bool
	Key    string
	Value  []byte
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and, for leadership errors, a redirect hint.
type Error struct {
	Code       RetCode // The return code
	Msg        string  // The error message
	LeaderHint string  // Client address of the current leader, if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.LeaderHint != "" {
		return fmt.Sprintf("KVStoreError (code %s): %s (leader: %s)", e.Code, e.Msg, e.LeaderHint)
	}
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewLeaderError creates a leadership Error carrying a redirect hint.
func NewLeaderError(code RetCode, msg, leaderHint string) *Error {
	return &Error{
		Code:       code,
		Msg:        msg,
		LeaderHint: leaderHint,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotLeader                           // 4: Replica is not the leader; retry against the hint.
	RetCNoLeader                            // 5: No leader is currently known; back off and retry.
	RetCTimeout                             // 6: Command timed out; the result is unknown.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotLeader:
		return "NotLeader"
	case RetCNoLeader:
		return "NoLeader"
	case RetCTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}

// Retryable reports whether the operation may be safely retried (possibly
// against a different replica).
func (c RetCode) Retryable() bool {
	switch c {
	case RetCNotLeader, RetCNoLeader, RetCTimeout:
		return true
	default:
		return false
	}
}
