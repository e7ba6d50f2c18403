package rstore

import (
	"context"
	"errors"
	"time"

	"github.com/rkv-db/rkv/lib/kv"
	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/lib/rstore/internal"
	"github.com/rkv-db/rkv/rpc/common"
)

var (
	retries = 5
	log     = common.GetLogger("store")
)

// storeImpl is the concrete implementation of the IStore interface. It
// routes writes and linearizable reads through the consensus node and serves
// local reads straight from the state machine's store.
type storeImpl struct {
	node    *raft.Node
	kv      kv.Store
	timeout time.Duration
}

// NewReplicatedStore creates a store backed by the given consensus node. The
// kv.Store must be the same instance the node's state machine applies to.
func NewReplicatedStore(node *raft.Node, store kv.Store, timeout time.Duration) IStore {
	return &storeImpl{
		node:    node,
		kv:      store,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and proposes it. Leaderless periods are retried
// with backoff; leadership errors carry a redirect hint for the caller.
func (s *storeImpl) write(cmd internal.Command) error {
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.node.Propose(ctx, data)
		cancel()

		if errors.Is(err, raft.ErrNoLeader) {
			log.Infof("Propose: no leader, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		return s.translate(err, "write failed")
	}
	return NewError(RetCNoLeader, "no leader elected within retry budget")
}

// barrier establishes a linearizable read point on the leader.
func (s *storeImpl) barrier() error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.node.Barrier(ctx)
		cancel()

		if errors.Is(err, raft.ErrNoLeader) {
			log.Infof("Barrier: no leader, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		return s.translate(err, "read barrier failed")
	}
	return NewError(RetCNoLeader, "no leader elected within retry budget")
}

// translate maps consensus errors onto the store's error taxonomy.
func (s *storeImpl) translate(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, raft.ErrNotLeader):
		return NewLeaderError(RetCNotLeader, msg+": not leader", s.leaderHint())
	case errors.Is(err, raft.ErrNoLeader):
		return NewLeaderError(RetCNoLeader, msg+": no known leader", "")
	case errors.Is(err, raft.ErrLeadershipLost):
		// The command may still commit; the caller must treat the result
		// as unknown.
		return NewError(RetCTimeout, msg+": leadership lost before commit was confirmed")
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(RetCTimeout, msg+": "+err.Error())
	case errors.Is(err, raft.ErrConfigInProgress),
		errors.Is(err, raft.ErrAlreadyMember),
		errors.Is(err, raft.ErrNotMember):
		return NewError(RetCInvalidOperation, msg+": "+err.Error())
	default:
		return NewError(RetCInternalError, msg+": "+err.Error())
	}
}

func (s *storeImpl) leaderHint() string {
	return s.node.Status().LeaderAddr
}

// --------------------------------------------------------------------------
// Interface Methods (docs see interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Put(key string, value []byte) error {
	if key == "" {
		return NewError(RetCInvalidOperation, "key must not be empty")
	}
	return s.write(internal.Command{Type: internal.CommandTPut, Key: key, Value: value})
}

func (s *storeImpl) Delete(key string) error {
	if key == "" {
		return NewError(RetCInvalidOperation, "key must not be empty")
	}
	return s.write(internal.Command{Type: internal.CommandTDelete, Key: key})
}

func (s *storeImpl) Get(key string, mode ReadMode) ([]byte, bool, error) {
	if key == "" {
		return nil, false, NewError(RetCInvalidOperation, "key must not be empty")
	}

	switch mode {
	case ReadLinearizable:
		if err := s.barrier(); err != nil {
			return nil, false, err
		}
	case ReadLocal:
		// Served straight from the local replica.
	default:
		return nil, false, NewError(RetCUnsupportedOperation, "unknown read mode: "+mode.String())
	}

	value, loaded, err := s.kv.Get(key)
	if err != nil {
		return nil, false, NewError(RetCInternalError, err.Error())
	}
	return value, loaded, nil
}

func (s *storeImpl) Txn(ops []WriteOp) error {
	if len(ops) == 0 {
		return NewError(RetCInvalidOperation, "transaction must contain at least one operation")
	}

	kvOps := make([]kv.Op, len(ops))
	for i, op := range ops {
		if op.Key == "" {
			return NewError(RetCInvalidOperation, "key must not be empty")
		}
		kind := kv.OpPut
		if op.Delete {
			kind = kv.OpDelete
		}
		kvOps[i] = kv.Op{Kind: kind, Key: op.Key, Value: op.Value}
	}

	return s.write(internal.Command{Type: internal.CommandTBatch, Ops: kvOps})
}

func (s *storeImpl) AddMember(id, addr string) error {
	if id == "" || addr == "" {
		return NewError(RetCInvalidOperation, "member id and address must not be empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.translate(s.node.AddMember(ctx, id, addr), "add member failed")
}

func (s *storeImpl) RemoveMember(id string) error {
	if id == "" {
		return NewError(RetCInvalidOperation, "member id must not be empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.translate(s.node.RemoveMember(ctx, id), "remove member failed")
}

func (s *storeImpl) Status() (raft.Status, error) {
	return s.node.Status(), nil
}

func (s *storeImpl) Close() error {
	s.node.Stop()
	return s.kv.Close()
}
