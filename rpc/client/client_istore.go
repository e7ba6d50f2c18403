package client

import (
	"encoding/json"
	"fmt"

	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/common"
	"github.com/rkv-db/rkv/rpc/serializer"
	"github.com/rkv-db/rkv/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a config, a transport and a serializer as parameters
// It returns an rstore.IStore and an error
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (rstore.IStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := rpcStore{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC store
	return &s, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the rstore package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Put(key string, value []byte) (err error) {
	req := common.NewPutRequest(key, value)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) Delete(key string) (err error) {
	req := common.NewDeleteRequest(key)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) Get(key string, mode rstore.ReadMode) (value []byte, loaded bool, err error) {
	req := common.NewGetRequest(key, uint8(mode))
	resp, err := i.invoke(req)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Txn(ops []rstore.WriteOp) (err error) {
	wireOps := make([]common.TxnOp, len(ops))
	for idx, op := range ops {
		kind := common.TxnOpPut
		if op.Delete {
			kind = common.TxnOpDelete
		}
		wireOps[idx] = common.TxnOp{Kind: kind, Key: op.Key, Value: op.Value}
	}
	req := common.NewTxnRequest(wireOps)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) AddMember(id, addr string) (err error) {
	req := common.NewAddMemberRequest(id, addr)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) RemoveMember(id string) (err error) {
	req := common.NewRemoveMemberRequest(id)
	_, err = i.invoke(req)
	return err
}

func (i *rpcStore) Status() (raft.Status, error) {
	req := common.NewStatusRequest()
	resp, err := i.invoke(req)
	if err != nil {
		return raft.Status{}, err
	}

	var info common.StatusInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return raft.Status{}, fmt.Errorf("failed to decode status: %s", err)
	}

	return raft.Status{
		ID:            info.NodeID,
		Role:          roleFromString(info.Role),
		Term:          info.Term,
		LeaderID:      info.LeaderID,
		LeaderAddr:    info.LeaderHint,
		CommitIndex:   info.CommitIndex,
		AppliedIndex:  info.AppliedIndex,
		Configuration: raft.Configuration{Members: info.Members},
	}, nil
}

// Close closes the underlying transport connections
func (i *rpcStore) Close() error {
	return i.transport.Close()
}

func roleFromString(role string) raft.Role {
	switch role {
	case "leader":
		return raft.RoleLeader
	case "candidate":
		return raft.RoleCandidate
	default:
		return raft.RoleFollower
	}
}
