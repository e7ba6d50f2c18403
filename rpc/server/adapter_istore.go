package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, store rstore.IStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTKVPut:
		err := store.Put(req.Key, req.Value)
		code, hint := errorDetails(err)
		return common.NewPutResponse(code, hint, err)
	case common.MsgTKVDelete:
		err := store.Delete(req.Key)
		code, hint := errorDetails(err)
		return common.NewDeleteResponse(code, hint, err)
	case common.MsgTKVGet:
		val, ok, err := store.Get(req.Key, rstore.ReadMode(req.Mode))
		code, hint := errorDetails(err)
		return common.NewGetResponse(val, ok, code, hint, err)
	case common.MsgTKVTxn:
		ops := make([]rstore.WriteOp, len(req.Ops))
		for i, op := range req.Ops {
			ops[i] = rstore.WriteOp{
				Delete: op.Kind == common.TxnOpDelete,
				Key:    op.Key,
				Value:  op.Value,
			}
		}
		err := store.Txn(ops)
		code, hint := errorDetails(err)
		return common.NewTxnResponse(code, hint, err)
	case common.MsgTMemberAdd:
		err := store.AddMember(req.MemberID, req.MemberAddr)
		code, hint := errorDetails(err)
		return common.NewMemberResponse(common.MsgTMemberAdd, code, hint, err)
	case common.MsgTMemberRemove:
		err := store.RemoveMember(req.MemberID)
		code, hint := errorDetails(err)
		return common.NewMemberResponse(common.MsgTMemberRemove, code, hint, err)
	case common.MsgTStatus:
		status, err := store.Status()
		if err != nil {
			return common.NewStatusResponse(nil, err)
		}
		meta, err := json.Marshal(common.StatusInfo{
			NodeID:       status.ID,
			Role:         status.Role.String(),
			Term:         status.Term,
			LeaderID:     status.LeaderID,
			LeaderHint:   status.LeaderAddr,
			CommitIndex:  status.CommitIndex,
			AppliedIndex: status.AppliedIndex,
			Members:      status.Configuration.Members,
		})
		return common.NewStatusResponse(meta, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsuported message type: %s", req.MsgType),
		)
	}
}

// errorDetails extracts the return code and leader hint from a store error.
// A nil error maps to RetCSuccess; errors that are not a *rstore.Error are
// reported as internal errors.
func errorDetails(err error) (uint64, string) {
	if err == nil {
		return uint64(rstore.RetCSuccess), ""
	}
	var kvErr *rstore.Error
	if errors.As(err, &kvErr) {
		return uint64(kvErr.Code), kvErr.LeaderHint
	}
	return uint64(rstore.RetCInternalError), ""
}
