package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/common"
	"github.com/rkv-db/rkv/rpc/serializer"
	"github.com/rkv-db/rkv/rpc/transport"
)

var (
	Logger = common.GetLogger("rpc")
)

// retryBackoff is the delay between retries of a request that failed with a
// retryable return code (e.g. during a leader election).
const retryBackoff = 100 * time.Millisecond

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and retries it as long as the replica answers with a
// retryable return code (not leader, no leader, timeout). The transport
// round-robins over all configured endpoints, so a retry after a NotLeader
// response reaches a different replica and eventually the current leader.
// The number of retries is bounded by the configured retry count.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.Transport.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff)
		}

		resp, err := invokeRPCRequest(req, a.transport, a.serializer)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var storeErr *rstore.Error
		if !errors.As(err, &storeErr) || !storeErr.Code.Retryable() {
			return nil, err
		}
		if storeErr.LeaderHint != "" {
			Logger.Debugf("Retrying request %s, current leader is at %s", req.MsgType, storeErr.LeaderHint)
		} else {
			Logger.Debugf("Retrying request %s: %s", req.MsgType, storeErr.Msg)
		}
	}

	return nil, lastErr
}

// invokeRPCRequest is a helper function used to send RPC requests
// It takes a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
//
// Error responses that carry a machine readable return code are surfaced as
// *rstore.Error so callers can decide whether to retry or redirect to the
// leader endpoint contained in the hint.
func invokeRPCRequest(req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("RPC IStoreAdapter - Error: %s", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError {
		return nil, fmt.Errorf("RPC IStoreAdapter - Error: %s", resp.Err)
	}
	if resp.Err != "" {
		if resp.LeaderHint != "" {
			return nil, rstore.NewLeaderError(rstore.RetCode(resp.Code), resp.Err, resp.LeaderHint)
		}
		return nil, rstore.NewError(rstore.RetCode(resp.Code), resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC IStoreAdapter - Unexpected message type: %s, exected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
