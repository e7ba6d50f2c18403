package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Transaction Operations
// --------------------------------------------------------------------------

// TxnOpKind tags a single operation inside a transaction request.
type TxnOpKind uint8

const (
	TxnOpPut TxnOpKind = iota
	TxnOpDelete
)

// TxnOp is one operation of an all-or-nothing transaction. A transaction is
// replicated as a single log entry, so either every op is applied or none is.
type TxnOp struct {
	Kind  TxnOpKind `json:"kind"`
	Key   string    `json:"key"`
	Value []byte    `json:"value,omitempty"`
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string  `json:"key,omitempty"`   // Used for: Put, Get, Delete
	Value []byte  `json:"value,omitempty"` // Used for: Put (request), Get (response)
	Mode  uint8   `json:"mode,omitempty"`  // Used for: Get (0 = leader read, 1 = snapshot read)
	Ops   []TxnOp `json:"ops,omitempty"`   // Used for: Txn requests

	// Membership fields
	MemberID   string `json:"member_id,omitempty"`   // Used for: AddMember, RemoveMember
	MemberAddr string `json:"member_addr,omitempty"` // Used for: AddMember

	// Response only fields
	Ok         bool   `json:"ok,omitempty"`          // Used for: Get responses (key found)
	Err        string `json:"err,omitempty"`         // Empty if no error, otherwise contains the error message
	Code       uint64 `json:"code,omitempty"`        // Machine readable error code (see lib/rstore return codes)
	LeaderHint string `json:"leader_hint,omitempty"` // Set on not-leader errors: endpoint of the current leader

	// Meta information (e.g. JSON encoded cluster status for Status responses)
	Meta []byte `json:"meta,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewPutRequest creates a new Put request
func NewPutRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVPut,
		Key:     key,
		Value:   value,
	}
}

// NewPutResponse creates a new Put response
func NewPutResponse(code uint64, leaderHint string, err error) *Message {
	msg := &Message{
		MsgType:    MsgTKVPut,
		Code:       code,
		LeaderHint: leaderHint,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(code uint64, leaderHint string, err error) *Message {
	msg := &Message{
		MsgType:    MsgTKVDelete,
		Code:       code,
		LeaderHint: leaderHint,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new Get request with the given read mode
func NewGetRequest(key string, mode uint8) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
		Mode:    mode,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, code uint64, leaderHint string, err error) *Message {
	msg := &Message{
		MsgType:    MsgTKVGet,
		Value:      value,
		Ok:         ok,
		Code:       code,
		LeaderHint: leaderHint,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewTxnRequest creates a new Txn request
func NewTxnRequest(ops []TxnOp) *Message {
	return &Message{
		MsgType: MsgTKVTxn,
		Ops:     ops,
	}
}

// NewTxnResponse creates a new Txn response
func NewTxnResponse(code uint64, leaderHint string, err error) *Message {
	msg := &Message{
		MsgType:    MsgTKVTxn,
		Code:       code,
		LeaderHint: leaderHint,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewAddMemberRequest creates a new AddMember request
func NewAddMemberRequest(id, addr string) *Message {
	return &Message{
		MsgType:    MsgTMemberAdd,
		MemberID:   id,
		MemberAddr: addr,
	}
}

// NewRemoveMemberRequest creates a new RemoveMember request
func NewRemoveMemberRequest(id string) *Message {
	return &Message{
		MsgType:  MsgTMemberRemove,
		MemberID: id,
	}
}

// NewMemberResponse creates a response for AddMember/RemoveMember requests
func NewMemberResponse(msgType MessageType, code uint64, leaderHint string, err error) *Message {
	msg := &Message{
		MsgType:    msgType,
		Code:       code,
		LeaderHint: leaderHint,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewStatusRequest creates a new Status request
func NewStatusRequest() *Message {
	return &Message{MsgType: MsgTStatus}
}

// NewStatusResponse creates a new Status response; meta carries the JSON
// encoded cluster status
func NewStatusResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTStatus,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVPut:
		return "put"
	case MsgTKVDelete:
		return "delete"
	case MsgTKVGet:
		return "get"
	case MsgTKVTxn:
		return "txn"
	case MsgTMemberAdd:
		return "memberAdd"
	case MsgTMemberRemove:
		return "memberRemove"
	case MsgTStatus:
		return "status"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "put":
		*t = MsgTKVPut
	case "delete":
		*t = MsgTKVDelete
	case "get":
		*t = MsgTKVGet
	case "txn":
		*t = MsgTKVTxn
	case "memberAdd":
		*t = MsgTMemberAdd
	case "memberRemove":
		*t = MsgTMemberRemove
	case "status":
		*t = MsgTStatus
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// KV operations

	MsgTKVPut    // Put a key-value pair
	MsgTKVDelete // Delete a key-value pair
	MsgTKVGet    // Get a value by key
	MsgTKVTxn    // Apply a batch of operations atomically

	// Cluster operations

	MsgTMemberAdd    // Add a replica to the cluster
	MsgTMemberRemove // Remove a replica from the cluster
	MsgTStatus       // Query replica / cluster status
)

// --------------------------------------------------------------------------
// Cluster Status
// --------------------------------------------------------------------------

// StatusInfo is the JSON payload of a Status response.
type StatusInfo struct {
	NodeID       string            `json:"node_id"`
	Role         string            `json:"role"`
	Term         uint64            `json:"term"`
	LeaderID     string            `json:"leader_id,omitempty"`
	LeaderHint   string            `json:"leader_hint,omitempty"`
	CommitIndex  uint64            `json:"commit_index"`
	AppliedIndex uint64            `json:"applied_index"`
	Members      map[string]string `json:"members"`
}
