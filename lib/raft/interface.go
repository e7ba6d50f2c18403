package raft

import (
	"context"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// State Machine Interface
// --------------------------------------------------------------------------

// StateMachine is the deterministic consumer of committed log entries.
// Entries are applied in strict index order, exactly once: re-applying an
// index at or below AppliedIndex must be a no-op.
//
// Apply is called with nil data for entries that carry no state machine
// command (noop and configuration entries); the implementation must still
// durably advance its applied index.
type StateMachine interface {
	Apply(index uint64, data []byte) error
	AppliedIndex() (uint64, error)
	Snapshot(w io.Writer) (appliedIndex uint64, err error)
	Restore(r io.Reader) error
}

// --------------------------------------------------------------------------
// Peer RPC Messages
// --------------------------------------------------------------------------

type MessageKind uint8

const (
	MsgRequestVote MessageKind = iota
	MsgRequestVoteResp
	MsgAppendEntries
	MsgAppendEntriesResp
	MsgInstallSnapshot
	MsgInstallSnapshotResp
)

func (k MessageKind) String() string {
	switch k {
	case MsgRequestVote:
		return "RequestVote"
	case MsgRequestVoteResp:
		return "RequestVoteResp"
	case MsgAppendEntries:
		return "AppendEntries"
	case MsgAppendEntriesResp:
		return "AppendEntriesResp"
	case MsgInstallSnapshot:
		return "InstallSnapshot"
	case MsgInstallSnapshotResp:
		return "InstallSnapshotResp"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// RequestVoteRequest asks for a vote in the candidate's term.
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesRequest replicates entries (or, with an empty entry list,
// serves as a heartbeat). ReadSeq is echoed back by the follower and lets
// the leader attribute responses to a read-index barrier round.
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []Entry
	LeaderCommit uint64
	ReadSeq      uint64
}

type AppendEntriesResponse struct {
	Term    uint64
	Success bool
	// MatchIndex is the follower's highest index known to match the
	// leader's log (on success: the last replicated index; on failure: a
	// hint for faster conflict resolution).
	MatchIndex uint64
	ReadSeq    uint64
}

// InstallSnapshotRequest ships a full snapshot to a follower whose required
// log entries have been compacted away.
type InstallSnapshotRequest struct {
	Term              uint64
	LeaderID          string
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Configuration     Configuration
	Data              []byte
}

type InstallSnapshotResponse struct {
	Term    uint64
	Success bool
}

// Message is the tagged union transported between peers. Exactly one of the
// payload pointers is set, matching Kind.
type Message struct {
	Kind MessageKind
	From string

	Vote         *RequestVoteRequest
	VoteResp     *RequestVoteResponse
	Append       *AppendEntriesRequest
	AppendResp   *AppendEntriesResponse
	Snapshot     *InstallSnapshotRequest
	SnapshotResp *InstallSnapshotResponse
}

// Term returns the term carried by the message payload.
func (m *Message) Term() uint64 {
	switch m.Kind {
	case MsgRequestVote:
		return m.Vote.Term
	case MsgRequestVoteResp:
		return m.VoteResp.Term
	case MsgAppendEntries:
		return m.Append.Term
	case MsgAppendEntriesResp:
		return m.AppendResp.Term
	case MsgInstallSnapshot:
		return m.Snapshot.Term
	case MsgInstallSnapshotResp:
		return m.SnapshotResp.Term
	default:
		return 0
	}
}

func (m *Message) String() string {
	return fmt.Sprintf("%s{from: %s, term: %d}", m.Kind, m.From, m.Term())
}

// --------------------------------------------------------------------------
// Transport Interface
// --------------------------------------------------------------------------

// RPCHandler processes an incoming peer message and returns the response.
type RPCHandler func(req *Message) *Message

// Transport moves peer RPCs between replicas. Implementations must be safe
// for concurrent Send calls.
type Transport interface {
	// Serve starts accepting peer RPCs on addr, dispatching them to handler.
	// It returns once the listener is set up.
	Serve(addr string, handler RPCHandler) error

	// Send delivers req to the replica at addr and returns its response.
	Send(ctx context.Context, addr string, req *Message) (*Message, error)

	// Close shuts the transport down.
	Close() error
}
