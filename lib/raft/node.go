package raft

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rkv-db/rkv/rpc/common"
)

// --------------------------------------------------------------------------
// Roles
// --------------------------------------------------------------------------

type Role uint8

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Status is a point-in-time snapshot of a node's consensus state.
type Status struct {
	ID            string
	Role          Role
	Term          uint64
	LeaderID      string
	LeaderAddr    string
	CommitIndex   uint64
	AppliedIndex  uint64
	Configuration Configuration
}

// --------------------------------------------------------------------------
// Internal Requests
// --------------------------------------------------------------------------

type rpcEnvelope struct {
	req    *Message
	respCh chan *Message
}

type proposeReq struct {
	data   []byte
	respCh chan error
}

type proposeWaiter struct {
	term   uint64
	respCh chan error
}

type readReq struct {
	respCh chan error
}

type readWaiter struct {
	seq       uint64
	readIndex uint64
	acks      map[string]bool
	confirmed bool
	respCh    chan error
}

type memberOp uint8

const (
	memberAdd memberOp = iota
	memberRemove
)

type memberReq struct {
	op     memberOp
	id     string
	addr   string
	respCh chan error
}

// memberWaiter tracks a two-phase configuration change driven by this leader.
type memberWaiter struct {
	jointIndex    uint64
	finalIndex    uint64 // 0 until the final configuration has been appended
	finalProposed bool
	respCh        chan error
}

// peerResponse carries an asynchronous RPC result back into the event loop.
type peerResponse struct {
	peer      string
	reqTerm   uint64 // our term when the request was sent
	snapIndex uint64 // InstallSnapshot only: last included index that was sent
	msg       *Message
	err       error
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is a single consensus replica. All consensus state is owned by the
// run goroutine; external goroutines interact exclusively through channels.
type Node struct {
	cfg    Config
	id     string
	logger common.ILogger
	mtr    *nodeMetrics

	log    *Log
	stable *stableStore
	snaps  *snapshotStore
	sm     StateMachine

	// volatile consensus state, run-goroutine only
	role        Role
	term        uint64
	votedFor    string
	leaderID    string
	commitIndex uint64
	lastApplied uint64

	// latestConfig is the most recent configuration entry present in the
	// log or snapshot; it governs quorums and elections from the moment it
	// is appended. appliedConfig lags behind it and reflects the
	// configuration activated by the applier. snapBaseConfig is the
	// configuration stored with the latest snapshot; it anchors the
	// recomputation of latestConfig after a conflicting suffix is
	// truncated.
	latestConfig   Configuration
	appliedConfig  Configuration
	snapBaseConfig Configuration

	peers        map[string]*peerState // leader only
	votesGranted map[string]bool       // candidate only
	noopIndex    uint64                // index of this leader's term-opening noop

	proposals    map[uint64]*proposeWaiter
	readSeq      uint64
	pendingReads []*readWaiter
	memberChange *memberWaiter

	// apply pipeline
	applyCh     chan applyJob
	lastQueued  uint64 // highest index handed to the applier
	progress    *applyProgress
	applyNotify chan struct{}

	rpcCh     chan rpcEnvelope
	proposeCh chan *proposeReq
	readCh    chan *readReq
	memberCh  chan *memberReq
	statusCh  chan chan Status
	respCh    chan peerResponse

	electionTimer *time.Timer
	rand          *rand.Rand

	stopOnce sync.Once
	stopCh   chan struct{}
	loopDone chan struct{}
	workers  sync.WaitGroup

	fatalMu  sync.Mutex
	fatalErr error
}

// NewNode recovers a replica from DataDir (creating it if needed) and
// prepares it for Start. To seed a brand-new cluster, set Bootstrap on the
// initial members with an identical Members map: each writes the same first
// configuration entry.
func NewNode(cfg Config) (*Node, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	n := &Node{
		cfg:    cfg,
		id:     cfg.ID,
		logger: cfg.Logger,
		mtr:    newNodeMetrics(cfg.ID),
		sm:     cfg.StateMachine,
		role:   RoleFollower,

		proposals: make(map[uint64]*proposeWaiter),

		applyCh:     make(chan applyJob, 64),
		progress:    &applyProgress{},
		applyNotify: make(chan struct{}, 1),

		rpcCh:     make(chan rpcEnvelope),
		proposeCh: make(chan *proposeReq),
		readCh:    make(chan *readReq),
		memberCh:  make(chan *memberReq),
		statusCh:  make(chan chan Status),
		respCh:    make(chan peerResponse, 64),

		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	h := fnv.New64a()
	h.Write([]byte(cfg.ID))
	n.rand = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(h.Sum64())))

	if err := n.recover(); err != nil {
		return nil, err
	}

	return n, nil
}

// recover loads persistent state and reconciles the log, snapshot and state
// machine after a crash at any point.
func (n *Node) recover() error {
	n.stable = newStableStore(n.cfg.DataDir)
	record, err := n.stable.Load()
	if err != nil {
		return err
	}
	n.term = record.Term
	n.votedFor = record.VotedFor

	n.snaps = newSnapshotStore(n.cfg.DataDir)
	meta, haveSnap, err := n.snaps.Load()
	if err != nil {
		return err
	}

	n.log, err = OpenLog(n.cfg.DataDir)
	if err != nil {
		return err
	}

	if haveSnap {
		n.snapBaseConfig = meta.Configuration

		// A crash between persisting the snapshot and compacting the log
		// (or resetting it during installation) leaves the log behind the
		// snapshot; catch it up.
		if n.log.BaseIndex() < meta.Index {
			if n.log.LastIndex() < meta.Index {
				if err := n.log.Reset(meta.Index, meta.Term); err != nil {
					return err
				}
			} else if err := n.log.CompactTo(meta.Index, meta.Term); err != nil {
				return err
			}
		}

		applied, err := n.sm.AppliedIndex()
		if err != nil {
			return err
		}
		if applied < meta.Index {
			// Installed snapshot never made it into the state machine.
			data, err := n.snaps.OpenData()
			if err != nil {
				return err
			}
			err = n.sm.Restore(data)
			data.Close()
			if err != nil {
				return fmt.Errorf("failed to restore state machine from snapshot: %w", err)
			}
		}
	}

	if n.cfg.Bootstrap && !haveSnap && n.log.LastIndex() == 0 {
		cfg := NewConfiguration(n.cfg.Members)
		cfg.Index = 1
		data, err := cfg.Serialize()
		if err != nil {
			return err
		}
		if err := n.log.Append(Entry{Index: 1, Term: 0, Type: EntryConfig, Data: data}); err != nil {
			return fmt.Errorf("failed to bootstrap configuration: %w", err)
		}
		n.logger.Infof("bootstrapped cluster with members %v", cfg.Members)
	}

	applied, err := n.sm.AppliedIndex()
	if err != nil {
		return err
	}
	if applied < n.log.BaseIndex() {
		return fmt.Errorf("state machine applied index %d behind log base %d", applied, n.log.BaseIndex())
	}
	n.lastApplied = applied
	n.commitIndex = applied
	n.lastQueued = applied

	// Reconstruct both configuration views from the snapshot base and the
	// surviving log entries.
	n.appliedConfig = n.snapBaseConfig.Clone()
	n.latestConfig = n.snapBaseConfig.Clone()
	for _, e := range n.log.Range(n.log.FirstIndex(), n.log.LastIndex()) {
		if e.Type != EntryConfig {
			continue
		}
		cfg, err := DeserializeConfiguration(e.Data)
		if err != nil {
			return fmt.Errorf("corrupt configuration entry at index %d: %w", e.Index, err)
		}
		n.latestConfig = cfg
		if e.Index <= applied {
			n.appliedConfig = cfg
		}
	}

	n.progress.reset(applied, n.appliedConfig.Clone())

	n.logger.Infof("recovered: term=%d, log=[%d..%d], applied=%d, members=%v",
		n.term, n.log.FirstIndex(), n.log.LastIndex(), applied, n.latestConfig.Members)
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start begins serving peer RPCs and launches the consensus loop.
func (n *Node) Start() error {
	handler := func(req *Message) *Message {
		env := rpcEnvelope{req: req, respCh: make(chan *Message, 1)}
		select {
		case n.rpcCh <- env:
		case <-n.stopCh:
			return nil
		}
		select {
		case resp := <-env.respCh:
			return resp
		case <-n.stopCh:
			return nil
		}
	}

	if err := n.cfg.Transport.Serve(n.cfg.Addr, handler); err != nil {
		return fmt.Errorf("failed to serve consensus transport on %s: %w", n.cfg.Addr, err)
	}

	n.electionTimer = time.NewTimer(n.electionTimeout())

	n.workers.Add(1)
	go n.runApplier()
	go n.run()

	n.logger.Infof("node %s started on %s", n.id, n.cfg.Addr)
	return nil
}

// Stop shuts the node down and waits for its goroutines to exit. The
// transport is owned by the caller and is not closed here.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	<-n.loopDone
	n.workers.Wait()
	n.log.Close()
	n.logger.Infof("node %s stopped", n.id)
}

// fatal records a non-recoverable error; the loop shuts the node down when
// it observes one.
func (n *Node) fatal(err error) {
	n.fatalMu.Lock()
	if n.fatalErr == nil {
		n.fatalErr = err
	}
	n.fatalMu.Unlock()
}

func (n *Node) fatalError() error {
	n.fatalMu.Lock()
	defer n.fatalMu.Unlock()
	return n.fatalErr
}

// --------------------------------------------------------------------------
// Event Loop
// --------------------------------------------------------------------------

func (n *Node) run() {
	defer close(n.loopDone)

	heartbeat := time.NewTicker(n.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	defer n.electionTimer.Stop()
	defer n.failAllWaiters(ErrShutdown)

	for {
		select {
		case env := <-n.rpcCh:
			env.respCh <- n.handlePeerRPC(env.req)

		case req := <-n.proposeCh:
			n.handlePropose(req)

		case req := <-n.readCh:
			n.handleRead(req)

		case req := <-n.memberCh:
			n.handleMemberChange(req)

		case ch := <-n.statusCh:
			ch <- n.currentStatus()

		case resp := <-n.respCh:
			n.handlePeerResponse(resp)

		case <-n.applyNotify:
			n.handleApplyProgress()

		case <-n.electionTimer.C:
			n.handleElectionTimeout()

		case <-heartbeat.C:
			if n.role == RoleLeader {
				n.broadcastAppend(true)
			}

		case <-n.stopCh:
			return
		}

		if err := n.fatalError(); err != nil {
			n.logger.Errorf("halting after non-recoverable error: %v", err)
			n.stopOnce.Do(func() { close(n.stopCh) })
			return
		}
	}
}

func (n *Node) electionTimeout() time.Duration {
	min := n.cfg.MinElectionTimeout
	max := n.cfg.MaxElectionTimeout
	return min + time.Duration(n.rand.Int63n(int64(max-min)))
}

func (n *Node) resetElectionTimer() {
	if !n.electionTimer.Stop() {
		select {
		case <-n.electionTimer.C:
		default:
		}
	}
	n.electionTimer.Reset(n.electionTimeout())
}

// --------------------------------------------------------------------------
// Role Transitions
// --------------------------------------------------------------------------

// stepDown moves the node to follower in the given term, persisting the term
// change. Outstanding leader-side waiters fail with ErrLeadershipLost.
func (n *Node) stepDown(term uint64, leader string) {
	if term > n.term {
		n.term = term
		n.votedFor = ""
		if err := n.stable.Save(VoteRecord{Term: n.term, VotedFor: n.votedFor}); err != nil {
			n.fatal(fmt.Errorf("failed to persist term: %w", err))
			return
		}
	}

	wasLeader := n.role == RoleLeader
	n.role = RoleFollower
	n.leaderID = leader
	n.peers = nil
	n.votesGranted = nil
	n.noopIndex = 0

	if wasLeader {
		n.logger.Infof("stepping down in term %d", n.term)
		n.failLeaderWaiters(ErrLeadershipLost)
	}
	n.resetElectionTimer()
}

func (n *Node) startElection() {
	n.role = RoleCandidate
	n.term++
	n.votedFor = n.id
	n.leaderID = ""
	if err := n.stable.Save(VoteRecord{Term: n.term, VotedFor: n.id}); err != nil {
		n.fatal(fmt.Errorf("failed to persist vote: %w", err))
		return
	}

	n.votesGranted = map[string]bool{n.id: true}
	n.mtr.elections.Inc()
	n.logger.Infof("starting election for term %d", n.term)
	n.resetElectionTimer()

	if n.latestConfig.Quorum(n.votesGranted) {
		n.becomeLeader()
		return
	}

	req := &RequestVoteRequest{
		Term:         n.term,
		CandidateID:  n.id,
		LastLogIndex: n.log.LastIndex(),
		LastLogTerm:  n.log.LastTerm(),
	}
	for _, peer := range n.latestConfig.Peers(n.id) {
		addr, ok := n.latestConfig.Address(peer)
		if !ok {
			continue
		}
		n.send(peer, addr, n.term, 0, &Message{Kind: MsgRequestVote, From: n.id, Vote: req})
	}
}

func (n *Node) becomeLeader() {
	n.role = RoleLeader
	n.leaderID = n.id
	n.votesGranted = nil
	n.mtr.leaderChanges.Inc()
	n.logger.Infof("elected leader for term %d", n.term)

	last := n.log.LastIndex()
	n.peers = make(map[string]*peerState)
	for _, peer := range n.latestConfig.Peers(n.id) {
		addr, ok := n.latestConfig.Address(peer)
		if !ok {
			continue
		}
		n.peers[peer] = &peerState{
			addr:      addr,
			nextIndex: last + 1,
		}
	}

	// Re-adopt an unfinished configuration change from the log: nothing is
	// resolved to a caller, but the second phase must still be driven.
	n.memberChange = nil
	if n.latestConfig.IsJoint() {
		n.memberChange = &memberWaiter{jointIndex: n.latestConfig.Index}
	}

	// An entry of the current term is needed before anything earlier may
	// be counted committed, and before read barriers can be served.
	noop := Entry{Index: last + 1, Term: n.term, Type: EntryNoop}
	if err := n.log.Append(noop); err != nil {
		n.fatal(fmt.Errorf("failed to append noop entry: %w", err))
		return
	}
	n.noopIndex = noop.Index
	n.broadcastAppend(false)
	n.maybeAdvanceCommit()
}

// --------------------------------------------------------------------------
// Waiter Bookkeeping
// --------------------------------------------------------------------------

// failLeaderWaiters rejects every pending proposal, read and membership
// change. Called when leadership is lost; the operations may still commit.
func (n *Node) failLeaderWaiters(err error) {
	for index, w := range n.proposals {
		w.respCh <- err
		delete(n.proposals, index)
	}
	for _, r := range n.pendingReads {
		r.respCh <- err
	}
	n.pendingReads = nil
	if n.memberChange != nil {
		if n.memberChange.respCh != nil {
			n.memberChange.respCh <- err
		}
		n.memberChange = nil
	}
}

func (n *Node) failAllWaiters(err error) {
	n.failLeaderWaiters(err)
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Propose submits a state machine command on the leader. It returns once the
// command is committed and applied, ErrNotLeader on a non-leader, or
// ErrLeadershipLost if leadership changed before commit was confirmed (the
// command may or may not take effect).
func (n *Node) Propose(ctx context.Context, data []byte) error {
	req := &proposeReq{data: data, respCh: make(chan error, 1)}
	return roundTrip(n, ctx, n.proposeCh, req, req.respCh)
}

// Barrier performs a linearizable read barrier: when it returns nil, every
// command committed before the call is visible in the local state machine.
func (n *Node) Barrier(ctx context.Context) error {
	req := &readReq{respCh: make(chan error, 1)}
	return roundTrip(n, ctx, n.readCh, req, req.respCh)
}

// AddMember starts a two-phase configuration change adding the replica and
// returns once the final configuration is committed.
func (n *Node) AddMember(ctx context.Context, id, addr string) error {
	req := &memberReq{op: memberAdd, id: id, addr: addr, respCh: make(chan error, 1)}
	return roundTrip(n, ctx, n.memberCh, req, req.respCh)
}

// RemoveMember starts a two-phase configuration change removing the replica.
// Removing the leader itself is allowed; it steps down once the final
// configuration is committed.
func (n *Node) RemoveMember(ctx context.Context, id string) error {
	req := &memberReq{op: memberRemove, id: id, respCh: make(chan error, 1)}
	return roundTrip(n, ctx, n.memberCh, req, req.respCh)
}

// roundTrip submits a request to the event loop and waits for its answer.
func roundTrip[T any](n *Node, ctx context.Context, ch chan T, req T, respCh chan error) error {
	select {
	case ch <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return n.shutdownError()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return n.shutdownError()
	}
}

func (n *Node) shutdownError() error {
	if err := n.fatalError(); err != nil {
		return err
	}
	return ErrShutdown
}

// Status reports the node's current consensus state. After shutdown it
// returns the last known identity with zeroed volatile fields.
func (n *Node) Status() Status {
	ch := make(chan Status, 1)
	select {
	case n.statusCh <- ch:
		return <-ch
	case <-n.stopCh:
		return Status{ID: n.id}
	}
}

func (n *Node) currentStatus() Status {
	s := Status{
		ID:            n.id,
		Role:          n.role,
		Term:          n.term,
		LeaderID:      n.leaderID,
		CommitIndex:   n.commitIndex,
		AppliedIndex:  n.lastApplied,
		Configuration: n.appliedConfig.Clone(),
	}
	if n.leaderID != "" {
		if addr, ok := n.latestConfig.Address(n.leaderID); ok {
			s.LeaderAddr = addr
		}
	}
	return s
}
