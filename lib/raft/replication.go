package raft

import (
	"context"
	"fmt"
)

// maxEntriesPerAppend caps a single replication batch so a far-behind
// follower is caught up in bounded chunks.
const maxEntriesPerAppend = 1024

// peerState is the leader's replication view of one follower.
type peerState struct {
	addr       string
	nextIndex  uint64
	matchIndex uint64
	inflight   bool
}

// --------------------------------------------------------------------------
// Sending
// --------------------------------------------------------------------------

// send fires an RPC at a peer without blocking the event loop; the result
// (or error) comes back through respCh.
func (n *Node) send(peer, addr string, reqTerm, snapIndex uint64, msg *Message) {
	n.workers.Add(1)
	go func() {
		defer n.workers.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.rpcTimeout(msg.Kind))
		defer cancel()

		resp, err := n.cfg.Transport.Send(ctx, addr, msg)
		select {
		case n.respCh <- peerResponse{peer: peer, reqTerm: reqTerm, snapIndex: snapIndex, msg: resp, err: err}:
		case <-n.stopCh:
		}
	}()
}

// broadcastAppend replicates to every follower that has no request in
// flight. With heartbeat set, peers that are fully caught up still receive
// an empty AppendEntries to assert leadership.
func (n *Node) broadcastAppend(heartbeat bool) {
	for id, p := range n.peers {
		if p.inflight {
			continue
		}
		if !heartbeat && p.nextIndex > n.log.LastIndex() {
			continue
		}
		n.replicateTo(id, p)
	}
}

func (n *Node) replicateTo(id string, p *peerState) {
	if p.inflight {
		return
	}

	// Entries the follower needs may be compacted away; ship the snapshot.
	if p.nextIndex <= n.log.BaseIndex() {
		n.sendSnapshot(id, p)
		return
	}

	prev := p.nextIndex - 1
	prevTerm, ok := n.log.Term(prev)
	if !ok {
		// Compaction moved the base under us; next round ships a snapshot.
		p.nextIndex = n.log.BaseIndex()
		return
	}

	hi := n.log.LastIndex()
	if hi >= p.nextIndex+maxEntriesPerAppend {
		hi = p.nextIndex + maxEntriesPerAppend - 1
	}

	req := &AppendEntriesRequest{
		Term:         n.term,
		LeaderID:     n.id,
		PrevLogIndex: prev,
		PrevLogTerm:  prevTerm,
		Entries:      n.log.Range(p.nextIndex, hi),
		LeaderCommit: n.commitIndex,
		ReadSeq:      n.readSeq,
	}

	p.inflight = true
	n.mtr.heartbeatsSent.Inc()
	n.send(id, p.addr, n.term, 0, &Message{Kind: MsgAppendEntries, From: n.id, Append: req})
}

func (n *Node) sendSnapshot(id string, p *peerState) {
	meta, ok, err := n.snaps.Load()
	if err != nil {
		n.logger.Warningf("cannot ship snapshot to %s: %v", id, err)
		return
	}
	if !ok {
		// Compaction implies a snapshot exists, so this is a bookkeeping bug.
		n.logger.Warningf("follower %s needs compacted entries but no snapshot exists", id)
		return
	}
	data, err := n.snaps.ReadData()
	if err != nil {
		n.logger.Warningf("cannot read snapshot data for %s: %v", id, err)
		return
	}

	req := &InstallSnapshotRequest{
		Term:              n.term,
		LeaderID:          n.id,
		LastIncludedIndex: meta.Index,
		LastIncludedTerm:  meta.Term,
		Configuration:     meta.Configuration,
		Data:              data,
	}

	p.inflight = true
	n.mtr.snapshotsSent.Inc()
	n.logger.Infof("shipping snapshot at index %d to %s", meta.Index, id)
	n.send(id, p.addr, n.term, meta.Index, &Message{Kind: MsgInstallSnapshot, From: n.id, Snapshot: req})
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

func (n *Node) handlePeerResponse(r peerResponse) {
	if r.err != nil || r.msg == nil {
		if n.role == RoleLeader {
			if p := n.peers[r.peer]; p != nil {
				p.inflight = false
			}
		}
		if r.err != nil {
			n.logger.Debugf("rpc to %s failed: %v", r.peer, r.err)
		}
		return
	}

	if term := r.msg.Term(); term > n.term {
		n.stepDown(term, "")
		return
	}

	switch r.msg.Kind {
	case MsgRequestVoteResp:
		n.handleVoteResponse(r)
	case MsgAppendEntriesResp:
		n.handleAppendResponse(r)
	case MsgInstallSnapshotResp:
		n.handleSnapshotResponse(r)
	default:
		n.logger.Warningf("dropping unexpected response %s", r.msg)
	}
}

func (n *Node) handleVoteResponse(r peerResponse) {
	if n.role != RoleCandidate || r.reqTerm != n.term {
		return
	}
	if !r.msg.VoteResp.VoteGranted {
		return
	}
	n.votesGranted[r.peer] = true
	if n.latestConfig.Quorum(n.votesGranted) {
		n.becomeLeader()
	}
}

func (n *Node) handleAppendResponse(r peerResponse) {
	if n.role != RoleLeader || r.reqTerm != n.term {
		return
	}
	p := n.peers[r.peer]
	if p == nil {
		return
	}
	p.inflight = false

	resp := r.msg.AppendResp
	if resp.Success {
		if resp.MatchIndex > p.matchIndex {
			p.matchIndex = resp.MatchIndex
		}
		p.nextIndex = resp.MatchIndex + 1
		n.recordReadAck(r.peer, resp.ReadSeq)
		n.maybeAdvanceCommit()
		if p.nextIndex <= n.log.LastIndex() {
			n.replicateTo(r.peer, p)
		}
		return
	}

	// Rejected: back up using the follower's hint and retry immediately.
	if resp.MatchIndex+1 < p.nextIndex {
		p.nextIndex = resp.MatchIndex + 1
	} else if p.nextIndex > 1 {
		p.nextIndex--
	}
	n.replicateTo(r.peer, p)
}

func (n *Node) handleSnapshotResponse(r peerResponse) {
	if n.role != RoleLeader || r.reqTerm != n.term {
		return
	}
	p := n.peers[r.peer]
	if p == nil {
		return
	}
	p.inflight = false

	if !r.msg.SnapshotResp.Success {
		n.logger.Warningf("peer %s rejected snapshot at index %d", r.peer, r.snapIndex)
		return
	}
	if r.snapIndex > p.matchIndex {
		p.matchIndex = r.snapIndex
	}
	p.nextIndex = r.snapIndex + 1
	n.maybeAdvanceCommit()
	if p.nextIndex <= n.log.LastIndex() {
		n.replicateTo(r.peer, p)
	}
}

// --------------------------------------------------------------------------
// Commit Advancement
// --------------------------------------------------------------------------

// maybeAdvanceCommit moves the commit index to the highest entry replicated
// on a quorum. Only entries of the current term are counted directly;
// earlier entries commit transitively through them.
func (n *Node) maybeAdvanceCommit() {
	if n.role != RoleLeader {
		return
	}

	match := map[string]uint64{n.id: n.log.LastIndex()}
	for id, p := range n.peers {
		match[id] = p.matchIndex
	}

	idx := n.latestConfig.CommittedIndex(match)
	if idx <= n.commitIndex {
		return
	}
	if term, ok := n.log.Term(idx); !ok || term != n.term {
		return
	}

	n.commitIndex = idx
	n.queueApplies()
	n.maybeProgressMembership()
}

// --------------------------------------------------------------------------
// Leader-Side Appends
// --------------------------------------------------------------------------

// appendAsLeader appends one entry to the local log and starts replicating
// it. Returns the entry's index.
func (n *Node) appendAsLeader(e Entry) (uint64, error) {
	e.Index = n.log.LastIndex() + 1
	e.Term = n.term
	if err := n.log.Append(e); err != nil {
		err = fmt.Errorf("failed to append entry: %w", err)
		n.fatal(err)
		return 0, err
	}
	n.broadcastAppend(false)
	n.maybeAdvanceCommit() // a single-node cluster commits immediately
	return e.Index, nil
}

func (n *Node) handlePropose(req *proposeReq) {
	if n.role != RoleLeader {
		req.respCh <- n.referralError()
		return
	}

	idx, err := n.appendAsLeader(Entry{Type: EntryNormal, Data: req.data})
	if err != nil {
		req.respCh <- err
		return
	}
	n.proposals[idx] = &proposeWaiter{term: n.term, respCh: req.respCh}
	n.mtr.proposals.Inc()
}

// referralError distinguishes "ask that node instead" from "nobody to ask".
func (n *Node) referralError() error {
	if n.leaderID == "" {
		return ErrNoLeader
	}
	return ErrNotLeader
}

// --------------------------------------------------------------------------
// Linearizable Read Barriers
// --------------------------------------------------------------------------

func (n *Node) handleRead(req *readReq) {
	if n.role != RoleLeader {
		req.respCh <- n.referralError()
		return
	}

	n.readSeq++
	w := &readWaiter{
		seq: n.readSeq,
		// The barrier must cover the leader's term-opening noop: until it
		// commits, an earlier leader could still have committed entries we
		// do not know are committed.
		readIndex: max(n.commitIndex, n.noopIndex),
		acks:      map[string]bool{n.id: true},
		respCh:    req.respCh,
	}
	w.confirmed = n.latestConfig.Quorum(w.acks)
	n.pendingReads = append(n.pendingReads, w)

	if w.confirmed {
		n.resolveReads()
	} else {
		// Trigger an immediate heartbeat round instead of waiting a tick.
		n.broadcastAppend(true)
	}
}

// recordReadAck credits a heartbeat response to every read barrier that was
// registered before the request carrying seq went out.
func (n *Node) recordReadAck(peer string, seq uint64) {
	touched := false
	for _, w := range n.pendingReads {
		if w.seq > seq || w.confirmed {
			continue
		}
		w.acks[peer] = true
		if n.latestConfig.Quorum(w.acks) {
			w.confirmed = true
			touched = true
		}
	}
	if touched {
		n.resolveReads()
	}
}

// resolveReads completes every confirmed barrier whose read index has been
// applied locally.
func (n *Node) resolveReads() {
	remaining := n.pendingReads[:0]
	for _, w := range n.pendingReads {
		if w.confirmed && w.readIndex <= n.lastApplied {
			w.respCh <- nil
			continue
		}
		remaining = append(remaining, w)
	}
	n.pendingReads = remaining
}

// --------------------------------------------------------------------------
// Membership Changes
// --------------------------------------------------------------------------

func (n *Node) handleMemberChange(req *memberReq) {
	if n.role != RoleLeader {
		req.respCh <- n.referralError()
		return
	}
	if n.memberChange != nil || n.latestConfig.IsJoint() {
		req.respCh <- ErrConfigInProgress
		return
	}

	newMembers := make(map[string]string, len(n.latestConfig.Members))
	for id, addr := range n.latestConfig.Members {
		newMembers[id] = addr
	}

	switch req.op {
	case memberAdd:
		if n.latestConfig.Contains(req.id) {
			req.respCh <- ErrAlreadyMember
			return
		}
		newMembers[req.id] = req.addr
	case memberRemove:
		if !n.latestConfig.Contains(req.id) {
			req.respCh <- ErrNotMember
			return
		}
		delete(newMembers, req.id)
	}

	joint := n.latestConfig.Joint(newMembers)
	joint.Index = n.log.LastIndex() + 1
	data, err := joint.Serialize()
	if err != nil {
		req.respCh <- err
		return
	}

	// The joint configuration governs quorums from the moment it is
	// appended, on this leader and on every follower that receives it.
	n.latestConfig = joint
	n.updatePeers()

	idx, err := n.appendAsLeader(Entry{Type: EntryConfig, Data: data})
	if err != nil {
		req.respCh <- err
		return
	}
	n.memberChange = &memberWaiter{jointIndex: idx, respCh: req.respCh}
	n.logger.Infof("entering joint configuration %s", joint.String())
}

// maybeProgressMembership drives the two phases of a configuration change:
// once the joint entry commits, the final configuration is appended; once
// that commits, the change is complete.
func (n *Node) maybeProgressMembership() {
	mc := n.memberChange
	if mc == nil || n.role != RoleLeader {
		return
	}

	if !mc.finalProposed && n.commitIndex >= mc.jointIndex && n.latestConfig.IsJoint() {
		final := n.latestConfig.Final()
		final.Index = n.log.LastIndex() + 1
		data, err := final.Serialize()
		if err != nil {
			n.fatal(fmt.Errorf("failed to serialize final configuration: %w", err))
			return
		}

		n.latestConfig = final
		n.updatePeers()

		idx, err := n.appendAsLeader(Entry{Type: EntryConfig, Data: data})
		if err != nil {
			return
		}
		mc.finalIndex = idx
		mc.finalProposed = true
		n.logger.Infof("leaving joint configuration for %s", final.String())
		return
	}

	if mc.finalProposed && n.commitIndex >= mc.finalIndex {
		if mc.respCh != nil {
			mc.respCh <- nil
		}
		n.memberChange = nil

		// A leader that removed itself steps down once the final
		// configuration is safely committed.
		if !n.latestConfig.Contains(n.id) {
			n.logger.Infof("removed from configuration, stepping down")
			n.stepDown(n.term, "")
		}
	}
}

// updatePeers reconciles the leader's replication state with latestConfig:
// new members start from the end of the log, departed members are dropped.
func (n *Node) updatePeers() {
	if n.peers == nil {
		return
	}
	last := n.log.LastIndex()
	current := make(map[string]bool)
	for _, id := range n.latestConfig.Peers(n.id) {
		current[id] = true
		if _, ok := n.peers[id]; ok {
			continue
		}
		addr, ok := n.latestConfig.Address(id)
		if !ok {
			continue
		}
		n.peers[id] = &peerState{addr: addr, nextIndex: last + 1}
	}
	for id := range n.peers {
		if !current[id] {
			delete(n.peers, id)
		}
	}
}

// --------------------------------------------------------------------------
// Apply Pipeline Feeding
// --------------------------------------------------------------------------

// queueApplies hands committed, not yet queued entries to the applier. When
// the pipeline is full the attempt is simply repeated on the next apply
// progress notification.
func (n *Node) queueApplies() {
	for n.lastQueued < n.commitIndex {
		entries := n.log.Range(n.lastQueued+1, n.commitIndex)
		if len(entries) == 0 {
			return
		}
		select {
		case n.applyCh <- applyJob{entries: entries}:
			n.lastQueued = entries[len(entries)-1].Index
		default:
			return
		}
	}
}

// handleApplyProgress folds the applier's progress back into the loop's
// view and completes waiters that were blocked on application.
func (n *Node) handleApplyProgress() {
	applied, cfg, snap, err := n.progress.read()
	if err != nil {
		n.fatal(err)
		return
	}

	n.lastApplied = applied
	n.appliedConfig = cfg
	if snap != nil {
		n.snapBaseConfig = snap.Configuration.Clone()
	}

	for idx, w := range n.proposals {
		if idx <= applied {
			w.respCh <- nil
			delete(n.proposals, idx)
		}
	}
	n.resolveReads()
	n.queueApplies()
}
