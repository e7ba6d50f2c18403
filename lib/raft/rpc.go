package raft

import (
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Peer RPC Handling
// --------------------------------------------------------------------------

// handlePeerRPC dispatches an incoming peer message. It runs on the event
// loop goroutine and therefore has exclusive access to consensus state.
func (n *Node) handlePeerRPC(req *Message) *Message {
	switch req.Kind {
	case MsgRequestVote:
		resp := n.handleRequestVote(req.Vote)
		return &Message{Kind: MsgRequestVoteResp, From: n.id, VoteResp: resp}
	case MsgAppendEntries:
		resp := n.handleAppendEntries(req.Append)
		return &Message{Kind: MsgAppendEntriesResp, From: n.id, AppendResp: resp}
	case MsgInstallSnapshot:
		resp := n.handleInstallSnapshot(req.Snapshot)
		return &Message{Kind: MsgInstallSnapshotResp, From: n.id, SnapshotResp: resp}
	default:
		n.logger.Warningf("dropping unexpected peer message %s", req)
		return nil
	}
}

// --------------------------------------------------------------------------
// RequestVote
// --------------------------------------------------------------------------

func (n *Node) handleRequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	if req.Term > n.term {
		n.stepDown(req.Term, "")
	}

	resp := &RequestVoteResponse{Term: n.term}

	if req.Term < n.term {
		n.mtr.termStaleDropped.Inc()
		return resp
	}

	// Grant only if the candidate's log is at least as up to date as ours:
	// higher last term wins, equal terms compare last index.
	lastIndex, lastTerm := n.log.LastIndex(), n.log.LastTerm()
	upToDate := req.LastLogTerm > lastTerm ||
		(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)

	if upToDate && (n.votedFor == "" || n.votedFor == req.CandidateID) {
		n.votedFor = req.CandidateID
		if err := n.stable.Save(VoteRecord{Term: n.term, VotedFor: n.votedFor}); err != nil {
			n.fatal(fmt.Errorf("failed to persist vote: %w", err))
			return resp
		}
		resp.VoteGranted = true
		n.resetElectionTimer()
		n.logger.Debugf("granted vote to %s in term %d", req.CandidateID, req.Term)
	}

	return resp
}

// --------------------------------------------------------------------------
// AppendEntries
// --------------------------------------------------------------------------

func (n *Node) handleAppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	resp := &AppendEntriesResponse{Term: n.term, ReadSeq: req.ReadSeq}

	if req.Term < n.term {
		n.mtr.termStaleDropped.Inc()
		return resp
	}

	if req.Term > n.term || n.role != RoleFollower {
		n.stepDown(req.Term, req.LeaderID)
	} else {
		n.leaderID = req.LeaderID
		n.resetElectionTimer()
	}
	resp.Term = n.term

	// Consistency check on the entry preceding the batch.
	prev := req.PrevLogIndex
	if prev > n.log.LastIndex() {
		// Our log is too short; tell the leader how far we actually go.
		resp.MatchIndex = n.log.LastIndex()
		return resp
	}
	if prev >= n.log.BaseIndex() {
		term, ok := n.log.Term(prev)
		if !ok || term != req.PrevLogTerm {
			hint := prev - 1
			if hint < n.log.BaseIndex() {
				hint = n.log.BaseIndex()
			}
			resp.MatchIndex = hint
			return resp
		}
	}
	// prev below the snapshot base matches by construction: everything up
	// to the base is committed and snapshotted.

	// Skip entries we already hold with matching terms; truncate a
	// divergent suffix; append the rest in one durable batch.
	var toAppend []Entry
	for i, e := range req.Entries {
		if e.Index <= n.log.BaseIndex() {
			continue
		}
		if term, ok := n.log.Term(e.Index); ok {
			if term == e.Term {
				continue
			}
			if e.Index <= n.commitIndex {
				n.fatal(fmt.Errorf("leader %s conflicts with committed entry %d", req.LeaderID, e.Index))
				return resp
			}
			if err := n.log.TruncateFrom(e.Index); err != nil {
				n.fatal(fmt.Errorf("failed to truncate divergent suffix at %d: %w", e.Index, err))
				return resp
			}
			n.onSuffixTruncated(e.Index)
		}
		toAppend = req.Entries[i:]
		break
	}

	if len(toAppend) > 0 {
		if err := n.log.Append(toAppend...); err != nil {
			n.fatal(fmt.Errorf("failed to append replicated entries: %w", err))
			return resp
		}
		for _, e := range toAppend {
			if e.Type != EntryConfig {
				continue
			}
			cfg, err := DeserializeConfiguration(e.Data)
			if err != nil {
				n.fatal(fmt.Errorf("corrupt configuration entry at index %d: %w", e.Index, err))
				return resp
			}
			n.latestConfig = cfg
			n.logger.Infof("configuration advanced to %s", cfg.String())
		}
	}

	lastNew := prev + uint64(len(req.Entries))
	resp.Success = true
	resp.MatchIndex = lastNew

	if req.LeaderCommit > n.commitIndex {
		n.commitIndex = min(req.LeaderCommit, lastNew)
		n.queueApplies()
	}

	return resp
}

// onSuffixTruncated restores the latest configuration view after entries at
// or above from were removed: fall back to the snapshot's configuration and
// rescan what remains of the log.
func (n *Node) onSuffixTruncated(from uint64) {
	if n.latestConfig.Index < from {
		return
	}
	cfg := n.snapBaseConfig.Clone()
	for _, e := range n.log.Range(n.log.FirstIndex(), n.log.LastIndex()) {
		if e.Type != EntryConfig {
			continue
		}
		if c, err := DeserializeConfiguration(e.Data); err == nil {
			cfg = c
		}
	}
	n.latestConfig = cfg
}

// --------------------------------------------------------------------------
// InstallSnapshot
// --------------------------------------------------------------------------

func (n *Node) handleInstallSnapshot(req *InstallSnapshotRequest) *InstallSnapshotResponse {
	resp := &InstallSnapshotResponse{Term: n.term}

	if req.Term < n.term {
		n.mtr.termStaleDropped.Inc()
		return resp
	}
	if req.Term > n.term || n.role != RoleFollower {
		n.stepDown(req.Term, req.LeaderID)
	} else {
		n.leaderID = req.LeaderID
		n.resetElectionTimer()
	}
	resp.Term = n.term

	// A snapshot at or below our commit point carries nothing new.
	if req.LastIncludedIndex <= n.commitIndex {
		resp.Success = true
		return resp
	}

	meta := SnapshotMeta{
		Index:         req.LastIncludedIndex,
		Term:          req.LastIncludedTerm,
		Configuration: req.Configuration,
	}

	if _, err := n.snaps.Write(func(w io.Writer) (SnapshotMeta, error) {
		_, err := w.Write(req.Data)
		return meta, err
	}); err != nil {
		n.fatal(fmt.Errorf("failed to persist installed snapshot: %w", err))
		return resp
	}

	if err := n.log.Reset(meta.Index, meta.Term); err != nil {
		n.fatal(fmt.Errorf("failed to reset log for snapshot: %w", err))
		return resp
	}

	n.snapBaseConfig = meta.Configuration.Clone()
	n.latestConfig = meta.Configuration.Clone()
	n.commitIndex = meta.Index
	n.lastQueued = meta.Index

	// Route the restore through the apply pipeline so it is ordered with
	// any entries already handed to the applier.
	select {
	case n.applyCh <- applyJob{restore: &meta}:
	case <-n.stopCh:
		return resp
	}

	n.mtr.snapshotsLoaded.Inc()
	n.logger.Infof("installed snapshot at index %d from %s", meta.Index, req.LeaderID)
	resp.Success = true
	return resp
}

// --------------------------------------------------------------------------
// Election Timeout
// --------------------------------------------------------------------------

func (n *Node) handleElectionTimeout() {
	if n.role == RoleLeader {
		n.resetElectionTimer()
		return
	}
	// A replica outside the configuration (fresh joiner, removed member)
	// never campaigns; it waits for a leader to contact it.
	if !n.latestConfig.Contains(n.id) {
		n.resetElectionTimer()
		return
	}
	n.startElection()
}
