package raft

import "errors"

var (
	// ErrNotLeader is returned when a write or leader-read is submitted to
	// a follower or candidate. Callers should retry against the node named
	// by LeaderHint.
	ErrNotLeader = errors.New("raft: not leader")

	// ErrNoLeader is returned when no leader is known at all (election in
	// progress or quorum unreachable). Callers should back off and retry.
	ErrNoLeader = errors.New("raft: no known leader")

	// ErrLeadershipLost is returned for proposals that were accepted but
	// whose commit could not be confirmed before the node lost leadership.
	// The operation may or may not take effect.
	ErrLeadershipLost = errors.New("raft: leadership lost before commit")

	// ErrShutdown is returned once the node has been stopped.
	ErrShutdown = errors.New("raft: node is shut down")

	// ErrNotMember is returned when a membership change names a replica in
	// a way that conflicts with the current configuration.
	ErrNotMember = errors.New("raft: no such cluster member")

	// ErrAlreadyMember is returned when adding a replica that is already
	// part of the current configuration.
	ErrAlreadyMember = errors.New("raft: already a cluster member")

	// ErrConfigInProgress is returned when a membership change is requested
	// while a previous change has not yet completed both phases.
	ErrConfigInProgress = errors.New("raft: configuration change in progress")

	// ErrCompacted is returned when an operation addresses log entries that
	// have been discarded by snapshot compaction.
	ErrCompacted = errors.New("raft: log entries compacted")
)
