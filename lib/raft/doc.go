// Package raft implements the consensus core of rkv: leader election, the
// replicated operation log, quorum-based commit, strictly ordered log
// application, snapshot-based compaction and joint-configuration membership
// changes.
//
// Architecture:
//
// The package is built around a single Node per replica, which owns four
// cooperating components:
//
//   - Consensus Loop: A single goroutine that drives the follower, candidate
//     and leader roles, processes incoming RPCs, grants votes and tracks the
//     current term. Randomized election timeouts keep split votes transient.
//
//   - Replicated Log: A durable append-only log on disk. Entries carry the
//     term of the leader that created them, which is what the log matching
//     and election restriction rules are built on.
//
//   - Applier: A dedicated goroutine that feeds committed entries to the
//     caller's StateMachine in strictly increasing index order. Entries are
//     never applied twice and never out of order.
//
//   - Snapshot Manager: Compacts the log once enough entries have been
//     applied. The snapshot captures the state machine output, the applied
//     index and term, and the membership configuration at that point, so a
//     slow or fresh replica can be caught up without replaying the full log.
//
// Consensus Model:
//
//	The implementation follows the standard leader-based replication scheme:
//
//	- Strong Consistency: Committed operations are applied in the same order
//	  on every replica, so all state machines converge to identical state.
//
//	- Fault Tolerance: The cluster remains available as long as a majority of
//	  replicas are functioning. With 2N+1 replicas, up to N failures can be
//	  tolerated.
//
//	- Leader-Based Processing: Proposals are accepted only on the leader,
//	  replicated to followers, and considered committed once a quorum has
//	  persisted them. A leader additionally only counts entries of its own
//	  term towards the commit index.
//
// Write Operations:
//
//	Propose appends an opaque command to the leader's log, replicates it, and
//	returns once the entry is committed and applied locally. If leadership is
//	lost before commit the caller receives ErrLeadershipLost and must treat
//	the outcome as unknown.
//
// Read Operations:
//
//	Barrier implements the read-index protocol: the leader records its commit
//	index, confirms its leadership with a round of heartbeats, and waits until
//	the applier has caught up to the recorded index. A read served after a
//	successful Barrier is linearizable without writing to the log.
//
// Membership Changes:
//
//	AddMember and RemoveMember use joint consensus: the cluster first commits
//	a configuration containing both the old and the new member set, during
//	which elections and commits require a majority of each set, and then
//	commits the final configuration. Only one change may be in flight at a
//	time.
//
// Transport:
//
//	The Node is transport-agnostic: any implementation of the Transport
//	interface can carry RPCs between replicas. The transport subpackage
//	provides a TCP transport for production and an in-process network with
//	partition control for tests. The transport is owned by the caller and is
//	not closed by Stop.
package raft
