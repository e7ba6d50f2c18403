// Package rstore implements a replicated, fault-tolerant key-value store on
// top of the raft consensus layer. It provides a strongly consistent
// implementation of the IStore interface that operates across multiple
// replicas while maintaining linearizability for writes and leader reads.
//
// Architecture:
//
// The rstore implementation consists of three main components:
//
//   - Store Client: Implements the IStore interface. It serializes operations
//     into commands, proposes them to the consensus layer, and maps consensus
//     errors onto the store's error taxonomy (including leader redirect hints
//     for retryable NotLeader failures).
//
//   - State Machine: A raft.StateMachine implementation that decodes committed
//     commands and applies them to a kv.Store. The store persists the applied
//     index inside the same transaction as the data, which makes application
//     idempotent across crashes and snapshot installs.
//
//   - Command Protocol: Defined in the internal package: a compact binary
//     encoding for Put, Delete and atomic Batch commands carried in log
//     entries.
//
// Write Operations:
//
//	All write operations (Put, Delete, Txn) follow this flow:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the local consensus node
//	3. The leader replicates it to a majority of replicas
//	4. Once committed, the command is applied to the state machine
//	5. The acknowledgement is returned to the caller
//
//	On a follower the proposal fails immediately with RetCNotLeader and the
//	leader's address as redirect hint; clients are expected to retry there.
//
// Read Operations:
//
//	Get supports two consistency modes:
//
//	- ReadLinearizable establishes a quorum read barrier on the leader before
//	  reading, so the result reflects every previously committed write.
//
//	- ReadLocal reads the local replica's state machine directly. The backing
//	  store serves the read from a consistent snapshot, but it may lag behind
//	  the leader by entries not yet replicated or applied here.
//
// Membership:
//
//	AddMember and RemoveMember drive a two-phase joint-consensus
//	configuration change and return once the final configuration is
//	committed. Only one change may be in flight at a time.
package rstore
