// Package kv provides the local storage layer for replica nodes. It defines
// the Store interface for transactional key-value engines whose mutations are
// tied to log indexes, together with a BoltDB-backed implementation.
//
// The package focuses on:
//   - A unified interface for index-tagged key-value mutations
//   - Atomic multi-operation batches committed in one transaction
//   - Idempotent re-application of already applied batches
//   - Streaming snapshot and restore of the full store content
//
// Key Components:
//
//   - Store Interface: The core interface that all storage implementations
//     must satisfy. It provides read access (Get), batched index-tagged
//     writes (Apply), applied-index retrieval (AppliedIndex), and snapshot
//     operations (Snapshot, Restore).
//
//   - Op: A single logical operation (put or delete) against the store.
//     A slice of Ops passed to Apply is committed atomically, so either
//     every operation in a batch is visible or none is.
//
//   - BoltStore: A Store implementation backed by bbolt. Keys live in one
//     bucket, the applied index in another, and both are updated in the same
//     BoltDB transaction. This makes crash recovery trivial: a batch whose
//     index is not greater than the persisted applied index is a no-op.
//
// Note on Applied Indexes:
//   - Every call to Apply carries the log index the batch corresponds to.
//     The index is persisted together with the data, which is what allows
//     the caller to replay a log from an arbitrary point after a restart
//     without double-applying operations.
//   - Implementations must guarantee that the applied index only increases
//     monotonically. Batches with an index at or below the current applied
//     index must be silently ignored.
package kv
