// Package internal provides the command structures and serialization logic
// for the rstore package. It defines the wire format used for entries in the
// replicated log.
//
// This package is intended for internal use by the rstore implementation and
// should not be imported directly by external code.
//
// Commands are the write operations (Put, Delete, Batch) that modify the
// state of the database. A command is serialized and proposed to the
// consensus layer, executed on the state machine once committed, and the
// result is returned to the client. Reads never become commands: they are
// served locally on the replica, after a leadership barrier when
// linearizability is requested.
//
// Protocol Design:
//
//	The Command serialization format is optimized for:
//
//	- Minimal Size: Commands use a compact binary encoding that minimizes the
//	  amount of data stored in the replicated log and transmitted between
//	  replicas.
//
//	- Efficient Parsing: The format is designed for fast serialization and
//	  deserialization with minimal allocations.
//
// Command Format:
//
//	Put and Delete commands are serialized into a binary format with the
//	following structure:
//
//	- 1 byte: Command type
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data (string as byte array)
//	- M bytes: Value data (optional, only present for Put)
//
//	Batch commands carry a list of operations instead:
//
//	- 1 byte: Command type
//	- 4 bytes: Operation count (uint32, big endian)
//	- per operation: 1 byte kind, 4 bytes key length, key data,
//	  4 bytes value length, value data
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization. This is not typically
//	an issue as the consensus protocol ensures sequential processing of
//	commands on the state machine.
package internal
