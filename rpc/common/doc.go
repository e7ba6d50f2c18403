// Package common provides core data structures and utilities shared across
// the replicated key-value store system. It defines fundamental types,
// configuration structures, and protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for client-server communication
//   - Configuration structures for client and server components
//   - A shared logging implementation with per-component log levels
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication between client
//     and server, with a flexible structure that adapts to different
//     operation types. Includes factory methods for creating the various
//     request and response messages.
//
//   - MessageType: Enumeration defining all supported operation types in the
//     system, categorized into key-value operations, membership operations,
//     and control messages.
//
//   - ServerConfig: Configuration for server nodes, including replication
//     parameters, storage settings, network configuration, and timeouts.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
//
//   - Logger: Leveled logging built on the standard library logger, handed
//     out per component via GetLogger and configured once via InitLoggers.
package common
