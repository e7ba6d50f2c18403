// Package cmd implements the command-line interface for the rkv replicated
// key-value store. It provides a hierarchical command structure with
// operations for running a replica and interacting with the cluster as a
// client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (put, get, del, txn)
//   - member: Commands for cluster membership (add, remove, status)
//   - serve: Commands for starting and configuring an rkv replica
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rkv -help for a list of all commands.
package cmd
