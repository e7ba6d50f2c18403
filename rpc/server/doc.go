// Package server implements the RPC server for the replicated key-value store.
// It provides the adapter handling RPC requests against the replicated store,
// along with the core server implementation that wires transport, serializer
// and store together.
//
// The package focuses on:
//   - Server-side RPC request handling for key-value and cluster operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Translation of store errors into wire responses carrying a machine
//     readable return code and, on leadership errors, a redirect hint
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server
//     adapters, with the Handle method that processes incoming requests
//     against an rstore.IStore.
//
//   - NewIStoreServerAdapter: Factory function creating an adapter for
//     key-value store operations, translating RPC requests to rstore.IStore
//     method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified store, transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  NodeID:      "n1",
//	  RaftAddress: "10.0.0.1:5000",
//	  Transport:   common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogLevel:    "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  store,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Every replica runs one RPC server in front of its local replicated store.
// Writes and linearizable reads succeed only on the leader replica; on any
// other replica the response carries a not-leader return code plus the
// leader's client endpoint so clients can redirect.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent
//	requests across multiple connections. Each request is processed
//	independently. The Serve method is not thread-safe and should be called
//	only once.
package server
