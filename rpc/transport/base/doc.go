// Package base provides the shared, protocol-independent implementation of the
// RPC transport interfaces. The concrete protocols (tcp, unix) only contribute
// small connector objects; connection handling, framing, multiplexing and
// retries all live here.
//
// The package focuses on:
//   - A compact binary framing protocol (request ID + length prefix)
//   - Multiplexing many in-flight requests over few connections
//   - Per-connection worker pools on the server side
//   - Reconnection and retry with exponential backoff on the client side
//
// Key Components:
//
//   - serverTransport: Accepts connections from a connector-provided listener
//     and processes each frame in a bounded worker pool. Responses may be
//     written out of order; the request ID correlates them.
//
//   - clientTransport: Maintains a configurable number of connections per
//     endpoint, selected round-robin. Each connection has a single reader
//     goroutine that dispatches responses to waiting callers by request ID.
//
//   - IServerConnector / IClientConnector: The small protocol-specific pieces
//     (listening, dialing, socket options) injected by the tcp and unix
//     packages.
//
// Framing Protocol:
//
//	Every request and response is one frame:
//
//	  8 bytes  requestID (big endian)
//	  4 bytes  payload length (big endian)
//	  N bytes  payload (serialized Message)
//
//	The requestID of a response must equal the requestID of its request.
package base
