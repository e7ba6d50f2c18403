// Package tcp provides the TCP implementation of the RPC transport interfaces.
// It contributes the protocol-specific connectors (listening, dialing and
// socket tuning: no-delay, keep-alive, linger, buffer sizes) while the shared
// base package handles framing, multiplexing and retries.
//
// TCP is the transport of choice for client-server communication across
// machines; for co-located processes the unix package avoids the TCP stack
// entirely.
package tcp
