// Package client implements the RPC client for the replicated key-value store.
// It provides an implementation of the rstore.IStore interface that
// communicates with remote replicas via RPC.
//
// The package focuses on:
//   - Transparent RPC access to the replicated store
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCStore: Factory function that creates a client implementing the
//     rstore.IStore interface. This client forwards all operations to remote
//     replicas via the configured transport layer.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Create a serializer
//	serializer := serializer.NewBinarySerializer()
//
//	// Create store client
//	store, _ := client.NewRPCStore(config, tcp.NewTCPClientTransport(), serializer)
//
//	// Use the store
//	store.Put("mykey", []byte("myvalue"))
//	value, exists, _ := store.Get("mykey", rstore.ReadLinearizable)
//
// Leader Redirects:
//
//	Writes and linearizable reads succeed only on the leader replica. When a
//	request reaches a follower, the replica answers with a retryable error
//	carrying the leader's client endpoint (when known). The client retries
//	such requests automatically with a short backoff, up to RetryCount times;
//	since the transport round-robins over all configured endpoints, a retry
//	reaches a different replica and eventually the leader. If all retries are
//	exhausted the last error is returned as an *rstore.Error whose LeaderHint
//	field carries the leader's endpoint for the caller to act on.
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - For small messages, a single connection per endpoint is often more
//     efficient due to reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary
//     serializer provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The client implementation is thread-safe and can be used concurrently
//	from multiple goroutines without additional synchronization.
package client
