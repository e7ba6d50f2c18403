/*
Package transport provides the peer-to-peer transports used by the consensus
layer.

Two implementations are included:

  - TCP: gob-encoded messages over pooled TCP connections, used for real
    deployments. One connection per peer is kept open and reused; a failed
    round trip drops the connection and the next send redials.

  - Inproc: an in-process network of replicas addressed by name, used by
    tests. It supports injecting asymmetric partitions between addresses,
    which makes election and failover scenarios deterministic to set up.

Both satisfy the raft.Transport interface and are safe for concurrent use.
*/
package transport
