package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkv-db/rkv/lib/raft"
)

// --------------------------------------------------------------------------
// In-Process Network
// --------------------------------------------------------------------------

// InprocNetwork connects replicas living in the same process. Addresses are
// arbitrary strings; a pair of addresses can be partitioned and healed at
// runtime to simulate network faults.
type InprocNetwork struct {
	mu       sync.RWMutex
	handlers map[string]raft.RPCHandler
	blocked  map[string]map[string]bool
}

func NewInprocNetwork() *InprocNetwork {
	return &InprocNetwork{
		handlers: make(map[string]raft.RPCHandler),
		blocked:  make(map[string]map[string]bool),
	}
}

// Transport returns the per-replica transport endpoint. The address it will
// serve under is fixed by the Serve call.
func (n *InprocNetwork) Transport() raft.Transport {
	return &inprocTransport{net: n}
}

// Partition cuts the link between a and b in both directions.
func (n *InprocNetwork) Partition(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.block(a, b)
	n.block(b, a)
}

// Heal restores the link between a and b.
func (n *InprocNetwork) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocked[a], b)
	delete(n.blocked[b], a)
}

// Isolate cuts addr off from every other registered address.
func (n *InprocNetwork) Isolate(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for other := range n.handlers {
		if other == addr {
			continue
		}
		n.block(addr, other)
		n.block(other, addr)
	}
}

// HealAll removes every partition.
func (n *InprocNetwork) HealAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked = make(map[string]map[string]bool)
}

func (n *InprocNetwork) block(from, to string) {
	if n.blocked[from] == nil {
		n.blocked[from] = make(map[string]bool)
	}
	n.blocked[from][to] = true
}

// --------------------------------------------------------------------------
// Per-Replica Endpoint
// --------------------------------------------------------------------------

type inprocTransport struct {
	net  *InprocNetwork
	addr string
}

func (t *inprocTransport) Serve(addr string, handler raft.RPCHandler) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if _, ok := t.net.handlers[addr]; ok {
		return fmt.Errorf("address %s already registered", addr)
	}
	t.addr = addr
	t.net.handlers[addr] = handler
	return nil
}

func (t *inprocTransport) Send(ctx context.Context, addr string, req *raft.Message) (*raft.Message, error) {
	t.net.mu.RLock()
	handler := t.net.handlers[addr]
	cut := t.net.blocked[t.addr][addr]
	t.net.mu.RUnlock()

	if cut {
		return nil, fmt.Errorf("link %s -> %s is partitioned", t.addr, addr)
	}
	if handler == nil {
		return nil, fmt.Errorf("no replica at %s", addr)
	}

	// Run the handler off this goroutine so a stopping replica cannot
	// wedge the sender past its context deadline.
	respCh := make(chan *raft.Message, 1)
	go func() { respCh <- handler(req) }()

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, fmt.Errorf("replica at %s is shut down", addr)
		}

		// The response direction can be partitioned independently.
		t.net.mu.RLock()
		cut = t.net.blocked[addr][t.addr]
		t.net.mu.RUnlock()
		if cut {
			return nil, fmt.Errorf("link %s -> %s is partitioned", addr, t.addr)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *inprocTransport) Close() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if t.addr != "" {
		delete(t.net.handlers, t.addr)
	}
	return nil
}
