package transport

import (
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rkv-db/rkv/lib/raft"
	"github.com/rkv-db/rkv/rpc/common"
)

// --------------------------------------------------------------------------
// TCP Transport
// --------------------------------------------------------------------------

// TCP moves gob-encoded consensus messages over plain TCP. One outbound
// connection per peer is pooled and reused; requests on a connection are
// serialized, which is sufficient since the node keeps at most one request
// per peer in flight.
type TCP struct {
	logger common.ILogger

	mu       sync.Mutex
	conns    map[string]*tcpConn
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

func NewTCP() *TCP {
	return &TCP{
		logger: common.GetLogger("raft-transport"),
		conns:  make(map[string]*tcpConn),
	}
}

type tcpConn struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *gob.Encoder
	dec  *gob.Decoder
}

// --------------------------------------------------------------------------
// Server Side
// --------------------------------------------------------------------------

func (t *TCP) Serve(addr string, handler raft.RPCHandler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				t.mu.Lock()
				closed := t.closed
				t.mu.Unlock()
				if !closed {
					t.logger.Warningf("accept failed: %v", err)
				}
				return
			}
			t.wg.Add(1)
			go t.serveConn(conn, handler)
		}
	}()

	return nil
}

func (t *TCP) serveConn(conn net.Conn, handler raft.RPCHandler) {
	defer t.wg.Done()
	defer conn.Close()

	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	for {
		var req raft.Message
		if err := dec.Decode(&req); err != nil {
			return
		}

		resp := handler(&req)
		if resp == nil {
			// The node is shutting down; drop the connection so the peer
			// fails fast instead of waiting for a response.
			return
		}
		if err := enc.Encode(resp); err != nil {
			t.logger.Debugf("failed to write response to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// --------------------------------------------------------------------------
// Client Side
// --------------------------------------------------------------------------

func (t *TCP) Send(ctx context.Context, addr string, req *raft.Message) (*raft.Message, error) {
	c, err := t.connection(ctx, addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	if err := c.enc.Encode(req); err != nil {
		t.dropConnection(addr, c)
		return nil, fmt.Errorf("failed to send to %s: %w", addr, err)
	}

	var resp raft.Message
	if err := c.dec.Decode(&resp); err != nil {
		t.dropConnection(addr, c)
		return nil, fmt.Errorf("failed to read response from %s: %w", addr, err)
	}
	return &resp, nil
}

func (t *TCP) connection(ctx context.Context, addr string) (*tcpConn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	if c, ok := t.conns[addr]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c := &tcpConn{
		conn: conn,
		enc:  gob.NewEncoder(conn),
		dec:  gob.NewDecoder(conn),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return nil, fmt.Errorf("transport is closed")
	}
	if existing, ok := t.conns[addr]; ok {
		// Lost the dial race; keep the established one.
		conn.Close()
		return existing, nil
	}
	t.conns[addr] = c
	return c, nil
}

func (t *TCP) dropConnection(addr string, c *tcpConn) {
	c.conn.Close()
	t.mu.Lock()
	if t.conns[addr] == c {
		delete(t.conns, addr)
	}
	t.mu.Unlock()
}

func (t *TCP) Close() error {
	t.mu.Lock()
	t.closed = true
	listener := t.listener
	conns := t.conns
	t.conns = make(map[string]*tcpConn)
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	t.wg.Wait()
	return nil
}
