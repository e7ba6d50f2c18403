package raft

import (
	"context"
	"io"
	"testing"
	"time"
)

// nullTransport satisfies Transport for configuration tests; it is never
// exercised.
type nullTransport struct{}

func (nullTransport) Serve(addr string, handler RPCHandler) error { return nil }
func (nullTransport) Send(ctx context.Context, addr string, req *Message) (*Message, error) {
	return nil, nil
}
func (nullTransport) Close() error { return nil }

type nullStateMachine struct{}

func (nullStateMachine) Apply(index uint64, data []byte) error { return nil }
func (nullStateMachine) AppliedIndex() (uint64, error)         { return 0, nil }
func (nullStateMachine) Snapshot(w io.Writer) (uint64, error)  { return 0, nil }
func (nullStateMachine) Restore(r io.Reader) error             { return nil }

func minimalConfig() Config {
	return Config{
		ID:           "n1",
		Addr:         "n1",
		DataDir:      "/tmp/unused",
		Transport:    nullTransport{},
		StateMachine: nullStateMachine{},
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := minimalConfig().withDefaults()
	if err != nil {
		t.Fatalf("withDefaults failed: %v", err)
	}

	if cfg.MinElectionTimeout != defaultMinElectionTimeout {
		t.Errorf("MinElectionTimeout = %s, want %s", cfg.MinElectionTimeout, defaultMinElectionTimeout)
	}
	if cfg.MaxElectionTimeout != defaultMaxElectionTimeout {
		t.Errorf("MaxElectionTimeout = %s, want %s", cfg.MaxElectionTimeout, defaultMaxElectionTimeout)
	}
	if cfg.HeartbeatInterval != defaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %s, want %s", cfg.HeartbeatInterval, defaultHeartbeatInterval)
	}
	if cfg.SnapshotThreshold != defaultSnapshotThreshold {
		t.Errorf("SnapshotThreshold = %d, want %d", cfg.SnapshotThreshold, defaultSnapshotThreshold)
	}

	want := defaultSnapshotRPCTimeoutFactor * defaultMinElectionTimeout
	if cfg.SnapshotRPCTimeout != want {
		t.Errorf("SnapshotRPCTimeout = %s, want %s", cfg.SnapshotRPCTimeout, want)
	}
}

func TestConfigSnapshotRPCTimeoutScalesWithElectionTimeout(t *testing.T) {
	c := minimalConfig()
	c.MinElectionTimeout = 1 * time.Second
	c.MaxElectionTimeout = 2 * time.Second
	c.HeartbeatInterval = 100 * time.Millisecond

	cfg, err := c.withDefaults()
	if err != nil {
		t.Fatalf("withDefaults failed: %v", err)
	}
	if cfg.SnapshotRPCTimeout != defaultSnapshotRPCTimeoutFactor*time.Second {
		t.Errorf("SnapshotRPCTimeout = %s, want %s",
			cfg.SnapshotRPCTimeout, defaultSnapshotRPCTimeoutFactor*time.Second)
	}
}

func TestConfigSnapshotRPCTimeoutValidation(t *testing.T) {
	c := minimalConfig()
	c.SnapshotRPCTimeout = 10 * time.Millisecond

	if _, err := c.withDefaults(); err == nil {
		t.Error("expected error for SnapshotRPCTimeout below MinElectionTimeout")
	}
}

// A snapshot moves in a single RPC and must not be bounded by the election
// timeout, or a follower behind the compaction base could never be caught up
// over a slow link.
func TestConfigRPCTimeoutPerKind(t *testing.T) {
	cfg, err := minimalConfig().withDefaults()
	if err != nil {
		t.Fatalf("withDefaults failed: %v", err)
	}

	if got := cfg.rpcTimeout(MsgInstallSnapshot); got != cfg.SnapshotRPCTimeout {
		t.Errorf("rpcTimeout(InstallSnapshot) = %s, want %s", got, cfg.SnapshotRPCTimeout)
	}
	if cfg.rpcTimeout(MsgInstallSnapshot) <= cfg.MinElectionTimeout {
		t.Errorf("snapshot RPC budget %s must exceed the election timeout %s",
			cfg.rpcTimeout(MsgInstallSnapshot), cfg.MinElectionTimeout)
	}

	for _, kind := range []MessageKind{MsgRequestVote, MsgAppendEntries} {
		if got := cfg.rpcTimeout(kind); got != cfg.MinElectionTimeout {
			t.Errorf("rpcTimeout(%s) = %s, want %s", kind, got, cfg.MinElectionTimeout)
		}
	}
}
