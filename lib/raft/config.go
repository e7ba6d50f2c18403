package raft

import (
	"fmt"
	"time"

	"github.com/rkv-db/rkv/rpc/common"
)

// --------------------------------------------------------------------------
// Node Configuration
// --------------------------------------------------------------------------

const (
	defaultMinElectionTimeout = 150 * time.Millisecond
	defaultMaxElectionTimeout = 300 * time.Millisecond
	defaultHeartbeatInterval  = 50 * time.Millisecond
	defaultSnapshotThreshold  = 8192

	// Default SnapshotRPCTimeout as a multiple of MinElectionTimeout.
	defaultSnapshotRPCTimeoutFactor = 10
)

// Config describes a single consensus replica.
type Config struct {
	// ID is the stable, unique identifier of this replica.
	ID string

	// Addr is the address the consensus transport listens on. Peers reach
	// this replica under the same address via the cluster configuration.
	Addr string

	// DataDir holds the log, vote record and snapshot files.
	DataDir string

	// Transport moves peer RPCs. The node calls Serve on it with the
	// address this replica has in the configuration.
	Transport Transport

	// StateMachine consumes committed entries.
	StateMachine StateMachine

	// MinElectionTimeout and MaxElectionTimeout bound the randomized
	// election timeout. Max must be strictly greater than Min.
	MinElectionTimeout time.Duration
	MaxElectionTimeout time.Duration

	// HeartbeatInterval is the leader's replication cadence. It must be
	// well below MinElectionTimeout.
	HeartbeatInterval time.Duration

	// SnapshotThreshold is the number of applied entries after which a
	// snapshot is taken and the log compacted.
	SnapshotThreshold uint64

	// SnapshotRPCTimeout bounds a single InstallSnapshot RPC. A snapshot
	// moves in one request and its transfer plus the follower's persist can
	// legitimately take far longer than an election timeout, so it gets its
	// own budget. Defaults to ten times MinElectionTimeout.
	SnapshotRPCTimeout time.Duration

	// Bootstrap seeds a brand-new cluster with Members as its first
	// configuration entry. All initial members may bootstrap with an
	// identical Members map; the flag is ignored once state exists on
	// disk. Replicas joining later start without it.
	Bootstrap bool

	// Members maps replica IDs to transport addresses. Required when
	// bootstrapping; otherwise the configuration is recovered from the
	// snapshot and log.
	Members map[string]string

	// Logger receives node-level diagnostics. Defaults to the "raft"
	// logger when nil.
	Logger common.ILogger
}

// withDefaults fills unset fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.ID == "" {
		return c, fmt.Errorf("raft config: ID must be set")
	}
	if c.Addr == "" {
		return c, fmt.Errorf("raft config: Addr must be set")
	}
	if c.DataDir == "" {
		return c, fmt.Errorf("raft config: DataDir must be set")
	}
	if c.Transport == nil {
		return c, fmt.Errorf("raft config: Transport must be set")
	}
	if c.StateMachine == nil {
		return c, fmt.Errorf("raft config: StateMachine must be set")
	}

	if c.MinElectionTimeout == 0 {
		c.MinElectionTimeout = defaultMinElectionTimeout
	}
	if c.MaxElectionTimeout == 0 {
		c.MaxElectionTimeout = defaultMaxElectionTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = defaultSnapshotThreshold
	}
	if c.SnapshotRPCTimeout == 0 {
		c.SnapshotRPCTimeout = defaultSnapshotRPCTimeoutFactor * c.MinElectionTimeout
	}

	if c.MaxElectionTimeout <= c.MinElectionTimeout {
		return c, fmt.Errorf("raft config: MaxElectionTimeout (%s) must exceed MinElectionTimeout (%s)",
			c.MaxElectionTimeout, c.MinElectionTimeout)
	}
	if c.HeartbeatInterval >= c.MinElectionTimeout {
		return c, fmt.Errorf("raft config: HeartbeatInterval (%s) must be below MinElectionTimeout (%s)",
			c.HeartbeatInterval, c.MinElectionTimeout)
	}
	if c.SnapshotRPCTimeout < c.MinElectionTimeout {
		return c, fmt.Errorf("raft config: SnapshotRPCTimeout (%s) must be at least MinElectionTimeout (%s)",
			c.SnapshotRPCTimeout, c.MinElectionTimeout)
	}

	if c.Bootstrap {
		if len(c.Members) == 0 {
			return c, fmt.Errorf("raft config: Bootstrap requires Members")
		}
		if _, ok := c.Members[c.ID]; !ok {
			return c, fmt.Errorf("raft config: Members must contain this node (%s)", c.ID)
		}
	}

	if c.Logger == nil {
		c.Logger = common.GetLogger("raft")
	}

	return c, nil
}

// rpcTimeout returns the deadline budget for one outbound RPC of the given
// kind. Votes and appends must resolve well within an election timeout;
// InstallSnapshot carries the full snapshot and gets its own, larger budget
// so a lagging follower can actually receive and persist it.
func (c Config) rpcTimeout(kind MessageKind) time.Duration {
	if kind == MsgInstallSnapshot {
		return c.SnapshotRPCTimeout
	}
	return c.MinElectionTimeout
}
