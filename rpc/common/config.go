package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shared socket configuration
// --------------------------------------------------------------------------

// SocketConf holds kernel socket buffer settings shared by all stream
// transports.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific tuning options (ignored by the unix transport).
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig configures the client-facing listener of a replica.
type ServerTransportConfig struct {
	// Endpoint is the address the client API listens on
	// (e.g. "0.0.0.0:8080" or "/tmp/rkv.sock")
	Endpoint string

	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters for a single rkv replica.
type ServerConfig struct {
	// Replica identity
	NodeID      string
	RaftAddress string

	// ClusterMembers maps replica IDs to their raft addresses. On bootstrap
	// this is the initial cluster configuration; on restart the persisted
	// configuration wins.
	ClusterMembers map[string]string

	// Bootstrap marks the first start of a fresh cluster. Exactly one
	// bootstrap per cluster lifetime; joining replicas start empty and are
	// added via member add.
	Bootstrap bool

	// Raft timing and compaction parameters
	MinElectionTimeoutMs uint64
	MaxElectionTimeoutMs uint64
	HeartbeatIntervalMs  uint64
	SnapshotThreshold    uint64

	// SnapshotRPCTimeoutMs bounds a single snapshot transfer to a lagging
	// replica. 0 selects a default well above the election timeout.
	SnapshotRPCTimeoutMs uint64

	// Storage
	DataDir string

	// Request handling
	TimeoutSecond int64

	// Client API transport settings
	Transport ServerTransportConfig

	// Optional Prometheus-style metrics listener ("" = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Validate checks the parts of the configuration that are required for every
// replica, regardless of mode.
func (c *ServerConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node id is required")
	}
	if c.RaftAddress == "" {
		return fmt.Errorf("raft address is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.MinElectionTimeoutMs >= c.MaxElectionTimeoutMs {
		return fmt.Errorf("min election timeout (%dms) must be below max (%dms)",
			c.MinElectionTimeoutMs, c.MaxElectionTimeoutMs)
	}
	if c.HeartbeatIntervalMs >= c.MinElectionTimeoutMs {
		return fmt.Errorf("heartbeat interval (%dms) must be well below the election timeout (%dms)",
			c.HeartbeatIntervalMs, c.MinElectionTimeoutMs)
	}
	if c.Bootstrap {
		if _, ok := c.ClusterMembers[c.NodeID]; !ok {
			return fmt.Errorf("no address found for node ID %q in cluster members", c.NodeID)
		}
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Node Identity")
	addField("Node ID", c.NodeID)
	addField("Raft Address", c.RaftAddress)
	addField("Bootstrap", fmt.Sprintf("%t", c.Bootstrap))

	addSection("Client API")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Raft Parameters")
	addField("Election Timeout", fmt.Sprintf("%d-%d ms", c.MinElectionTimeoutMs, c.MaxElectionTimeoutMs))
	addField("Heartbeat Interval", fmt.Sprintf("%d ms", c.HeartbeatIntervalMs))
	addField("Snapshot Threshold", fmt.Sprintf("%d entries", c.SnapshotThreshold))
	if c.SnapshotRPCTimeoutMs > 0 {
		addField("Snapshot RPC Timeout", fmt.Sprintf("%d ms", c.SnapshotRPCTimeoutMs))
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	if len(c.ClusterMembers) > 0 {
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []string
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", k, c.ClusterMembers[k]))
		}
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the transport of an rkv client.
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int

	SocketConf
	TCPConf
}

// ClientConfig holds all configuration parameters for an rkv client.
type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
