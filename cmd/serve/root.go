package serve

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	cmdUtil "github.com/rkv-db/rkv/cmd/util"
	"github.com/rkv-db/rkv/lib/kv"
	"github.com/rkv-db/rkv/lib/raft"
	rafttransport "github.com/rkv-db/rkv/lib/raft/transport"
	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/common"
	"github.com/rkv-db/rkv/rpc/server"
	"github.com/rkv-db/rkv/rpc/transport"
	"github.com/rkv-db/rkv/rpc/transport/tcp"
	"github.com/rkv-db/rkv/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start an rkv replica",
		Long:    `Start an rkv replica with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_NODE_ID=n1)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "node-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("NodeID is the stable, unique identifier of this replica (e.g. 'n1')"))

	key = "raft-address"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("RaftAddress is the address this replica listens on for consensus traffic, and the address under which the other replicas reach it (e.g. 'localhost:63001')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("ClusterMembers is a comma-separated list of the initial replicas in the format 'n1=localhost:63001,n2=localhost:63002,...'. Required with --bootstrap, ignored on restart"))

	key = "bootstrap"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Bootstrap seeds a brand-new cluster with the configured cluster members. All initial members may bootstrap with an identical member list; replicas joining later start without it"))

	key = "min-election-timeout"
	ServeCmd.PersistentFlags().Uint64(key, 150, cmdUtil.WrapString("Lower bound of the randomized election timeout in milliseconds"))

	key = "max-election-timeout"
	ServeCmd.PersistentFlags().Uint64(key, 300, cmdUtil.WrapString("Upper bound of the randomized election timeout in milliseconds"))

	key = "heartbeat-interval"
	ServeCmd.PersistentFlags().Uint64(key, 50, cmdUtil.WrapString("Leader heartbeat interval in milliseconds. Must be well below the election timeout"))

	key = "snapshot-threshold"
	ServeCmd.PersistentFlags().Uint64(key, 8192, cmdUtil.WrapString("Number of applied log entries after which the state machine is snapshotted and the log compacted"))

	key = "snapshot-rpc-timeout"
	ServeCmd.PersistentFlags().Uint64(key, 0, cmdUtil.WrapString("Timeout in milliseconds for shipping a full snapshot to a lagging replica. 0 picks a default well above the election timeout"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for storing the log, vote record, snapshots and the key-value database"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for client requests"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the client API will listen (e.g. 'localhost:8080', '/tmp/rkv.sock', ...)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which Prometheus-style metrics are exposed (empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.NodeID = viper.GetString("node-id")
	serveCmdConfig.RaftAddress = viper.GetString("raft-address")
	serveCmdConfig.Bootstrap = viper.GetBool("bootstrap")
	serveCmdConfig.MinElectionTimeoutMs = viper.GetUint64("min-election-timeout")
	serveCmdConfig.MaxElectionTimeoutMs = viper.GetUint64("max-election-timeout")
	serveCmdConfig.HeartbeatIntervalMs = viper.GetUint64("heartbeat-interval")
	serveCmdConfig.SnapshotThreshold = viper.GetUint64("snapshot-threshold")
	serveCmdConfig.SnapshotRPCTimeoutMs = viper.GetUint64("snapshot-rpc-timeout")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[string]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			serveCmdConfig.ClusterMembers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	} else if serveCmdConfig.Bootstrap {
		return fmt.Errorf("cluster-members is required for bootstrap")
	}

	return serveCmdConfig.Validate()
}

// run starts the rkv replica
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	// Open the local key-value database
	db, err := kv.NewBoltStore(serveCmdConfig.DataDir + "/kv.db")
	if err != nil {
		return fmt.Errorf("failed to open key-value store: %w", err)
	}

	// Create the consensus node
	node, err := raft.NewNode(raft.Config{
		ID:                 serveCmdConfig.NodeID,
		Addr:               serveCmdConfig.RaftAddress,
		DataDir:            serveCmdConfig.DataDir,
		Transport:          rafttransport.NewTCP(),
		StateMachine:       rstore.NewStateMachine(db),
		MinElectionTimeout: time.Duration(serveCmdConfig.MinElectionTimeoutMs) * time.Millisecond,
		MaxElectionTimeout: time.Duration(serveCmdConfig.MaxElectionTimeoutMs) * time.Millisecond,
		HeartbeatInterval:  time.Duration(serveCmdConfig.HeartbeatIntervalMs) * time.Millisecond,
		SnapshotThreshold:  serveCmdConfig.SnapshotThreshold,
		SnapshotRPCTimeout: time.Duration(serveCmdConfig.SnapshotRPCTimeoutMs) * time.Millisecond,
		Bootstrap:          serveCmdConfig.Bootstrap,
		Members:            serveCmdConfig.ClusterMembers,
	})
	if err != nil {
		return fmt.Errorf("failed to create consensus node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("failed to start consensus node: %w", err)
	}

	// Create the replicated store on top of the node
	timeout := time.Duration(serveCmdConfig.TimeoutSecond) * time.Second
	store := rstore.NewReplicatedStore(node, db, timeout)

	// Optionally expose metrics
	if serveCmdConfig.MetricsEndpoint != "" {
		go func() {
			http.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
				metrics.WritePrometheus(w, true)
			})
			server.Logger.Infof("serving metrics on %s", serveCmdConfig.MetricsEndpoint)
			server.Logger.Errorf("metrics listener stopped: %v", http.ListenAndServe(serveCmdConfig.MetricsEndpoint, nil))
		}()
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		store,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
