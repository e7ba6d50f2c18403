package raft

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// nodeMetrics collects per-node consensus counters and gauges. All metrics
// carry a node label so multiple replicas in one process (tests, local
// clusters) do not collide in the global registry.
type nodeMetrics struct {
	elections        *metrics.Counter
	leaderChanges    *metrics.Counter
	proposals        *metrics.Counter
	appliedEntries   *metrics.Counter
	snapshotsTaken   *metrics.Counter
	snapshotsSent    *metrics.Counter
	snapshotsLoaded  *metrics.Counter
	heartbeatsSent   *metrics.Counter
	termStaleDropped *metrics.Counter
}

func newNodeMetrics(id string) *nodeMetrics {
	counter := func(name string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_raft_%s_total{node=%q}`, name, id))
	}

	return &nodeMetrics{
		elections:        counter("elections"),
		leaderChanges:    counter("leader_changes"),
		proposals:        counter("proposals"),
		appliedEntries:   counter("applied_entries"),
		snapshotsTaken:   counter("snapshots_taken"),
		snapshotsSent:    counter("snapshots_sent"),
		snapshotsLoaded:  counter("snapshots_loaded"),
		heartbeatsSent:   counter("heartbeats_sent"),
		termStaleDropped: counter("term_stale_dropped"),
	}
}
