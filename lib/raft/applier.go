package raft

import (
	"fmt"
	"io"
	"sync"
)

// --------------------------------------------------------------------------
// Apply Pipeline
// --------------------------------------------------------------------------

// applyJob is one unit of work for the applier: either a batch of committed
// entries in strict index order, or a snapshot restore (entries nil).
type applyJob struct {
	entries []Entry
	restore *SnapshotMeta
}

// applyProgress is the applier's coalesced progress report. The event loop
// is signalled through a capacity-one channel and reads the latest state
// here, so the applier never blocks on a slow loop.
type applyProgress struct {
	mu       sync.Mutex
	applied  uint64
	config   Configuration
	snapshot *SnapshotMeta
	err      error
}

func (p *applyProgress) reset(applied uint64, cfg Configuration) {
	p.mu.Lock()
	p.applied = applied
	p.config = cfg
	p.snapshot = nil
	p.err = nil
	p.mu.Unlock()
}

func (p *applyProgress) update(applied uint64, cfg Configuration, snap *SnapshotMeta) {
	p.mu.Lock()
	p.applied = applied
	p.config = cfg
	if snap != nil {
		p.snapshot = snap
	}
	p.mu.Unlock()
}

func (p *applyProgress) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

func (p *applyProgress) read() (uint64, Configuration, *SnapshotMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied, p.config.Clone(), p.snapshot, p.err
}

func (n *Node) signalApply() {
	select {
	case n.applyNotify <- struct{}{}:
	default:
	}
}

// --------------------------------------------------------------------------
// Applier
// --------------------------------------------------------------------------

// runApplier consumes committed entries in order and feeds them to the
// state machine. Snapshots are taken here, between batches, so the snapshot
// index, term and configuration always belong to one consistent point. An
// apply error is not recoverable: retrying cannot help a deterministic
// state machine, and skipping would diverge this replica, so the node halts.
func (n *Node) runApplier() {
	defer n.workers.Done()

	applied, cfg, _, _ := n.progress.read()

	for {
		select {
		case <-n.stopCh:
			return

		case job := <-n.applyCh:
			if job.restore != nil {
				var err error
				applied, cfg, err = n.restoreFromSnapshot(job.restore)
				if err != nil {
					n.progress.fail(err)
					n.signalApply()
					return
				}
				n.progress.update(applied, cfg.Clone(), nil)
				n.signalApply()
				continue
			}

			for _, e := range job.entries {
				if e.Index <= applied {
					continue
				}

				var data []byte
				if e.Type == EntryNormal {
					data = e.Data
				}
				if err := n.sm.Apply(e.Index, data); err != nil {
					n.progress.fail(fmt.Errorf("failed to apply entry %d: %w", e.Index, err))
					n.signalApply()
					return
				}
				applied = e.Index
				n.mtr.appliedEntries.Inc()

				if e.Type == EntryConfig {
					c, err := DeserializeConfiguration(e.Data)
					if err != nil {
						n.progress.fail(fmt.Errorf("corrupt configuration entry at index %d: %w", e.Index, err))
						n.signalApply()
						return
					}
					cfg = c
				}
			}

			var snap *SnapshotMeta
			if applied-n.log.BaseIndex() >= n.cfg.SnapshotThreshold {
				meta, err := n.takeSnapshot(cfg)
				if err != nil {
					// Degraded but not fatal: the log keeps growing and
					// the next batch retries.
					n.logger.Warningf("snapshot at index %d failed: %v", applied, err)
				} else {
					snap = &meta
				}
			}

			n.progress.update(applied, cfg.Clone(), snap)
			n.signalApply()
		}
	}
}

// takeSnapshot persists the state machine at its current applied index and
// compacts the log up to it.
func (n *Node) takeSnapshot(cfg Configuration) (SnapshotMeta, error) {
	meta, err := n.snaps.Write(func(w io.Writer) (SnapshotMeta, error) {
		idx, err := n.sm.Snapshot(w)
		if err != nil {
			return SnapshotMeta{}, err
		}
		term, ok := n.log.Term(idx)
		if !ok {
			return SnapshotMeta{}, fmt.Errorf("snapshot index %d no longer in log", idx)
		}
		return SnapshotMeta{Index: idx, Term: term, Configuration: cfg.Clone()}, nil
	})
	if err != nil {
		return SnapshotMeta{}, err
	}

	if err := n.log.CompactTo(meta.Index, meta.Term); err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to compact log to %d: %w", meta.Index, err)
	}

	n.mtr.snapshotsTaken.Inc()
	n.logger.Infof("snapshot taken at index %d, log compacted", meta.Index)
	return meta, nil
}

// restoreFromSnapshot loads the persisted snapshot into the state machine.
// Entries applied before the restore are harmless: restoring overwrites the
// full state, and later entries continue from the snapshot index.
func (n *Node) restoreFromSnapshot(meta *SnapshotMeta) (uint64, Configuration, error) {
	data, err := n.snaps.OpenData()
	if err != nil {
		return 0, Configuration{}, fmt.Errorf("failed to open snapshot data: %w", err)
	}
	defer data.Close()

	if err := n.sm.Restore(data); err != nil {
		return 0, Configuration{}, fmt.Errorf("failed to restore state machine: %w", err)
	}

	n.logger.Infof("state machine restored from snapshot at index %d", meta.Index)
	return meta.Index, meta.Configuration.Clone(), nil
}
