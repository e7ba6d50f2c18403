package raft

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// --------------------------------------------------------------------------
// Snapshot Files
// --------------------------------------------------------------------------

const (
	snapshotDataFile = "snapshot.bin"
	snapshotMetaFile = "snapshot.json"
)

// SnapshotMeta describes the latest snapshot: everything up to and including
// Index is contained in the data file, so all log entries <= Index may be
// discarded. The configuration is included so a restarted or freshly
// installed node knows the membership as of the snapshot.
type SnapshotMeta struct {
	Index         uint64        `json:"index"`
	Term          uint64        `json:"term"`
	Configuration Configuration `json:"configuration"`
}

// snapshotStore persists at most one snapshot per node. Data is written
// first, then the metadata file is swapped in via rename; a snapshot without
// matching metadata is invisible, so a crash mid-write leaves the previous
// snapshot intact.
type snapshotStore struct {
	dir string
}

func newSnapshotStore(dir string) *snapshotStore {
	return &snapshotStore{dir: dir}
}

// Load returns the metadata of the latest snapshot, if any.
func (s *snapshotStore) Load() (SnapshotMeta, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotMetaFile))
	if errors.Is(err, os.ErrNotExist) {
		return SnapshotMeta{}, false, nil
	}
	if err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("failed to read snapshot metadata: %w", err)
	}

	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("failed to decode snapshot metadata: %w", err)
	}
	return meta, true, nil
}

// Write persists a new snapshot. The write callback streams the snapshot
// data and returns the metadata describing it; metadata becomes visible only
// after the data is durable.
func (s *snapshotStore) Write(write func(w io.Writer) (SnapshotMeta, error)) (SnapshotMeta, error) {
	dataPath := filepath.Join(s.dir, snapshotDataFile)
	metaPath := filepath.Join(s.dir, snapshotMetaFile)

	tmpData := dataPath + ".tmp"
	f, err := os.Create(tmpData)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	meta, err := write(f)
	if err != nil {
		f.Close()
		os.Remove(tmpData)
		return SnapshotMeta{}, fmt.Errorf("failed to write snapshot data: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpData)
		return SnapshotMeta{}, fmt.Errorf("failed to sync snapshot data: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpData)
		return SnapshotMeta{}, err
	}
	if err := os.Rename(tmpData, dataPath); err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to move snapshot data in place: %w", err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to encode snapshot metadata: %w", err)
	}
	tmpMeta := metaPath + ".tmp"
	if err := os.WriteFile(tmpMeta, metaBytes, 0o600); err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		return SnapshotMeta{}, fmt.Errorf("failed to move snapshot metadata in place: %w", err)
	}

	return meta, nil
}

// OpenData opens the data file of the latest snapshot for reading.
func (s *snapshotStore) OpenData() (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, snapshotDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot data: %w", err)
	}
	return f, nil
}

// ReadData loads the full data of the latest snapshot into memory. Used when
// shipping a snapshot to a lagging follower.
func (s *snapshotStore) ReadData() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}
	return data, nil
}
