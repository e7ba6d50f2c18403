package raft

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// --------------------------------------------------------------------------
// Persistent Vote Record
// --------------------------------------------------------------------------

// VoteRecord is the durable per-node election state. It must hit stable
// storage before a vote or term change takes effect, otherwise a restarted
// node could vote twice in the same term.
type VoteRecord struct {
	Term     uint64 `json:"term"`
	VotedFor string `json:"voted_for"`
}

// stableStore persists the vote record as a small JSON file, replaced
// atomically via rename.
type stableStore struct {
	path string
}

func newStableStore(dir string) *stableStore {
	return &stableStore{path: filepath.Join(dir, "state.json")}
}

// Load reads the persisted vote record. A missing file yields the zero
// record (fresh node).
func (s *stableStore) Load() (VoteRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return VoteRecord{}, nil
	}
	if err != nil {
		return VoteRecord{}, fmt.Errorf("failed to read vote record: %w", err)
	}

	var rec VoteRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return VoteRecord{}, fmt.Errorf("failed to decode vote record: %w", err)
	}
	return rec, nil
}

// Save durably replaces the vote record.
func (s *stableStore) Save(rec VoteRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode vote record: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create vote record file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write vote record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync vote record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace vote record: %w", err)
	}
	return nil
}
