package raft

import (
	"bytes"
	"io"
	"testing"
)

// TestStableStore tests the vote record persistence
func TestStableStore(t *testing.T) {
	dir := t.TempDir()
	store := newStableStore(dir)

	// a fresh node has the zero record
	rec, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Term != 0 || rec.VotedFor != "" {
		t.Errorf("fresh record = %+v, want zero record", rec)
	}

	// save and reload
	if err := store.Save(VoteRecord{Term: 7, VotedFor: "n2"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	rec, err = store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Term != 7 || rec.VotedFor != "n2" {
		t.Errorf("record = %+v, want term 7 voted for n2", rec)
	}

	// overwrite
	if err := store.Save(VoteRecord{Term: 9}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	rec, _ = store.Load()
	if rec.Term != 9 || rec.VotedFor != "" {
		t.Errorf("record = %+v, want term 9 without vote", rec)
	}

	// a second store over the same directory sees the record
	other := newStableStore(dir)
	rec, err = other.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if rec.Term != 9 {
		t.Errorf("record via second store = %+v, want term 9", rec)
	}
}

// TestSnapshotStore tests snapshot write, load and data access
func TestSnapshotStore(t *testing.T) {
	dir := t.TempDir()
	snaps := newSnapshotStore(dir)

	// no snapshot yet
	_, ok, err := snaps.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot in fresh directory")
	}

	cfg := NewConfiguration(map[string]string{"n1": "addr1"})
	cfg.Index = 1

	want := SnapshotMeta{Index: 10, Term: 3, Configuration: cfg}
	meta, err := snaps.Write(func(w io.Writer) (SnapshotMeta, error) {
		if _, err := w.Write([]byte("snapshot payload")); err != nil {
			return SnapshotMeta{}, err
		}
		return want, nil
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if meta.Index != 10 || meta.Term != 3 {
		t.Errorf("write returned meta %+v, want index 10 term 3", meta)
	}

	loaded, ok, err := snaps.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok || loaded.Index != 10 || loaded.Term != 3 || !loaded.Configuration.Contains("n1") {
		t.Errorf("loaded meta = %+v (%v), want %+v", loaded, ok, want)
	}

	data, err := snaps.ReadData()
	if err != nil {
		t.Fatalf("read data failed: %v", err)
	}
	if !bytes.Equal(data, []byte("snapshot payload")) {
		t.Errorf("ReadData() = %q, want 'snapshot payload'", data)
	}

	r, err := snaps.OpenData()
	if err != nil {
		t.Fatalf("open data failed: %v", err)
	}
	streamed, _ := io.ReadAll(r)
	r.Close()
	if !bytes.Equal(streamed, data) {
		t.Errorf("OpenData() stream differs from ReadData()")
	}

	// a newer snapshot replaces the old one
	newer := SnapshotMeta{Index: 25, Term: 5, Configuration: cfg}
	if _, err := snaps.Write(func(w io.Writer) (SnapshotMeta, error) {
		_, err := w.Write([]byte("newer"))
		return newer, err
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	loaded, _, _ = snaps.Load()
	if loaded.Index != 25 {
		t.Errorf("loaded meta after replace = %+v, want index 25", loaded)
	}
	data, _ = snaps.ReadData()
	if !bytes.Equal(data, []byte("newer")) {
		t.Errorf("ReadData() after replace = %q, want 'newer'", data)
	}

	// a failing write callback leaves the previous snapshot intact
	if _, err := snaps.Write(func(w io.Writer) (SnapshotMeta, error) {
		return SnapshotMeta{}, io.ErrUnexpectedEOF
	}); err == nil {
		t.Fatalf("expected write with failing callback to error")
	}
	loaded, ok, _ = snaps.Load()
	if !ok || loaded.Index != 25 {
		t.Errorf("meta after failed write = %+v (%v), want index 25 intact", loaded, ok)
	}
}
