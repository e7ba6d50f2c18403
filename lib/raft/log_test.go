package raft

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	log, err := OpenLog(dir)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, dir
}

func mustAppend(t *testing.T, log *Log, entries ...Entry) {
	t.Helper()
	if err := log.Append(entries...); err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

// TestLogAppendAndRead tests basic append and lookup behavior
func TestLogAppendAndRead(t *testing.T) {
	log, _ := newTestLog(t)

	if log.LastIndex() != 0 || log.FirstIndex() != 1 {
		t.Fatalf("fresh log: LastIndex=%d FirstIndex=%d, want 0/1", log.LastIndex(), log.FirstIndex())
	}

	mustAppend(t, log,
		Entry{Index: 1, Term: 1, Type: EntryNoop},
		Entry{Index: 2, Term: 1, Type: EntryNormal, Data: []byte("a")},
		Entry{Index: 3, Term: 2, Type: EntryNormal, Data: []byte("b")},
	)

	if log.LastIndex() != 3 {
		t.Errorf("LastIndex() = %d, want 3", log.LastIndex())
	}
	if log.LastTerm() != 2 {
		t.Errorf("LastTerm() = %d, want 2", log.LastTerm())
	}
	if log.Len() != 3 {
		t.Errorf("Len() = %d, want 3", log.Len())
	}

	e, ok := log.Entry(2)
	if !ok || !bytes.Equal(e.Data, []byte("a")) {
		t.Errorf("Entry(2) = %+v (%v), want data 'a'", e, ok)
	}
	if _, ok := log.Entry(4); ok {
		t.Errorf("Entry(4) succeeded, want not found")
	}

	term, ok := log.Term(3)
	if !ok || term != 2 {
		t.Errorf("Term(3) = %d (%v), want 2", term, ok)
	}
	// index 0 is the initial base
	term, ok = log.Term(0)
	if !ok || term != 0 {
		t.Errorf("Term(0) = %d (%v), want 0/true", term, ok)
	}

	// an append with a gap must be rejected
	if err := log.Append(Entry{Index: 5, Term: 2}); err == nil {
		t.Errorf("append with index gap succeeded, want error")
	}
}

// TestLogRange tests the range read clamping
func TestLogRange(t *testing.T) {
	log, _ := newTestLog(t)
	for i := uint64(1); i <= 5; i++ {
		mustAppend(t, log, Entry{Index: i, Term: 1, Type: EntryNormal})
	}

	tests := []struct {
		name   string
		lo, hi uint64
		want   []uint64
	}{
		{"full range", 1, 5, []uint64{1, 2, 3, 4, 5}},
		{"middle", 2, 4, []uint64{2, 3, 4}},
		{"hi beyond end", 4, 99, []uint64{4, 5}},
		{"single", 3, 3, []uint64{3}},
		{"empty", 5, 4, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint64
			for _, e := range log.Range(tt.lo, tt.hi) {
				got = append(got, e.Index)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Range(%d, %d) = %v, want %v", tt.lo, tt.hi, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Range(%d, %d) = %v, want %v", tt.lo, tt.hi, got, tt.want)
				}
			}
		})
	}
}

// TestLogTruncateFrom tests suffix truncation
func TestLogTruncateFrom(t *testing.T) {
	log, _ := newTestLog(t)
	for i := uint64(1); i <= 5; i++ {
		mustAppend(t, log, Entry{Index: i, Term: 1, Type: EntryNormal, Data: []byte{byte(i)}})
	}

	if err := log.TruncateFrom(4); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	if log.LastIndex() != 3 {
		t.Errorf("LastIndex() after truncate = %d, want 3", log.LastIndex())
	}

	// truncating beyond the end is a no-op
	if err := log.TruncateFrom(10); err != nil {
		t.Fatalf("truncate beyond end failed: %v", err)
	}
	if log.LastIndex() != 3 {
		t.Errorf("LastIndex() = %d, want 3", log.LastIndex())
	}

	// the log accepts new entries at the truncation point
	mustAppend(t, log, Entry{Index: 4, Term: 2, Type: EntryNormal, Data: []byte("new")})
	e, _ := log.Entry(4)
	if e.Term != 2 || !bytes.Equal(e.Data, []byte("new")) {
		t.Errorf("Entry(4) after re-append = %+v, want term 2 data 'new'", e)
	}
}

// TestLogCompactTo tests prefix compaction
func TestLogCompactTo(t *testing.T) {
	log, _ := newTestLog(t)
	for i := uint64(1); i <= 10; i++ {
		mustAppend(t, log, Entry{Index: i, Term: 3, Type: EntryNormal, Data: []byte{byte(i)}})
	}

	if err := log.CompactTo(6, 3); err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	if log.BaseIndex() != 6 || log.BaseTerm() != 3 {
		t.Errorf("base = %d/%d, want 6/3", log.BaseIndex(), log.BaseTerm())
	}
	if log.FirstIndex() != 7 {
		t.Errorf("FirstIndex() = %d, want 7", log.FirstIndex())
	}
	if log.LastIndex() != 10 {
		t.Errorf("LastIndex() = %d, want 10", log.LastIndex())
	}

	// compacted entries are no longer readable
	if _, ok := log.Entry(6); ok {
		t.Errorf("Entry(6) succeeded after compaction, want not found")
	}
	// but the base term is still answerable
	term, ok := log.Term(6)
	if !ok || term != 3 {
		t.Errorf("Term(6) = %d (%v), want 3", term, ok)
	}
	// range reads clamp to the base
	got := log.Range(1, 10)
	if len(got) != 4 {
		t.Fatalf("Range(1, 10) after compaction returned %d entries, want 4", len(got))
	}
	if got[0].Index != 7 {
		t.Errorf("Range(1, 10) after compaction starts at %d, want 7", got[0].Index)
	}

	// truncating into the compacted prefix must fail with ErrCompacted
	if err := log.TruncateFrom(5); !errors.Is(err, ErrCompacted) {
		t.Errorf("TruncateFrom(5) into compacted prefix = %v, want ErrCompacted", err)
	}

	// compacting backwards is a no-op
	if err := log.CompactTo(3, 1); err != nil {
		t.Fatalf("backwards compact failed: %v", err)
	}
	if log.BaseIndex() != 6 {
		t.Errorf("BaseIndex() = %d, want 6", log.BaseIndex())
	}
}

// TestLogReset tests the full reset used during snapshot installation
func TestLogReset(t *testing.T) {
	log, _ := newTestLog(t)
	for i := uint64(1); i <= 5; i++ {
		mustAppend(t, log, Entry{Index: i, Term: 1, Type: EntryNormal})
	}

	if err := log.Reset(20, 4); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if log.BaseIndex() != 20 || log.BaseTerm() != 4 || log.Len() != 0 {
		t.Errorf("after reset: base=%d/%d len=%d, want 20/4/0", log.BaseIndex(), log.BaseTerm(), log.Len())
	}
	if log.LastIndex() != 20 {
		t.Errorf("LastIndex() = %d, want 20", log.LastIndex())
	}

	mustAppend(t, log, Entry{Index: 21, Term: 4, Type: EntryNormal})
	if log.LastIndex() != 21 {
		t.Errorf("LastIndex() = %d, want 21", log.LastIndex())
	}
}

// TestLogReopen verifies that the log state survives a close/reopen cycle
func TestLogReopen(t *testing.T) {
	dir := t.TempDir()

	log, err := OpenLog(dir)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	mustAppend(t, log,
		Entry{Index: 1, Term: 1, Type: EntryNormal, Data: []byte("a")},
		Entry{Index: 2, Term: 2, Type: EntryConfig, Data: []byte("cfg")},
	)
	if err := log.CompactTo(1, 1); err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenLog(dir)
	if err != nil {
		t.Fatalf("failed to reopen log: %v", err)
	}
	defer reopened.Close()

	if reopened.BaseIndex() != 1 || reopened.BaseTerm() != 1 {
		t.Errorf("base after reopen = %d/%d, want 1/1", reopened.BaseIndex(), reopened.BaseTerm())
	}
	e, ok := reopened.Entry(2)
	if !ok || e.Type != EntryConfig || !bytes.Equal(e.Data, []byte("cfg")) {
		t.Errorf("Entry(2) after reopen = %+v (%v)", e, ok)
	}
}

// TestLogTornTail verifies that a partially written record is dropped on open
func TestLogTornTail(t *testing.T) {
	dir := t.TempDir()

	log, err := OpenLog(dir)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	mustAppend(t, log,
		Entry{Index: 1, Term: 1, Type: EntryNormal, Data: []byte("keep")},
		Entry{Index: 2, Term: 1, Type: EntryNormal, Data: []byte("keep too")},
	)
	if err := log.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// simulate a crash during append: a half-written record at the tail
	f, err := os.OpenFile(filepath.Join(dir, "log.dat"), os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	if _, err := f.Write([]byte{0x00, 0x00, 0x01, 0x00, 0xde, 0xad}); err != nil {
		t.Fatalf("failed to write torn record: %v", err)
	}
	f.Close()

	reopened, err := OpenLog(dir)
	if err != nil {
		t.Fatalf("failed to reopen log with torn tail: %v", err)
	}
	defer reopened.Close()

	if reopened.LastIndex() != 2 {
		t.Errorf("LastIndex() after torn tail recovery = %d, want 2", reopened.LastIndex())
	}
	e, ok := reopened.Entry(2)
	if !ok || !bytes.Equal(e.Data, []byte("keep too")) {
		t.Errorf("Entry(2) = %+v (%v), want intact entry", e, ok)
	}

	// the log is writable again after recovery
	if err := reopened.Append(Entry{Index: 3, Term: 1, Type: EntryNormal}); err != nil {
		t.Errorf("append after recovery failed: %v", err)
	}
}
