package raft

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	logMagic     = "RKVLOG\x00"
	logVersion   = 1
	logFileName  = "log.dat"
	logHeaderLen = len(logMagic) + 1 + 8 + 8 // magic + version + base index + base term
)

// --------------------------------------------------------------------------
// Replicated Log
// --------------------------------------------------------------------------

// Log is the durable, ordered sequence of replicated entries. Entries below
// the snapshot base have been compacted away and are only reachable through
// the snapshot.
//
// Layout of the backing file: a fixed header (magic, version, base index,
// base term) followed by length-prefixed, CRC-protected entry records. A
// torn record at the tail (crash during append) is detected and dropped on
// open.
//
// The consensus loop is the only writer; reads may come from the applier and
// the snapshot manager, hence the RWMutex.
type Log struct {
	mu   sync.RWMutex
	path string
	file *os.File

	baseIndex uint64 // last compacted index; entries start at baseIndex+1
	baseTerm  uint64

	entries []Entry // entries[0].Index == baseIndex+1
	offsets []int64 // file offset of each record, parallel to entries
}

// OpenLog opens (or creates) the log file in dir and replays it into memory.
func OpenLog(dir string) (*Log, error) {
	path := filepath.Join(dir, logFileName)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l := &Log{path: path, file: file}

	if err := l.replay(); err != nil {
		file.Close()
		return nil, err
	}

	return l, nil
}

// replay loads the header and all valid records; it truncates a torn tail.
func (l *Log) replay() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}

	// Fresh file: write the header for an empty log.
	if info.Size() == 0 {
		return l.writeHeader(0, 0)
	}

	header := make([]byte, logHeaderLen)
	if _, err := l.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("failed to read log header: %w", err)
	}
	if string(header[:len(logMagic)]) != logMagic {
		return fmt.Errorf("log file %s has invalid magic", l.path)
	}
	if header[len(logMagic)] != logVersion {
		return fmt.Errorf("unsupported log file version %d", header[len(logMagic)])
	}
	l.baseIndex = binary.BigEndian.Uint64(header[len(logMagic)+1:])
	l.baseTerm = binary.BigEndian.Uint64(header[len(logMagic)+9:])

	offset := int64(logHeaderLen)
	recordHeader := make([]byte, 8)

	for offset < info.Size() {
		if _, err := l.file.ReadAt(recordHeader, offset); err != nil {
			break // torn record header
		}
		length := binary.BigEndian.Uint32(recordHeader[:4])
		crc := binary.BigEndian.Uint32(recordHeader[4:8])

		payload := make([]byte, length)
		if _, err := l.file.ReadAt(payload, offset+8); err != nil {
			break // torn payload
		}
		if crc32.ChecksumIEEE(payload) != crc {
			break // corrupt record, drop the tail
		}

		var e Entry
		if err := e.Deserialize(payload); err != nil {
			return fmt.Errorf("corrupt log entry at offset %d: %w", offset, err)
		}

		l.entries = append(l.entries, e)
		l.offsets = append(l.offsets, offset)
		offset += 8 + int64(length)
	}

	// Drop anything after the last valid record.
	if offset < info.Size() {
		if err := l.file.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate torn log tail: %w", err)
		}
	}

	return nil
}

func (l *Log) writeHeader(baseIndex, baseTerm uint64) error {
	header := make([]byte, logHeaderLen)
	copy(header, logMagic)
	header[len(logMagic)] = logVersion
	binary.BigEndian.PutUint64(header[len(logMagic)+1:], baseIndex)
	binary.BigEndian.PutUint64(header[len(logMagic)+9:], baseTerm)

	if _, err := l.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	l.baseIndex = baseIndex
	l.baseTerm = baseTerm
	return nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Append durably appends the given entries. Indexes must continue the log
// without gaps. The entries are fsynced before Append returns; only then may
// they be acknowledged to the leader.
func (l *Log) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.lastIndexLocked() + 1
	for i, e := range entries {
		if e.Index != next+uint64(i) {
			return fmt.Errorf("gap in log: appending index %d, expected %d", e.Index, next+uint64(i))
		}
	}

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	for _, e := range entries {
		payload := e.Serialize()

		record := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint32(record[:4], uint32(len(payload)))
		binary.BigEndian.PutUint32(record[4:8], crc32.ChecksumIEEE(payload))
		copy(record[8:], payload)

		if _, err := l.file.Write(record); err != nil {
			return fmt.Errorf("failed to append log entry %d: %w", e.Index, err)
		}

		l.entries = append(l.entries, e)
		l.offsets = append(l.offsets, offset)
		offset += int64(len(record))
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}

	return nil
}

// TruncateFrom removes all entries with index >= index. Used to resolve a
// divergent suffix before accepting entries from the current leader.
func (l *Log) TruncateFrom(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index <= l.baseIndex {
		return fmt.Errorf("cannot truncate at index %d, base is %d: %w", index, l.baseIndex, ErrCompacted)
	}
	if index > l.lastIndexLocked() {
		return nil
	}

	pos := int(index - l.baseIndex - 1)
	offset := l.offsets[pos]

	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate log at index %d: %w", index, err)
	}
	if err := l.file.Sync(); err != nil {
		return err
	}

	l.entries = l.entries[:pos]
	l.offsets = l.offsets[:pos]
	return nil
}

// CompactTo discards all entries up to and including index, which must be
// covered by a snapshot with the given term. The log file is rewritten with
// the new base.
func (l *Log) CompactTo(index, term uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index <= l.baseIndex {
		return nil
	}

	var keep []Entry
	if index < l.lastIndexLocked() {
		keep = append(keep, l.entries[index-l.baseIndex:]...)
	}

	return l.rewriteLocked(index, term, keep)
}

// Reset discards the entire log and starts over at the given snapshot base.
// Used when installing a snapshot from the leader.
func (l *Log) Reset(baseIndex, baseTerm uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rewriteLocked(baseIndex, baseTerm, nil)
}

// rewriteLocked atomically replaces the log file with one holding the given
// base and entries.
func (l *Log) rewriteLocked(baseIndex, baseTerm uint64, entries []Entry) error {
	tmpPath := l.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create log rewrite file: %w", err)
	}

	header := make([]byte, logHeaderLen)
	copy(header, logMagic)
	header[len(logMagic)] = logVersion
	binary.BigEndian.PutUint64(header[len(logMagic)+1:], baseIndex)
	binary.BigEndian.PutUint64(header[len(logMagic)+9:], baseTerm)

	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	offsets := make([]int64, 0, len(entries))
	offset := int64(logHeaderLen)
	for _, e := range entries {
		payload := e.Serialize()
		record := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint32(record[:4], uint32(len(payload)))
		binary.BigEndian.PutUint32(record[4:8], crc32.ChecksumIEEE(payload))
		copy(record[8:], payload)

		if _, err := tmp.Write(record); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		offsets = append(offsets, offset)
		offset += int64(len(record))
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("failed to replace log file: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}

	l.file = file
	l.baseIndex = baseIndex
	l.baseTerm = baseTerm
	l.entries = entries
	l.offsets = offsets
	return nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// FirstIndex returns the lowest index still present in the log
// (baseIndex+1). If the log is empty the result is baseIndex+1 as well: the
// index the next entry will get.
func (l *Log) FirstIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseIndex + 1
}

// BaseIndex returns the index of the last compacted entry.
func (l *Log) BaseIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseIndex
}

// BaseTerm returns the term of the last compacted entry.
func (l *Log) BaseTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseTerm
}

// LastIndex returns the index of the last entry (or the base index if the
// log holds no entries).
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastIndexLocked()
}

// LastTerm returns the term of the last entry (or the base term).
func (l *Log) LastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return l.baseTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// Term returns the term of the entry at index. The boolean is false if the
// index is neither in the log nor the compaction base.
func (l *Log) Term(index uint64) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index == l.baseIndex {
		return l.baseTerm, true
	}
	if index < l.baseIndex || index > l.lastIndexLocked() {
		return 0, false
	}
	return l.entries[index-l.baseIndex-1].Term, true
}

// Entry returns the entry at index.
func (l *Log) Entry(index uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index <= l.baseIndex || index > l.lastIndexLocked() {
		return Entry{}, false
	}
	return l.entries[index-l.baseIndex-1], true
}

// Range returns the entries with lo <= index <= hi that are present in the
// log. Entries below the compaction base are not returned; they must be
// served via snapshot installation.
func (l *Log) Range(lo, hi uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if lo <= l.baseIndex {
		lo = l.baseIndex + 1
	}
	if hi > l.lastIndexLocked() {
		hi = l.lastIndexLocked()
	}
	if lo > hi {
		return nil
	}

	out := make([]Entry, hi-lo+1)
	copy(out, l.entries[lo-l.baseIndex-1:hi-l.baseIndex])
	return out
}

// Len returns the number of entries currently held in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close closes the backing file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) lastIndexLocked() uint64 {
	if len(l.entries) == 0 {
		return l.baseIndex
	}
	return l.entries[len(l.entries)-1].Index
}
