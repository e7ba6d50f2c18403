package raft

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Entry Types
// --------------------------------------------------------------------------

// EntryType tags the payload of a log entry.
type EntryType uint8

const (
	// EntryNormal carries an opaque state machine command.
	EntryNormal EntryType = iota
	// EntryConfig carries an encoded cluster configuration.
	EntryConfig
	// EntryNoop is appended by a fresh leader so that an entry of its own
	// term commits as early as possible.
	EntryNoop
)

func (t EntryType) String() string {
	switch t {
	case EntryNormal:
		return "Normal"
	case EntryConfig:
		return "Config"
	case EntryNoop:
		return "Noop"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// --------------------------------------------------------------------------
// Log Entry
// --------------------------------------------------------------------------

// entryCodecVersion is bumped whenever the serialized entry layout changes.
const entryCodecVersion = 1

// Entry is a single replicated log entry. Entries are immutable once
// appended; two entries with the same index and term are identical by the
// log matching property.
type Entry struct {
	Index uint64
	Term  uint64
	Type  EntryType
	Data  []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this entry.
func (e *Entry) SizeBytes() int {
	return 1 + 1 + 8 + 8 + 4 + len(e.Data) // version + type + index + term + dataLen + data
}

// Serialize serializes an entry into a byte array with the format:
// 1 byte codec version,
// 1 byte entry type,
// 8 bytes index (big endian),
// 8 bytes term (big endian),
// 4 bytes data length (big endian),
// N bytes data.
func (e *Entry) Serialize() []byte {
	result := make([]byte, e.SizeBytes())

	result[0] = entryCodecVersion
	result[1] = byte(e.Type)
	binary.BigEndian.PutUint64(result[2:10], e.Index)
	binary.BigEndian.PutUint64(result[10:18], e.Term)
	binary.BigEndian.PutUint32(result[18:22], uint32(len(e.Data)))
	copy(result[22:], e.Data)

	return result
}

// Deserialize extracts all entry fields from a byte array.
func (e *Entry) Deserialize(data []byte) error {
	if len(data) < 22 {
		return fmt.Errorf("data too short for log entry (%d bytes)", len(data))
	}

	if v := data[0]; v != entryCodecVersion {
		return fmt.Errorf("unsupported entry codec version %d", v)
	}

	e.Type = EntryType(data[1])
	e.Index = binary.BigEndian.Uint64(data[2:10])
	e.Term = binary.BigEndian.Uint64(data[10:18])

	dataLen := binary.BigEndian.Uint32(data[18:22])
	if len(data) < 22+int(dataLen) {
		return fmt.Errorf("data too short for entry payload of length %d", dataLen)
	}

	if dataLen > 0 {
		e.Data = make([]byte, dataLen)
		copy(e.Data, data[22:22+dataLen])
	} else {
		e.Data = nil
	}

	return nil
}
