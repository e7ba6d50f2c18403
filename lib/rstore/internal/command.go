package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/rkv-db/rkv/lib/kv"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPut    CommandType = iota // Insert or update an entry.
	CommandTDelete                    // Delete an entry.
	CommandTBatch                     // Apply several operations atomically.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTDelete:
		return "Delete"
	case CommandTBatch:
		return "Batch"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single
// entry in the replicated log). For Put and Delete the Key/Value fields are
// used; for Batch the Ops list carries every operation.
type Command struct {
	Type  CommandType
	Key   string
	Value []byte
	Ops   []kv.Op
}

// SizeBytes returns the exact number of bytes needed to serialize this command.
func (command *Command) SizeBytes() int {
	size := 1 // Type
	switch command.Type {
	case CommandTBatch:
		size += 4 // op count
		for _, op := range command.Ops {
			size += 1 + 4 + len(op.Key) + 4 + len(op.Value)
		}
	default:
		size += 4 + len(command.Key)
		if command.Value != nil {
			size += len(command.Value)
		}
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type, then for Put/Delete:
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional);
// and for Batch:
// 4 bytes for operation count, then per operation
// 1 byte for kind, 4 bytes key length, key, 4 bytes value length, value.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())
	result[0] = byte(command.Type)

	if command.Type == CommandTBatch {
		binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Ops)))
		pos := 5
		for _, op := range command.Ops {
			result[pos] = byte(op.Kind)
			pos++
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(op.Key)))
			pos += 4
			copy(result[pos:], op.Key)
			pos += len(op.Key)
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(op.Value)))
			pos += 4
			copy(result[pos:], op.Value)
			pos += len(op.Value)
		}
		return result
	}

	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Key)))
	copy(result[5:5+len(command.Key)], command.Key)
	if command.Value != nil {
		copy(result[5+len(command.Key):], command.Value)
	}
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("data too short for command")
	}
	command.Type = CommandType(data[0])

	if command.Type == CommandTBatch {
		count := binary.BigEndian.Uint32(data[1:5])
		command.Ops = make([]kv.Op, 0, count)
		pos := 5
		for i := uint32(0); i < count; i++ {
			if len(data) < pos+5 {
				return fmt.Errorf("data too short for batch operation %d", i)
			}
			kind := kv.OpKind(data[pos])
			pos++
			keyLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if len(data) < pos+keyLen+4 {
				return fmt.Errorf("data too short for key of batch operation %d", i)
			}
			key := string(data[pos : pos+keyLen])
			pos += keyLen
			valueLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if len(data) < pos+valueLen {
				return fmt.Errorf("data too short for value of batch operation %d", i)
			}
			var value []byte
			if valueLen > 0 {
				value = make([]byte, valueLen)
				copy(value, data[pos:pos+valueLen])
			}
			pos += valueLen
			command.Ops = append(command.Ops, kv.Op{Kind: kind, Key: key, Value: value})
		}
		command.Key = ""
		command.Value = nil
		return nil
	}

	keyLen := binary.BigEndian.Uint32(data[1:5])
	if len(data) < 5+int(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[5 : 5+keyLen])

	if len(data) > 5+int(keyLen) {
		valueLen := len(data) - (5 + int(keyLen))
		command.Value = make([]byte, valueLen)
		copy(command.Value, data[5+int(keyLen):])
	} else {
		command.Value = nil
	}
	command.Ops = nil
	return nil
}

// ToOps maps the command to the state machine operations it represents.
func (command *Command) ToOps() ([]kv.Op, error) {
	switch command.Type {
	case CommandTPut:
		return []kv.Op{{Kind: kv.OpPut, Key: command.Key, Value: command.Value}}, nil
	case CommandTDelete:
		return []kv.Op{{Kind: kv.OpDelete, Key: command.Key}}, nil
	case CommandTBatch:
		return command.Ops, nil
	default:
		return nil, fmt.Errorf("unknown command type %d", command.Type)
	}
}
