package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/rkv-db/rkv/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey        uint16 = 1 << 0
	hasValue      uint16 = 1 << 1
	hasMode       uint16 = 1 << 2
	hasOps        uint16 = 1 << 3
	hasMemberID   uint16 = 1 << 4
	hasMemberAddr uint16 = 1 << 5
	hasOk         uint16 = 1 << 6
	hasErr        uint16 = 1 << 7
	hasCode       uint16 = 1 << 8
	hasLeaderHint uint16 = 1 << 9
	hasMeta       uint16 = 1 << 10
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

// Serialize writes the message as: 1 byte message type, 2 bytes field flags
// (big endian), then each present field in flag order. Strings and byte
// slices are length-prefixed with 4 bytes; the ops list is prefixed with a
// 4 byte count.
func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := 3 // start after MsgType and flags

	writeBytes := func(data []byte) {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(data)))
		pos += 4
		copy(result[pos:pos+len(data)], data)
		pos += len(data)
	}

	if msg.Key != "" {
		flags |= hasKey
		writeBytes([]byte(msg.Key))
	}
	if msg.Value != nil {
		flags |= hasValue
		writeBytes(msg.Value)
	}
	if msg.Mode > 0 {
		flags |= hasMode
		result[pos] = msg.Mode
		pos++
	}
	if msg.Ops != nil {
		flags |= hasOps
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Ops)))
		pos += 4
		for _, op := range msg.Ops {
			result[pos] = byte(op.Kind)
			pos++
			writeBytes([]byte(op.Key))
			writeBytes(op.Value)
		}
	}
	if msg.MemberID != "" {
		flags |= hasMemberID
		writeBytes([]byte(msg.MemberID))
	}
	if msg.MemberAddr != "" {
		flags |= hasMemberAddr
		writeBytes([]byte(msg.MemberAddr))
	}
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos++
	}
	if msg.Err != "" {
		flags |= hasErr
		writeBytes([]byte(msg.Err))
	}
	if msg.Code > 0 {
		flags |= hasCode
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Code)
		pos += 8
	}
	if msg.LeaderHint != "" {
		flags |= hasLeaderHint
		writeBytes([]byte(msg.LeaderHint))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		writeBytes(msg.Meta)
	}

	binary.BigEndian.PutUint16(result[1:3], flags)
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 3 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := 3

	readBytes := func() ([]byte, error) {
		if len(data) < pos+4 {
			return nil, fmt.Errorf("data too short for length prefix at offset %d", pos)
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if len(data) < pos+length {
			return nil, fmt.Errorf("data too short for field of length %d", length)
		}
		out := make([]byte, length)
		copy(out, data[pos:pos+length])
		pos += length
		return out, nil
	}

	if flags&hasKey != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.Key = string(field)
	}
	if flags&hasValue != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.Value = field
	}
	if flags&hasMode != 0 {
		if len(data) < pos+1 {
			return fmt.Errorf("data too short for mode")
		}
		msg.Mode = data[pos]
		pos++
	}
	if flags&hasOps != 0 {
		if len(data) < pos+4 {
			return fmt.Errorf("data too short for ops count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		msg.Ops = make([]common.TxnOp, 0, count)
		for i := uint32(0); i < count; i++ {
			if len(data) < pos+1 {
				return fmt.Errorf("data too short for op %d", i)
			}
			kind := common.TxnOpKind(data[pos])
			pos++
			key, err := readBytes()
			if err != nil {
				return err
			}
			value, err := readBytes()
			if err != nil {
				return err
			}
			msg.Ops = append(msg.Ops, common.TxnOp{Kind: kind, Key: string(key), Value: value})
		}
	}
	if flags&hasMemberID != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.MemberID = string(field)
	}
	if flags&hasMemberAddr != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.MemberAddr = string(field)
	}
	if flags&hasOk != 0 {
		if len(data) < pos+1 {
			return fmt.Errorf("data too short for ok flag")
		}
		msg.Ok = data[pos] == 1
		pos++
	}
	if flags&hasErr != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.Err = string(field)
	}
	if flags&hasCode != 0 {
		if len(data) < pos+8 {
			return fmt.Errorf("data too short for code")
		}
		msg.Code = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}
	if flags&hasLeaderHint != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.LeaderHint = string(field)
	}
	if flags&hasMeta != 0 {
		field, err := readBytes()
		if err != nil {
			return err
		}
		msg.Meta = field
	}

	return nil
}

// sizeBytes calculates the exact serialized size of the message.
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 3 // MsgType + flags

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Mode > 0 {
		size++
	}
	if msg.Ops != nil {
		size += 4
		for _, op := range msg.Ops {
			size += 1 + 4 + len(op.Key) + 4 + len(op.Value)
		}
	}
	if msg.MemberID != "" {
		size += 4 + len(msg.MemberID)
	}
	if msg.MemberAddr != "" {
		size += 4 + len(msg.MemberAddr)
	}
	if msg.Ok {
		size++
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Code > 0 {
		size += 8
	}
	if msg.LeaderHint != "" {
		size += 4 + len(msg.LeaderHint)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}
