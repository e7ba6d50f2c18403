package serializer

import (
	"testing"

	"github.com/rkv-db/rkv/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"SmallKeyOnly": {
			MsgType: common.MsgTKVGet,
			Key:     "k",
		},
		"MediumKeyOnly": {
			MsgType: common.MsgTKVGet,
			Key:     "medium-length-key-for-testing",
		},
		"SmallValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   []byte("v"),
		},
		"MediumValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   []byte("medium length value for testing serialization"),
		},
		"LargeValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   make([]byte, 1024), // 1KB of data
		},
		"VeryLargeValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   make([]byte, 1024*16), // 16KB of data
		},
		"Transaction": {
			MsgType: common.MsgTKVTxn,
			Ops: []common.TxnOp{
				{Kind: common.TxnOpPut, Key: "key-1", Value: make([]byte, 128)},
				{Kind: common.TxnOpPut, Key: "key-2", Value: make([]byte, 128)},
				{Kind: common.TxnOpDelete, Key: "key-3"},
			},
		},
		"ErrorMessage": {
			MsgType:    common.MsgTError,
			Err:        "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
			Code:       4,
			LeaderHint: "10.0.0.1:7379",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}
