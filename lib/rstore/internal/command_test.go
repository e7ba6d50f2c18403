package internal

import (
	"bytes"
	"testing"

	"github.com/rkv-db/rkv/lib/kv"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Put command with key and value",
			command: Command{
				Type:  CommandTPut,
				Key:   "testkey",
				Value: []byte("testvalue"),
			},
			expected: 1 + 4 + 7 + 9, // Type + KeyLen + Key + Value
		},
		{
			name: "Delete command without value",
			command: Command{
				Type: CommandTDelete,
				Key:  "testkey",
			},
			expected: 1 + 4 + 7, // Type + KeyLen + Key
		},
		{
			name: "Put command with empty key",
			command: Command{
				Type:  CommandTPut,
				Key:   "",
				Value: []byte("testvalue"),
			},
			expected: 1 + 4 + 0 + 9, // Type + KeyLen + Value
		},
		{
			name: "Batch command with two operations",
			command: Command{
				Type: CommandTBatch,
				Ops: []kv.Op{
					{Kind: kv.OpPut, Key: "a", Value: []byte("1")},
					{Kind: kv.OpDelete, Key: "bb"},
				},
			},
			expected: 1 + 4 + (1 + 4 + 1 + 4 + 1) + (1 + 4 + 2 + 4 + 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Put command with value",
			command: Command{
				Type:  CommandTPut,
				Key:   "testkey",
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Delete command without value",
			command: Command{
				Type: CommandTDelete,
				Key:  "testkey",
			},
		},
		{
			name: "Put command with empty key",
			command: Command{
				Type:  CommandTPut,
				Key:   "",
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Put command with binary value",
			command: Command{
				Type:  CommandTPut,
				Key:   "binary",
				Value: []byte{0x00, 0x01, 0xFF, 0xFE},
			},
		},
		{
			name: "Batch command",
			command: Command{
				Type: CommandTBatch,
				Ops: []kv.Op{
					{Kind: kv.OpPut, Key: "k1", Value: []byte("v1")},
					{Kind: kv.OpPut, Key: "k2", Value: []byte("v2")},
					{Kind: kv.OpDelete, Key: "k3"},
				},
			},
		},
		{
			name: "Empty batch command",
			command: Command{
				Type: CommandTBatch,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var decoded Command
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if decoded.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", decoded.Type, tt.command.Type)
			}
			if decoded.Key != tt.command.Key {
				t.Errorf("Key = %q, want %q", decoded.Key, tt.command.Key)
			}
			if !bytes.Equal(decoded.Value, tt.command.Value) {
				t.Errorf("Value = %v, want %v", decoded.Value, tt.command.Value)
			}
			if len(decoded.Ops) != len(tt.command.Ops) {
				t.Fatalf("len(Ops) = %d, want %d", len(decoded.Ops), len(tt.command.Ops))
			}
			for i, op := range decoded.Ops {
				want := tt.command.Ops[i]
				if op.Kind != want.Kind || op.Key != want.Key || !bytes.Equal(op.Value, want.Value) {
					t.Errorf("Ops[%d] = %+v, want %+v", i, op, want)
				}
			}
		})
	}
}

// TestDeserializeTruncated verifies that truncated input is rejected
func TestDeserializeTruncated(t *testing.T) {
	commands := []Command{
		{Type: CommandTPut, Key: "testkey", Value: []byte("testvalue")},
		{Type: CommandTBatch, Ops: []kv.Op{
			{Kind: kv.OpPut, Key: "k1", Value: []byte("v1")},
			{Kind: kv.OpDelete, Key: "k2"},
		}},
	}

	for _, command := range commands {
		data := command.Serialize()

		// everything shorter than the header must fail
		for i := 0; i < 5 && i < len(data); i++ {
			var decoded Command
			if err := decoded.Deserialize(data[:i]); err == nil {
				t.Errorf("Deserialize() of %d byte prefix succeeded, want error", i)
			}
		}
	}

	// A batch claiming more operations than the data contains must fail
	batch := Command{Type: CommandTBatch, Ops: []kv.Op{{Kind: kv.OpPut, Key: "key", Value: []byte("value")}}}
	data := batch.Serialize()
	var decoded Command
	if err := decoded.Deserialize(data[:len(data)-3]); err == nil {
		t.Errorf("Deserialize() of truncated batch succeeded, want error")
	}
}

// TestToOps tests the mapping of commands to state machine operations
func TestToOps(t *testing.T) {
	put := Command{Type: CommandTPut, Key: "k", Value: []byte("v")}
	ops, err := put.ToOps()
	if err != nil {
		t.Fatalf("ToOps() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != kv.OpPut || ops[0].Key != "k" {
		t.Errorf("ToOps() = %+v, want single put of 'k'", ops)
	}

	del := Command{Type: CommandTDelete, Key: "k"}
	ops, err = del.ToOps()
	if err != nil {
		t.Fatalf("ToOps() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != kv.OpDelete {
		t.Errorf("ToOps() = %+v, want single delete of 'k'", ops)
	}

	batch := Command{Type: CommandTBatch, Ops: []kv.Op{
		{Kind: kv.OpPut, Key: "a", Value: []byte("1")},
		{Kind: kv.OpDelete, Key: "b"},
	}}
	ops, err = batch.ToOps()
	if err != nil {
		t.Fatalf("ToOps() error = %v", err)
	}
	if len(ops) != 2 {
		t.Errorf("ToOps() returned %d ops, want 2", len(ops))
	}

	invalid := Command{Type: CommandType(42)}
	if _, err := invalid.ToOps(); err == nil {
		t.Errorf("ToOps() of invalid type succeeded, want error")
	}
}
