package raft

import (
	"bytes"
	"testing"
)

// TestEntrySerializeDeserialize tests the entry codec round trip
func TestEntrySerializeDeserialize(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{
			name:  "Normal entry with data",
			entry: Entry{Index: 42, Term: 7, Type: EntryNormal, Data: []byte("command")},
		},
		{
			name:  "Noop entry without data",
			entry: Entry{Index: 1, Term: 1, Type: EntryNoop},
		},
		{
			name:  "Config entry",
			entry: Entry{Index: 100, Term: 3, Type: EntryConfig, Data: []byte(`{"members":{"n1":"a"}}`)},
		},
		{
			name:  "Entry with binary data",
			entry: Entry{Index: 9, Term: 2, Type: EntryNormal, Data: []byte{0x00, 0xFF, 0x00}},
		},
		{
			name:  "Entry with maximum indexes",
			entry: Entry{Index: ^uint64(0), Term: ^uint64(0), Type: EntryNormal, Data: []byte("x")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.entry.Serialize()
			if len(data) != tt.entry.SizeBytes() {
				t.Errorf("len(Serialize()) = %d, want SizeBytes() = %d", len(data), tt.entry.SizeBytes())
			}

			var decoded Entry
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if decoded.Index != tt.entry.Index {
				t.Errorf("Index = %d, want %d", decoded.Index, tt.entry.Index)
			}
			if decoded.Term != tt.entry.Term {
				t.Errorf("Term = %d, want %d", decoded.Term, tt.entry.Term)
			}
			if decoded.Type != tt.entry.Type {
				t.Errorf("Type = %v, want %v", decoded.Type, tt.entry.Type)
			}
			if !bytes.Equal(decoded.Data, tt.entry.Data) {
				t.Errorf("Data = %v, want %v", decoded.Data, tt.entry.Data)
			}
		})
	}
}

// TestEntryDeserializeInvalid verifies that malformed input is rejected
func TestEntryDeserializeInvalid(t *testing.T) {
	entry := Entry{Index: 5, Term: 2, Type: EntryNormal, Data: []byte("payload")}
	data := entry.Serialize()

	// every prefix below the fixed header must fail
	for i := 0; i < 22; i++ {
		var decoded Entry
		if err := decoded.Deserialize(data[:i]); err == nil {
			t.Errorf("Deserialize() of %d byte prefix succeeded, want error", i)
		}
	}

	// truncated payload must fail
	var decoded Entry
	if err := decoded.Deserialize(data[:len(data)-1]); err == nil {
		t.Errorf("Deserialize() of truncated payload succeeded, want error")
	}

	// unknown codec version must fail
	bad := append([]byte(nil), data...)
	bad[0] = 99
	if err := decoded.Deserialize(bad); err == nil {
		t.Errorf("Deserialize() of unknown codec version succeeded, want error")
	}
}
