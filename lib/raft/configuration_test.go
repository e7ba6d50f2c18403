package raft

import (
	"reflect"
	"testing"
)

func simpleConfig() Configuration {
	return NewConfiguration(map[string]string{
		"n1": "addr1",
		"n2": "addr2",
		"n3": "addr3",
	})
}

// TestQuorumSimple tests quorum decisions for a simple configuration
func TestQuorumSimple(t *testing.T) {
	cfg := simpleConfig()

	tests := []struct {
		name     string
		acks     map[string]bool
		expected bool
	}{
		{"no acks", map[string]bool{}, false},
		{"single ack", map[string]bool{"n1": true}, false},
		{"two of three", map[string]bool{"n1": true, "n3": true}, true},
		{"all", map[string]bool{"n1": true, "n2": true, "n3": true}, true},
		{"acks from non-members do not count", map[string]bool{"n1": true, "nx": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Quorum(tt.acks); got != tt.expected {
				t.Errorf("Quorum(%v) = %v, want %v", tt.acks, got, tt.expected)
			}
		})
	}
}

// TestQuorumJoint verifies that a joint configuration needs a majority of
// both member sets
func TestQuorumJoint(t *testing.T) {
	cfg := simpleConfig()
	joint := cfg.Joint(map[string]string{
		"n3": "addr3",
		"n4": "addr4",
		"n5": "addr5",
	})

	if !joint.IsJoint() {
		t.Fatalf("expected configuration to be joint")
	}

	tests := []struct {
		name     string
		acks     map[string]bool
		expected bool
	}{
		{
			"majority of old only",
			map[string]bool{"n1": true, "n2": true},
			false,
		},
		{
			"majority of new only",
			map[string]bool{"n4": true, "n5": true},
			false,
		},
		{
			"majority of both",
			map[string]bool{"n2": true, "n3": true, "n4": true},
			true,
		},
		{
			"all members",
			map[string]bool{"n1": true, "n2": true, "n3": true, "n4": true, "n5": true},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joint.Quorum(tt.acks); got != tt.expected {
				t.Errorf("Quorum(%v) = %v, want %v", tt.acks, got, tt.expected)
			}
		})
	}

	// Concluding the joint configuration drops the old member set
	final := joint.Final()
	if final.IsJoint() {
		t.Errorf("expected final configuration to be simple")
	}
	if final.Contains("n1") {
		t.Errorf("expected n1 to be removed in the final configuration")
	}
	if !final.Contains("n4") {
		t.Errorf("expected n4 to be a voter in the final configuration")
	}
}

// TestCommittedIndex tests the quorum-acknowledged index computation
func TestCommittedIndex(t *testing.T) {
	cfg := simpleConfig()

	tests := []struct {
		name       string
		matchIndex map[string]uint64
		expected   uint64
	}{
		{"all equal", map[string]uint64{"n1": 5, "n2": 5, "n3": 5}, 5},
		{"one behind", map[string]uint64{"n1": 5, "n2": 5, "n3": 2}, 5},
		{"two behind", map[string]uint64{"n1": 5, "n2": 1, "n3": 2}, 2},
		{"missing entries count as zero", map[string]uint64{"n1": 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.CommittedIndex(tt.matchIndex); got != tt.expected {
				t.Errorf("CommittedIndex(%v) = %d, want %d", tt.matchIndex, got, tt.expected)
			}
		})
	}
}

// TestCommittedIndexJoint verifies that the joint committed index is the
// minimum over both member sets
func TestCommittedIndexJoint(t *testing.T) {
	cfg := simpleConfig()
	joint := cfg.Joint(map[string]string{"n4": "addr4", "n5": "addr5", "n6": "addr6"})

	match := map[string]uint64{
		"n1": 9, "n2": 9, "n3": 9, // old set has 9 committed
		"n4": 4, "n5": 4, "n6": 1, // new set only 4
	}
	if got := joint.CommittedIndex(match); got != 4 {
		t.Errorf("CommittedIndex() = %d, want 4", got)
	}
}

// TestPeersAndContains tests the member set helpers
func TestPeersAndContains(t *testing.T) {
	cfg := simpleConfig()

	peers := cfg.Peers("n2")
	if !reflect.DeepEqual(peers, []string{"n1", "n3"}) {
		t.Errorf("Peers(n2) = %v, want [n1 n3]", peers)
	}

	joint := cfg.Joint(map[string]string{"n3": "addr3", "n4": "addr4"})
	peers = joint.Peers("n1")
	if !reflect.DeepEqual(peers, []string{"n2", "n3", "n4"}) {
		t.Errorf("Peers(n1) = %v, want [n2 n3 n4]", peers)
	}

	if !joint.Contains("n1") {
		t.Errorf("expected old member n1 to be a voter while joint")
	}
	if !joint.Contains("n4") {
		t.Errorf("expected new member n4 to be a voter while joint")
	}
	if joint.Contains("nx") {
		t.Errorf("expected nx to not be a voter")
	}

	addr, ok := joint.Address("n1")
	if !ok || addr != "addr1" {
		t.Errorf("Address(n1) = %q (%v), want addr1", addr, ok)
	}
}

// TestConfigurationSerialize tests the configuration codec round trip
func TestConfigurationSerialize(t *testing.T) {
	base := simpleConfig()
	joint := base.Joint(map[string]string{"n3": "addr3", "n4": "addr4"})
	joint.Index = 17

	data, err := joint.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	decoded, err := DeserializeConfiguration(data)
	if err != nil {
		t.Fatalf("DeserializeConfiguration() error = %v", err)
	}

	if !reflect.DeepEqual(decoded, joint) {
		t.Errorf("round trip = %+v, want %+v", decoded, joint)
	}

	// A payload without members must be rejected
	if _, err := DeserializeConfiguration([]byte(`{"index":3}`)); err == nil {
		t.Errorf("DeserializeConfiguration() without members succeeded, want error")
	}
	if _, err := DeserializeConfiguration([]byte(`garbage`)); err == nil {
		t.Errorf("DeserializeConfiguration() of garbage succeeded, want error")
	}
}

// TestConfigurationClone verifies that clones are independent
func TestConfigurationClone(t *testing.T) {
	base := simpleConfig()
	cfg := base.Joint(map[string]string{"n4": "addr4"})
	cfg.Index = 3

	clone := cfg.Clone()
	clone.Members["n5"] = "addr5"
	clone.OldMembers["n6"] = "addr6"

	if cfg.Contains("n5") || cfg.Contains("n6") {
		t.Errorf("mutating the clone changed the original: %+v", cfg)
	}
	if clone.Index != cfg.Index {
		t.Errorf("clone Index = %d, want %d", clone.Index, cfg.Index)
	}
}
