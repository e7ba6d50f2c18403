package raft

import (
	"encoding/json"
	"fmt"
	"sort"
)

// --------------------------------------------------------------------------
// Cluster Configuration
// --------------------------------------------------------------------------

// Configuration is the versioned membership of the cluster. During a
// membership change the configuration is "joint": decisions then require a
// majority of the old AND a majority of the new member set, so no point in
// time has two disjoint quorums.
type Configuration struct {
	// Members maps replica IDs to their raft addresses (the new member set
	// while joint).
	Members map[string]string `json:"members"`

	// OldMembers is non-nil only while the configuration is joint.
	OldMembers map[string]string `json:"old_members,omitempty"`

	// Index is the log index of the entry that created this configuration.
	Index uint64 `json:"index"`
}

// NewConfiguration creates a simple (non-joint) configuration.
func NewConfiguration(members map[string]string) Configuration {
	m := make(map[string]string, len(members))
	for id, addr := range members {
		m[id] = addr
	}
	return Configuration{Members: m}
}

// IsJoint reports whether the configuration is a transitional joint
// configuration.
func (c *Configuration) IsJoint() bool {
	return c.OldMembers != nil
}

// Contains reports whether the given replica is a voter in the configuration.
func (c *Configuration) Contains(id string) bool {
	if _, ok := c.Members[id]; ok {
		return true
	}
	if c.OldMembers != nil {
		_, ok := c.OldMembers[id]
		return ok
	}
	return false
}

// Address returns the raft address of the given replica.
func (c *Configuration) Address(id string) (string, bool) {
	if addr, ok := c.Members[id]; ok {
		return addr, true
	}
	if c.OldMembers != nil {
		if addr, ok := c.OldMembers[id]; ok {
			return addr, true
		}
	}
	return "", false
}

// Peers returns all voters except self, deduplicated across both member
// sets, in stable order.
func (c *Configuration) Peers(self string) []string {
	seen := map[string]struct{}{}
	var peers []string
	for id := range c.Members {
		if id == self {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			peers = append(peers, id)
		}
	}
	for id := range c.OldMembers {
		if id == self {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			peers = append(peers, id)
		}
	}
	sort.Strings(peers)
	return peers
}

// Quorum reports whether the given set of acknowledging replicas forms a
// quorum. While joint, a majority of both member sets is required.
func (c *Configuration) Quorum(acks map[string]bool) bool {
	if !majority(c.Members, acks) {
		return false
	}
	if c.OldMembers != nil {
		return majority(c.OldMembers, acks)
	}
	return true
}

// CommittedIndex returns the highest index that a quorum of the
// configuration has acknowledged. matchIndex must contain an entry for every
// voter (the leader counts itself with its last log index).
func (c *Configuration) CommittedIndex(matchIndex map[string]uint64) uint64 {
	idx := majorityIndex(c.Members, matchIndex)
	if c.OldMembers != nil {
		if old := majorityIndex(c.OldMembers, matchIndex); old < idx {
			idx = old
		}
	}
	return idx
}

// Joint returns the joint configuration transitioning from c to the given
// new member set.
func (c *Configuration) Joint(newMembers map[string]string) Configuration {
	next := NewConfiguration(newMembers)
	old := make(map[string]string, len(c.Members))
	for id, addr := range c.Members {
		old[id] = addr
	}
	next.OldMembers = old
	return next
}

// Final returns the simple configuration that concludes a joint
// configuration.
func (c *Configuration) Final() Configuration {
	return NewConfiguration(c.Members)
}

// Clone returns a deep copy of the configuration.
func (c *Configuration) Clone() Configuration {
	clone := Configuration{Index: c.Index, Members: map[string]string{}}
	for id, addr := range c.Members {
		clone.Members[id] = addr
	}
	if c.OldMembers != nil {
		clone.OldMembers = map[string]string{}
		for id, addr := range c.OldMembers {
			clone.OldMembers[id] = addr
		}
	}
	return clone
}

func (c *Configuration) String() string {
	if c.IsJoint() {
		return fmt.Sprintf("joint{old: %v, new: %v, index: %d}", memberIDs(c.OldMembers), memberIDs(c.Members), c.Index)
	}
	return fmt.Sprintf("{members: %v, index: %d}", memberIDs(c.Members), c.Index)
}

// --------------------------------------------------------------------------
// Serialization (payload of EntryConfig entries and snapshot metadata)
// --------------------------------------------------------------------------

// Serialize encodes the configuration as JSON.
func (c *Configuration) Serialize() ([]byte, error) {
	return json.Marshal(c)
}

// DeserializeConfiguration decodes a configuration from JSON.
func DeserializeConfiguration(data []byte) (Configuration, error) {
	var c Configuration
	if err := json.Unmarshal(data, &c); err != nil {
		return Configuration{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if c.Members == nil {
		return Configuration{}, fmt.Errorf("configuration without members")
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func majority(members map[string]string, acks map[string]bool) bool {
	if len(members) == 0 {
		return false
	}
	count := 0
	for id := range members {
		if acks[id] {
			count++
		}
	}
	return count > len(members)/2
}

func majorityIndex(members map[string]string, matchIndex map[string]uint64) uint64 {
	if len(members) == 0 {
		return 0
	}
	indexes := make([]uint64, 0, len(members))
	for id := range members {
		indexes = append(indexes, matchIndex[id])
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] > indexes[j] })
	return indexes[len(members)/2]
}

func memberIDs(members map[string]string) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
