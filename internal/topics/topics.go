package topics

import (
	"fmt"
	"strings"
	"sync"
)

// Suffixes appended to the base topic
const (
	ControlSuffix = "/control"
	StateSuffix   = "/state"
)

// DefaultBase is the base topic used when none is configured
const DefaultBase = "modbus"

// Snapshot is a consistent view of the namespace at one instant
type Snapshot struct {
	Base    string `json:"base_topic"`
	Control string `json:"control_topic"`
	State   string `json:"state_topic"`
}

// ControlFilter is the wildcard subscription covering every control topic
func (s Snapshot) ControlFilter() string {
	return ControlFilterFor(s.Base)
}

// Namespace owns the mutable base topic. Prefixes are derived on every read
// so they can never drift from the base.
type Namespace struct {
	mu   sync.RWMutex
	base string
}

// NewNamespace creates a namespace rooted at base
func NewNamespace(base string) *Namespace {
	if strings.TrimSpace(base) == "" {
		base = DefaultBase
	}
	return &Namespace{base: base}
}

// Snapshot returns the base and both prefixes read under one lock
func (n *Namespace) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return snapshotOf(n.base)
}

func (n *Namespace) Base() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.base
}

func (n *Namespace) ControlPrefix() string {
	return n.Snapshot().Control
}

func (n *Namespace) StatePrefix() string {
	return n.Snapshot().State
}

// ControlFilter returns "<base>/control/#"
func (n *Namespace) ControlFilter() string {
	return n.Snapshot().ControlFilter()
}

// StateTopic returns "<base>/state/channel_<n>"
func (n *Namespace) StateTopic(channel int) string {
	return StateTopicFor(n.StatePrefix(), channel)
}

// IsStateTopic reports whether topic lies under the current state prefix
func (n *Namespace) IsStateTopic(topic string) bool {
	prefix := n.StatePrefix()
	return topic == prefix || strings.HasPrefix(topic, prefix+"/")
}

// Rebind swaps the base and returns the namespace before and after the swap.
// Validation of the new base is the caller's job.
func (n *Namespace) Rebind(base string) (old, current Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	old = snapshotOf(n.base)
	n.base = base
	return old, snapshotOf(base)
}

func snapshotOf(base string) Snapshot {
	return Snapshot{
		Base:    base,
		Control: base + ControlSuffix,
		State:   base + StateSuffix,
	}
}

// ControlFilterFor builds the control wildcard for an arbitrary base
func ControlFilterFor(base string) string {
	return base + ControlSuffix + "/#"
}

// StateTopicFor builds the per-channel state topic under statePrefix
// Pattern: {state_prefix}/channel_{n}
func StateTopicFor(statePrefix string, channel int) string {
	return fmt.Sprintf("%s/channel_%d", statePrefix, channel)
}
