package peer

import (
	"sync"

	"github.com/dreamware/quorra/internal/cluster"
)

// View is a node's picture of the cluster: who it is, which node it
// believes to be leader and the membership it last read from the central
// node.
type View struct {
	self    cluster.Node
	central string

	mu     sync.RWMutex
	leader string
	known  map[string]string
}

// NewView creates a view with no leader belief.
func NewView(self cluster.Node, central string) *View {
	return &View{
		self:    self,
		central: central,
		known:   map[string]string{self.Name: self.Address},
	}
}

// Self returns the local node.
func (v *View) Self() cluster.Node {
	return v.self
}

// Central returns the address of the central node.
func (v *View) Central() string {
	return v.central
}

// Leader returns the believed leader, or "" when there is no belief.
func (v *View) Leader() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.leader
}

// SetLeader replaces the leader belief. Reports whether it changed.
func (v *View) SetLeader(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	changed := v.leader != name
	v.leader = name
	return changed
}

// ClearLeader forgets the leader belief if it is still name.
func (v *View) ClearLeader(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.leader == "" || v.leader != name {
		return false
	}
	v.leader = ""
	return true
}

// IsLeader reports whether the local node believes itself to be leader.
func (v *View) IsLeader() bool {
	return v.Leader() == v.self.Name
}

// Known returns a copy of the cached membership.
func (v *View) Known() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.known))
	for name, addr := range v.known {
		out[name] = addr
	}
	return out
}

// SetKnown replaces the cached membership.
func (v *View) SetKnown(members map[string]string) {
	cp := make(map[string]string, len(members))
	for name, addr := range members {
		cp[name] = addr
	}
	v.mu.Lock()
	v.known = cp
	v.mu.Unlock()
}

// LeaderAddress resolves the believed leader through the cached membership.
func (v *View) LeaderAddress() (cluster.Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.leader == "" {
		return cluster.Node{}, false
	}
	if v.leader == v.self.Name {
		return v.self, true
	}
	addr, ok := v.known[v.leader]
	if !ok {
		return cluster.Node{}, false
	}
	return cluster.Node{Name: v.leader, Address: addr}, true
}
