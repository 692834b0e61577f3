package storage

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// MembershipStore persists the cluster membership as name -> address.
// All implementations must be thread-safe for concurrent access.
type MembershipStore interface {
	// Set stores or replaces the address of a node
	Set(ctx context.Context, name, address string) error

	// Delete removes a node. Reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)

	// All returns a snapshot of the membership
	All(ctx context.Context) (map[string]string, error)

	// Close releases the resources of the store
	Close() error
}

// MemoryMembership implements MembershipStore on a concurrent map
type MemoryMembership struct {
	nodes *xsync.MapOf[string, string]
}

// NewMemoryMembership creates an empty in-memory membership store
func NewMemoryMembership() *MemoryMembership {
	return &MemoryMembership{
		nodes: xsync.NewMapOf[string, string](),
	}
}

// Set upserts a node
func (m *MemoryMembership) Set(_ context.Context, name, address string) error {
	m.nodes.Store(name, address)
	return nil
}

// Delete removes a node
func (m *MemoryMembership) Delete(_ context.Context, name string) (bool, error) {
	_, existed := m.nodes.LoadAndDelete(name)
	return existed, nil
}

// All returns a copy of the membership
func (m *MemoryMembership) All(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, m.nodes.Size())
	m.nodes.Range(func(name, address string) bool {
		out[name] = address
		return true
	})
	return out, nil
}

// Close is a no-op for the memory store
func (m *MemoryMembership) Close() error {
	return nil
}
