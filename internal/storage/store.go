package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/dreamware/quorra/internal/cluster"
)

var (
	// ErrDuplicate is returned when a record id already exists in the
	// targeted area (committed or staged).
	ErrDuplicate = errors.New("duplicate id")

	// ErrNotStaged is returned when a staged record was expected but absent.
	ErrNotStaged = errors.New("record not staged")
)

// RecordStore persists the committed and staged records of a node.
// All implementations must be thread-safe for concurrent access.
type RecordStore interface {
	// Insert adds committed records atomically.
	// Returns ErrDuplicate, and inserts nothing, if any id already exists.
	Insert(ctx context.Context, records ...cluster.Record) error

	// List returns every committed record in commit order.
	List(ctx context.Context) ([]cluster.Record, error)

	// Get returns the committed record with id. Reports whether it exists.
	Get(ctx context.Context, id string) (cluster.Record, bool, error)

	// Exists reports whether a committed record with id exists.
	Exists(ctx context.Context, id string) (bool, error)

	// Count returns the number of committed records.
	Count(ctx context.Context) (int, error)

	// Delete removes a committed record. Reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Stage adds a record to the staging area.
	// Returns ErrDuplicate if the id is already staged.
	Stage(ctx context.Context, record cluster.Record) error

	// Staged returns the staged records in staging order.
	Staged(ctx context.Context) ([]cluster.Record, error)

	// CommitStaged promotes the staged record with id to committed
	// atomically. Other staged records are left alone.
	// Returns ErrNotStaged if id is not staged, and ErrDuplicate, changing
	// nothing, if id is already committed.
	CommitStaged(ctx context.Context, id string) error

	// DeleteStaged discards a staged record. Reports whether it existed.
	DeleteStaged(ctx context.Context, id string) (bool, error)

	// Close releases the resources of the store.
	Close() error
}

// MemoryStore implements RecordStore with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu        sync.RWMutex
	committed []cluster.Record
	index     map[string]int // id -> position in committed
	staged    []cluster.Record
}

// NewMemoryStore creates a new in-memory record store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
	}
}

// Insert adds committed records, all or nothing
func (m *MemoryStore) Insert(_ context.Context, records ...cluster.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(records)
}

func (m *MemoryStore) insertLocked(records []cluster.Record) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if _, exists := m.index[r.ID]; exists || seen[r.ID] {
			return ErrDuplicate
		}
		seen[r.ID] = true
	}
	for _, r := range records {
		m.index[r.ID] = len(m.committed)
		m.committed = append(m.committed, r)
	}
	return nil
}

// List returns a copy of the committed records in commit order
func (m *MemoryStore) List(_ context.Context) ([]cluster.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cluster.Record, len(m.committed))
	copy(out, m.committed)
	return out, nil
}

// Get returns the committed record with id
func (m *MemoryStore) Get(_ context.Context, id string) (cluster.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, exists := m.index[id]
	if !exists {
		return cluster.Record{}, false, nil
	}
	return m.committed[pos], true, nil
}

// Exists reports whether id is committed
func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.index[id]
	return exists, nil
}

// Count returns the number of committed records
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.committed), nil
}

// Delete removes a committed record and keeps the commit order of the rest
func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.index[id]
	if !exists {
		return false, nil
	}
	m.committed = append(m.committed[:pos], m.committed[pos+1:]...)
	delete(m.index, id)
	for i := pos; i < len(m.committed); i++ {
		m.index[m.committed[i].ID] = i
	}
	return true, nil
}

// Stage adds a record to the staging area
func (m *MemoryStore) Stage(_ context.Context, record cluster.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.staged {
		if r.ID == record.ID {
			return ErrDuplicate
		}
	}
	m.staged = append(m.staged, record)
	return nil
}

// Staged returns a copy of the staged records
func (m *MemoryStore) Staged(_ context.Context) ([]cluster.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cluster.Record, len(m.staged))
	copy(out, m.staged)
	return out, nil
}

// CommitStaged moves one staged record into the committed list
func (m *MemoryStore) CommitStaged(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.staged {
		if r.ID != id {
			continue
		}
		if err := m.insertLocked([]cluster.Record{r}); err != nil {
			return err
		}
		m.staged = append(m.staged[:i], m.staged[i+1:]...)
		return nil
	}
	return ErrNotStaged
}

// DeleteStaged discards a staged record
func (m *MemoryStore) DeleteStaged(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.staged {
		if r.ID == id {
			m.staged = append(m.staged[:i], m.staged[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
