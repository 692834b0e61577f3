package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/storage"
)

var Logger = logger.GetLogger("replica")

// Messages returned to the leader. They travel in the "msg" field of the
// response envelope and are matched verbatim by clients.
var (
	// ErrDuplicateID is returned when the id is already committed
	ErrDuplicateID = errors.New("dup id!")
	// ErrDuplicateStaged is returned when the id is already staged
	ErrDuplicateStaged = errors.New("dup id in stage!")
	// ErrStageBusy is returned when another record holds the stage slot
	ErrStageBusy = errors.New("stage busy!")
	// ErrNotStaged is returned when a submit names an id that is not staged
	ErrNotStaged = errors.New("id not in stage!")
)

// DefaultStageTimeout is how long a staged record keeps the stage slot.
// After that a prepare of another record discards it.
const DefaultStageTimeout = 30 * time.Second

// Replica is the local record set of a peer
type Replica struct {
	Store        storage.RecordStore  // Committed and staged records
	Stats        *Stats               // Operation statistics
	StageTimeout time.Duration        // Age at which a staged record is abandoned
	mu           sync.Mutex           // Serialises stage transitions
	stagedAt     map[string]time.Time // When this process staged each record
	now          func() time.Time
}

// Stats tracks protocol operation counts
type Stats struct {
	Prepares  uint64 // Records staged
	Submits   uint64 // Records promoted
	Rollbacks uint64 // Records discarded or compensated
	Expired   uint64 // Abandoned stages discarded by a later prepare
	Loaded    uint64 // Records inserted by bootstrap
}

// Info contains a snapshot of the replica
type Info struct {
	Committed int   `json:"committed"`
	Staged    int   `json:"staged"`
	Stats     Stats `json:"stats"`
}

// New creates a replica over store
func New(store storage.RecordStore) *Replica {
	return &Replica{
		Store:        store,
		Stats:        &Stats{},
		StageTimeout: DefaultStageTimeout,
		stagedAt:     make(map[string]time.Time),
		now:          time.Now,
	}
}

// NewMemory creates a replica with in-memory storage
func NewMemory() *Replica {
	return New(storage.NewMemoryStore())
}

// Prepare stages a record. The stage holds one record at a time: while
// another record is staged and younger than StageTimeout the prepare is
// refused with ErrStageBusy. Older staged records were left behind by a
// proposal that never finished and are discarded first.
func (r *Replica) Prepare(ctx context.Context, rec cluster.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	committed, err := r.Store.Exists(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("check committed %s: %w", rec.ID, err)
	}
	if committed {
		return ErrDuplicateID
	}

	staged, err := r.Store.Staged(ctx)
	if err != nil {
		return fmt.Errorf("read stage: %w", err)
	}
	for _, s := range staged {
		if r.expired(s.ID) {
			continue
		}
		if s.ID == rec.ID {
			return ErrDuplicateStaged
		}
		return ErrStageBusy
	}
	for _, s := range staged {
		if _, err := r.Store.DeleteStaged(ctx, s.ID); err != nil {
			return fmt.Errorf("discard abandoned %s: %w", s.ID, err)
		}
		delete(r.stagedAt, s.ID)
		atomic.AddUint64(&r.Stats.Expired, 1)
		Logger.Warningf("discarded abandoned stage %s", s.ID)
	}

	if err := r.Store.Stage(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return ErrDuplicateStaged
		}
		return fmt.Errorf("stage %s: %w", rec.ID, err)
	}
	r.stagedAt[rec.ID] = r.now()

	atomic.AddUint64(&r.Stats.Prepares, 1)
	Logger.Debugf("staged %s", rec.ID)
	return nil
}

// expired reports whether the staged record id outlived StageTimeout.
// Records staged before this process started count as expired.
func (r *Replica) expired(id string) bool {
	at, ok := r.stagedAt[id]
	return !ok || r.now().Sub(at) >= r.StageTimeout
}

// Submit promotes the staged record with id
func (r *Replica) Submit(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.Store.CommitStaged(ctx, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			return ErrDuplicateID
		case errors.Is(err, storage.ErrNotStaged):
			return ErrNotStaged
		}
		return fmt.Errorf("commit staged %s: %w", id, err)
	}
	delete(r.stagedAt, id)
	atomic.AddUint64(&r.Stats.Submits, 1)
	Logger.Debugf("promoted %s", id)
	return nil
}

// Rollback discards the staged copy of rec.
// When nothing is staged under rec.ID and the committed record is identical
// to rec, the committed copy is removed. A rollback of an unknown record
// succeeds.
func (r *Replica) Rollback(ctx context.Context, rec cluster.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted, err := r.Store.DeleteStaged(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("discard staged %s: %w", rec.ID, err)
	}
	if deleted {
		delete(r.stagedAt, rec.ID)
		atomic.AddUint64(&r.Stats.Rollbacks, 1)
		Logger.Debugf("discarded staged %s", rec.ID)
		return nil
	}

	committed, found, err := r.Store.Get(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", rec.ID, err)
	}
	if !found || committed != rec {
		return nil
	}
	if _, err := r.Store.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("compensate %s: %w", rec.ID, err)
	}
	atomic.AddUint64(&r.Stats.Rollbacks, 1)
	Logger.Infof("compensated committed %s", rec.ID)
	return nil
}

// Load inserts records that are not present locally.
// Returns how many records were inserted.
func (r *Replica) Load(ctx context.Context, records []cluster.Record) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := make([]cluster.Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true

		exists, err := r.Store.Exists(ctx, rec.ID)
		if err != nil {
			return 0, fmt.Errorf("check committed %s: %w", rec.ID, err)
		}
		if !exists {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := r.Store.Insert(ctx, fresh...); err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	atomic.AddUint64(&r.Stats.Loaded, uint64(len(fresh)))
	return len(fresh), nil
}

// Records returns the committed records in commit order
func (r *Replica) Records(ctx context.Context) ([]cluster.Record, error) {
	return r.Store.List(ctx)
}

// Count returns the number of committed records
func (r *Replica) Count(ctx context.Context) (int, error) {
	return r.Store.Count(ctx)
}

// Has reports whether id is committed
func (r *Replica) Has(ctx context.Context, id string) (bool, error) {
	return r.Store.Exists(ctx, id)
}

// GetStats returns current replica statistics
func (r *Replica) GetStats() Stats {
	return Stats{
		Prepares:  atomic.LoadUint64(&r.Stats.Prepares),
		Submits:   atomic.LoadUint64(&r.Stats.Submits),
		Rollbacks: atomic.LoadUint64(&r.Stats.Rollbacks),
		Expired:   atomic.LoadUint64(&r.Stats.Expired),
		Loaded:    atomic.LoadUint64(&r.Stats.Loaded),
	}
}

// Info returns a snapshot of the replica
func (r *Replica) Info(ctx context.Context) (Info, error) {
	committed, err := r.Store.Count(ctx)
	if err != nil {
		return Info{}, err
	}
	staged, err := r.Store.Staged(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Committed: committed,
		Staged:    len(staged),
		Stats:     r.GetStats(),
	}, nil
}

// Close closes the underlying store
func (r *Replica) Close() error {
	return r.Store.Close()
}
