package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/exp/slices"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/storage"
)

var Logger = logger.GetLogger("coordinator")

var (
	registrations = metrics.GetOrCreateCounter(`quorra_registry_registrations_total`)
	evictions     = metrics.GetOrCreateCounter(`quorra_registry_evictions_total`)
)

// Registry is the authoritative name → address mapping of the cluster.
type Registry struct {
	store storage.MembershipStore
}

// NewRegistry creates a registry over store.
func NewRegistry(store storage.MembershipStore) *Registry {
	return &Registry{store: store}
}

// NewMemoryRegistry creates a registry with in-memory membership.
func NewMemoryRegistry() *Registry {
	return NewRegistry(storage.NewMemoryMembership())
}

// Register validates n and upserts it.
func (r *Registry) Register(ctx context.Context, n cluster.Node) error {
	if err := cluster.ValidateNode(n); err != nil {
		return err
	}
	if err := r.store.Set(ctx, n.Name, n.Address); err != nil {
		return fmt.Errorf("register %s: %w", n.Name, err)
	}
	registrations.Inc()
	Logger.Infof("registered %s at %s", n.Name, n.Address)
	return nil
}

// List returns the membership as name → address.
func (r *Registry) List(ctx context.Context) (map[string]string, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list membership: %w", err)
	}
	return all, nil
}

// Nodes returns the membership sorted by name.
func (r *Registry) Nodes(ctx context.Context) ([]cluster.Node, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]cluster.Node, 0, len(all))
	for name, addr := range all {
		nodes = append(nodes, cluster.Node{Name: name, Address: addr})
	}
	slices.SortFunc(nodes, func(a, b cluster.Node) int {
		return strings.Compare(a.Name, b.Name)
	})
	return nodes, nil
}

// Evict removes a node. Reports whether it was registered.
func (r *Registry) Evict(ctx context.Context, name string) (bool, error) {
	removed, err := r.store.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("evict %s: %w", name, err)
	}
	if removed {
		evictions.Inc()
		Logger.Warningf("evicted %s", name)
	}
	return removed, nil
}

// Close closes the membership store.
func (r *Registry) Close() error {
	return r.store.Close()
}
