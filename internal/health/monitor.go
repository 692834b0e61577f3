package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/dreamware/quorra/internal/cluster"
)

var Logger = logger.GetLogger("health")

// Status values of a NodeHealth
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ErrNoAnswer is returned by the default check when a node does not answer
// its ping with an ok envelope.
var ErrNoAnswer = errors.New("ping not answered")

// NodeHealth tracks the health status of a single node.
// Protected by Monitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time `json:"last_check"`        // Timestamp of the last check attempt
	LastHealthy      time.Time `json:"last_healthy"`      // Timestamp of the last successful check
	Name             string    `json:"name"`              // Node name
	Address          string    `json:"address"`           // Address the node was last checked at
	Status           string    `json:"status"`            // StatusUnknown, StatusHealthy or StatusUnhealthy
	ConsecutiveFails int       `json:"consecutive_fails"` // Failed checks since the last success
}

// CheckFunc checks the node at addr and returns nil when it is alive.
type CheckFunc func(ctx context.Context, addr string) error

// Monitor checks a set of nodes every interval.
// Callbacks and the check function must be set before Start.
type Monitor struct {
	nodes       map[string]*NodeHealth    // Current health per node name
	client      *cluster.Client           // Client used by the default check
	checkFunc   CheckFunc                 // Performs one check
	beforeCheck func(ctx context.Context) // Runs before every round
	onUnhealthy func(node cluster.Node)   // Invoked on the transition to unhealthy
	ctx         context.Context           // Internal context for Stop
	cancel      context.CancelFunc        // Cancels ctx
	interval    time.Duration             // Time between rounds
	mu          sync.RWMutex              // Protects nodes
	wg          sync.WaitGroup            // Tracks the running loop
	maxFailures int                       // Failures before a node is unhealthy
}

// NewMonitor creates a monitor that runs a round every interval.
// A node is unhealthy after a single failed check; see SetMaxFailures.
//
// Example:
//
//	monitor := health.NewMonitor(2*time.Second, cluster.NewClient(5*time.Second))
//	monitor.SetOnUnhealthy(func(n cluster.Node) { registry.Evict(ctx, n.Name) })
//	monitor.Start(ctx, nodes)
//	defer monitor.Stop()
func NewMonitor(interval time.Duration, client *cluster.Client) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		interval:    interval,
		maxFailures: 1,
		nodes:       make(map[string]*NodeHealth),
		client:      client,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked when a node becomes unhealthy.
// The callback runs in its own goroutine, once per transition.
func (m *Monitor) SetOnUnhealthy(callback func(node cluster.Node)) {
	m.onUnhealthy = callback
}

// SetBeforeCheck sets a hook that runs at the start of every round, before
// the node provider is consulted. A peer uses it to run leader election.
func (m *Monitor) SetBeforeCheck(hook func(ctx context.Context)) {
	m.beforeCheck = hook
}

// SetCheckFunction overrides the default ping check.
func (m *Monitor) SetCheckFunction(checkFunc CheckFunc) {
	m.checkFunc = checkFunc
}

// SetMaxFailures sets how many consecutive failed checks mark a node
// unhealthy. Values below 1 are ignored.
func (m *Monitor) SetMaxFailures(n int) {
	if n < 1 {
		return
	}
	m.mu.Lock()
	m.maxFailures = n
	m.mu.Unlock()
}

// Start launches the monitor loop in its own goroutine and returns. The loop
// runs until ctx is cancelled or Stop is called, and its first round runs
// immediately. A monitor that was already stopped does not start.
func (m *Monitor) Start(ctx context.Context, nodeProvider func() []cluster.Node) {
	if m.ctx.Err() != nil {
		return
	}
	if ctx == nil {
		ctx = m.ctx
	}
	if m.checkFunc == nil {
		m.checkFunc = m.defaultCheck
	}

	ctx, cancel := mergeCancel(ctx, m.ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, nodeProvider)
	}()
}

func (m *Monitor) run(ctx context.Context, nodeProvider func() []cluster.Node) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	Logger.Infof("health monitor started with interval %v", m.interval)

	m.round(ctx, nodeProvider)

	for {
		select {
		case <-ticker.C:
			m.round(ctx, nodeProvider)
		case <-ctx.Done():
			Logger.Infof("health monitor stopping")
			return
		}
	}
}

// Stop cancels the loop and waits for it to return. A loop launched by
// Start before Stop is called is always waited for.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	Logger.Debugf("health monitor stopped")
}

// round runs the hook, then checks every node the provider returns and
// forgets the nodes it no longer returns.
func (m *Monitor) round(ctx context.Context, nodeProvider func() []cluster.Node) {
	if m.stopping(ctx) {
		return
	}
	if m.beforeCheck != nil {
		m.beforeCheck(ctx)
	}
	if m.stopping(ctx) {
		return
	}

	nodes := nodeProvider()
	current := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		current[node.Name] = true
		m.checkNode(ctx, node)
	}

	m.mu.Lock()
	for name := range m.nodes {
		if !current[name] {
			delete(m.nodes, name)
			Logger.Debugf("stopped monitoring %s", name)
		}
	}
	m.mu.Unlock()
}

// checkNode checks a single node and records the result.
func (m *Monitor) checkNode(ctx context.Context, node cluster.Node) {
	m.mu.Lock()
	h, exists := m.nodes[node.Name]
	if !exists || h.Address != node.Address {
		h = &NodeHealth{
			Name:        node.Name,
			Address:     node.Address,
			Status:      StatusUnknown,
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		m.nodes[node.Name] = h
	}
	m.mu.Unlock()

	err := m.checkFunc(ctx, node.Address)

	m.mu.Lock()
	defer m.mu.Unlock()

	h.LastCheck = time.Now()

	if err != nil {
		if m.stopping(ctx) {
			// shutting down, the failure says nothing about the node
			return
		}
		h.ConsecutiveFails++
		Logger.Warningf("check failed for %s at %s (%d/%d): %v",
			node.Name, node.Address, h.ConsecutiveFails, m.maxFailures, err)

		if h.ConsecutiveFails >= m.maxFailures {
			previous := h.Status
			h.Status = StatusUnhealthy

			if previous != StatusUnhealthy && m.onUnhealthy != nil {
				Logger.Warningf("%s marked unhealthy after %d failures", node.Name, h.ConsecutiveFails)
				go m.onUnhealthy(node)
			}
		}
		return
	}

	if h.Status == StatusUnhealthy {
		Logger.Infof("%s recovered", node.Name)
	}
	h.Status = StatusHealthy
	h.ConsecutiveFails = 0
	h.LastHealthy = time.Now()
}

// defaultCheck pings addr through the cluster client.
func (m *Monitor) defaultCheck(ctx context.Context, addr string) error {
	if !m.client.Ping(ctx, addr) {
		return ErrNoAnswer
	}
	return nil
}

// GetNodeHealth returns a copy of the health record of a node, or nil if the
// node is not monitored.
func (m *Monitor) GetNodeHealth(name string) *NodeHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, exists := m.nodes[name]
	if !exists {
		return nil
	}
	c := *h
	return &c
}

// GetAllNodeHealth returns a copy of every health record keyed by name.
func (m *Monitor) GetAllNodeHealth() map[string]*NodeHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(m.nodes))
	for name, h := range m.nodes {
		c := *h
		result[name] = &c
	}
	return result
}

// IsHealthy reports whether a monitored node passed its last check.
func (m *Monitor) IsHealthy(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, exists := m.nodes[name]
	return exists && h.Status == StatusHealthy
}

// stopping reports whether the loop was asked to stop. m.ctx is checked too
// because the merged context learns about Stop asynchronously.
func (m *Monitor) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || m.ctx.Err() != nil
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
