package peer

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/replica"
)

const centralAddr = "central:8000"

// fakeNet routes Transport calls straight into in-process peers, as if every
// node were serving HTTP.
type fakeNet struct {
	mu          sync.Mutex
	registry    map[string]string
	peers       map[string]*Peer // by address
	down        map[string]bool
	centralDown bool

	failPrepare  map[string]string // address -> rejection message
	failSubmit   map[string]string
	failRollback map[string]string

	terminated []string
	prepares   []string
}

var _ Transport = (*fakeNet)(nil)

func newFakeNet() *fakeNet {
	return &fakeNet{
		registry:     map[string]string{},
		peers:        map[string]*Peer{},
		down:         map[string]bool{},
		failPrepare:  map[string]string{},
		failSubmit:   map[string]string{},
		failRollback: map[string]string{},
	}
}

// addPeer creates a peer on an in-memory replica and attaches it to the net.
// The peer is not registered.
func (f *fakeNet) addPeer(name string) *Peer {
	self := cluster.Node{Name: name, Address: name + ":9000"}
	p := New(self, centralAddr, f, replica.NewMemory(), 20*time.Millisecond)
	p.Elector.backoff = 5 * time.Millisecond
	p.Bootstrapper.interval = 5 * time.Millisecond

	f.mu.Lock()
	f.peers[self.Address] = p
	f.mu.Unlock()
	return p
}

func (f *fakeNet) register(p *Peer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[p.View.Self().Name] = p.View.Self().Address
}

func (f *fakeNet) setDown(addr string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[addr] = down
}

func (f *fakeNet) peer(addr string) *Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[addr] {
		return nil
	}
	return f.peers[addr]
}

func (f *fakeNet) failure(m map[string]string, addr string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := m[addr]
	return msg, ok
}

func (f *fakeNet) terminatedAddrs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...)
}

var (
	unreachableResult = cluster.Result{Outcome: cluster.Unreachable, Msg: "connection refused"}
	okResult          = cluster.Result{Outcome: cluster.OK}
)

func (f *fakeNet) Ping(_ context.Context, addr string) bool {
	return f.peer(addr) != nil
}

func (f *fakeNet) Register(_ context.Context, _ string, n cluster.Node) cluster.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.centralDown {
		return unreachableResult
	}
	f.registry[n.Name] = n.Address
	return okResult
}

func (f *fakeNet) Nodes(context.Context, string) (map[string]string, cluster.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.centralDown {
		return nil, unreachableResult
	}
	out := make(map[string]string, len(f.registry))
	for k, v := range f.registry {
		out[k] = v
	}
	return out, okResult
}

func (f *fakeNet) Data(ctx context.Context, addr string) ([]cluster.Record, cluster.Result) {
	p := f.peer(addr)
	if p == nil {
		return nil, unreachableResult
	}
	records, err := p.Replica.Records(ctx)
	return records, localResult(err)
}

func (f *fakeNet) Propose(ctx context.Context, addr string, rec cluster.Record) cluster.Result {
	p := f.peer(addr)
	if p == nil {
		return unreachableResult
	}
	if !p.View.IsLeader() {
		return cluster.Result{Outcome: cluster.Rejected, Msg: "not leader"}
	}
	return localResult(p.Committer.Commit(ctx, rec))
}

func (f *fakeNet) Prepare(ctx context.Context, addr string, rec cluster.Record) cluster.Result {
	p := f.peer(addr)
	if p == nil {
		return unreachableResult
	}
	f.mu.Lock()
	f.prepares = append(f.prepares, addr)
	f.mu.Unlock()
	if msg, failing := f.failure(f.failPrepare, addr); failing {
		return cluster.Result{Outcome: cluster.Rejected, Msg: msg}
	}
	return localResult(p.Replica.Prepare(ctx, rec))
}

func (f *fakeNet) Submit(ctx context.Context, addr string, rec cluster.Record) cluster.Result {
	p := f.peer(addr)
	if p == nil {
		return unreachableResult
	}
	if msg, failing := f.failure(f.failSubmit, addr); failing {
		return cluster.Result{Outcome: cluster.Rejected, Msg: msg}
	}
	return localResult(p.Replica.Submit(ctx, rec.ID))
}

func (f *fakeNet) Rollback(ctx context.Context, addr string, rec cluster.Record) cluster.Result {
	p := f.peer(addr)
	if p == nil {
		return unreachableResult
	}
	if msg, failing := f.failure(f.failRollback, addr); failing {
		return cluster.Result{Outcome: cluster.Rejected, Msg: msg}
	}
	return localResult(p.Replica.Rollback(ctx, rec))
}

func (f *fakeNet) Leader(_ context.Context, addr string) (string, cluster.Result) {
	p := f.peer(addr)
	if p == nil {
		return "", unreachableResult
	}
	return p.View.Leader(), okResult
}

func (f *fakeNet) Terminate(_ context.Context, addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, addr)
	f.down[addr] = true
}
