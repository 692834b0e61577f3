package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/replica"
)

// Peer bundles the components of a replicating node.
type Peer struct {
	View         *View
	Replica      *replica.Replica
	Transport    Transport
	Elector      *Elector
	Committer    *Committer
	Bootstrapper *Bootstrapper
	Supervisor   *Supervisor
}

// New wires the components of a peer. interval is the supervisor tick.
func New(self cluster.Node, central string, transport Transport, rep *replica.Replica, interval time.Duration) *Peer {
	view := NewView(self, central)
	elector := NewElector(view, transport, rep)
	return &Peer{
		View:         view,
		Replica:      rep,
		Transport:    transport,
		Elector:      elector,
		Committer:    NewCommitter(view, transport, rep),
		Bootstrapper: NewBootstrapper(view, transport, rep),
		Supervisor:   NewSupervisor(view, elector, transport, interval),
	}
}

// Register registers the local node with the central node, trying up to
// attempts times with delay between attempts.
func (p *Peer) Register(ctx context.Context, attempts int, delay time.Duration) error {
	self := p.View.Self()
	var last cluster.Result
	for i := 0; i < attempts; i++ {
		last = p.Transport.Register(ctx, p.View.Central(), self)
		if last.Ok() {
			Logger.Infof("registered %s with central @ %s", self.Name, p.View.Central())
			return nil
		}
		Logger.Warningf("register retry %d: %s", i+1, last)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("register %s with %s: %s", self.Name, p.View.Central(), last)
}

// Start registers, starts the supervisor and bootstraps the replica. The
// node is ready to serve when Start returns nil.
func (p *Peer) Start(ctx context.Context, attempts int, delay time.Duration) error {
	if err := p.Register(ctx, attempts, delay); err != nil {
		return err
	}
	p.Supervisor.Start(ctx)
	if _, err := p.Bootstrapper.Run(ctx); err != nil {
		p.Supervisor.Stop()
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Stop stops the supervisor.
func (p *Peer) Stop() {
	p.Supervisor.Stop()
}

// Propose routes rec to the leader: the local committer when this node is
// leader, the leader's proposal endpoint otherwise.
func (p *Peer) Propose(ctx context.Context, rec cluster.Record) cluster.Result {
	if p.View.IsLeader() {
		return localResult(p.Committer.Commit(ctx, rec))
	}
	leader, ok := p.View.LeaderAddress()
	if !ok {
		return cluster.Result{Outcome: cluster.Rejected, Msg: ErrNoLeader.Error()}
	}
	return p.Transport.Propose(ctx, leader.Address, rec)
}
