package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/replica"
)

// Phase is the state of the proposal a Committer is working on.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseSubmitting
	PhaseRollingBack
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseSubmitting:
		return "submitting"
	case PhaseRollingBack:
		return "rolling back"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Errors returned by Commit and Propose. Their messages are what clients
// receive.
var (
	ErrNoLeader               = errors.New("no leader elected")
	ErrBusy                   = errors.New("another proposal is in progress")
	ErrPrepareRollbackSuccess = errors.New("prepare failed, rollback success!")
	ErrPrepareRollbackFailed  = errors.New("prepare failed, rollback failed!")
	ErrSubmitRollbackSuccess  = errors.New("submit failed, rollback success!")
	ErrSubmitRollbackFailed   = errors.New("submit failed, rollback failed!")
)

// Committer runs the leader's side of the commit protocol.
type Committer struct {
	view      *View
	transport Transport
	replica   *replica.Replica
	admission sync.Mutex
	phase     atomic.Int32
}

// NewCommitter creates a committer for the node described by view.
func NewCommitter(view *View, transport Transport, rep *replica.Replica) *Committer {
	return &Committer{
		view:      view,
		transport: transport,
		replica:   rep,
	}
}

// Phase returns the phase of the current or last proposal.
func (c *Committer) Phase() Phase {
	return Phase(c.phase.Load())
}

// Commit replicates rec to every member of the cluster, or to none of them.
// Only one proposal runs at a time; a concurrent call returns ErrBusy.
func (c *Committer) Commit(ctx context.Context, rec cluster.Record) error {
	if err := cluster.ValidateRecord(rec); err != nil {
		return err
	}
	if !c.admission.TryLock() {
		proposalsBusy.Inc()
		return ErrBusy
	}
	defer c.admission.Unlock()

	proposals.Inc()
	start := time.Now()
	defer commitDuration.UpdateDuration(start)

	trace := uuid.NewString()

	has, err := c.replica.Has(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("check %s: %w", rec.ID, err)
	}
	if has {
		proposalsDup.Inc()
		Logger.Infof("[%s] %s already committed", trace, rec.ID)
		return replica.ErrDuplicateID
	}

	members := c.members(ctx)
	Logger.Infof("[%s] proposing %s to %d members", trace, rec.ID, len(members))

	c.setPhase(PhasePreparing)
	prepared := make([]cluster.Node, 0, len(members))
	for _, m := range members {
		res := c.prepare(ctx, m, rec)
		if !res.Ok() {
			Logger.Warningf("[%s] prepare %s on %s: %s", trace, rec.ID, m.Name, res)
			c.setPhase(PhaseRollingBack)
			ok := c.rollback(ctx, trace, prepared, rec)
			c.abort()
			if ok {
				return ErrPrepareRollbackSuccess
			}
			return ErrPrepareRollbackFailed
		}
		prepared = append(prepared, m)
	}

	c.setPhase(PhaseSubmitting)
	for _, m := range members {
		res := c.submit(ctx, m, rec)
		if !res.Ok() {
			Logger.Warningf("[%s] submit %s on %s: %s", trace, rec.ID, m.Name, res)
			c.setPhase(PhaseRollingBack)
			ok := c.rollback(ctx, trace, prepared, rec)
			c.abort()
			if ok {
				return ErrSubmitRollbackSuccess
			}
			return ErrSubmitRollbackFailed
		}
	}

	c.setPhase(PhaseCommitted)
	commits.Inc()
	Logger.Infof("[%s] committed %s", trace, rec.ID)
	return nil
}

// members returns the membership sorted by name, read from the central node
// or, when it is unreachable, from the cached view. The local node is always
// included.
func (c *Committer) members(ctx context.Context) []cluster.Node {
	self := c.view.Self()

	all, res := c.transport.Nodes(ctx, c.view.Central())
	if res.Ok() {
		c.view.SetKnown(all)
	} else {
		Logger.Warningf("membership unavailable (%s), using cached view", res)
		all = c.view.Known()
	}
	if all == nil {
		all = make(map[string]string, 1)
	}
	all[self.Name] = self.Address

	members := make([]cluster.Node, 0, len(all))
	for _, name := range sortedNames(all) {
		members = append(members, cluster.Node{Name: name, Address: all[name]})
	}
	return members
}

// rollback rolls rec back on every node in nodes and terminates the ones
// that fail. Reports whether every rollback succeeded.
func (c *Committer) rollback(ctx context.Context, trace string, nodes []cluster.Node, rec cluster.Record) bool {
	self := c.view.Self()
	ok := true
	for _, m := range nodes {
		res := c.rollbackOne(ctx, m, rec)
		if res.Ok() {
			continue
		}
		ok = false
		Logger.Errorf("[%s] rollback %s on %s: %s", trace, rec.ID, m.Name, res)
		if m.Name != self.Name {
			terminations.Inc()
			c.transport.Terminate(ctx, m.Address)
		}
	}
	return ok
}

func (c *Committer) abort() {
	c.setPhase(PhaseAborted)
	aborts.Inc()
}

func (c *Committer) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

func (c *Committer) isSelf(n cluster.Node) bool {
	return n.Name == c.view.Self().Name
}

func (c *Committer) prepare(ctx context.Context, n cluster.Node, rec cluster.Record) cluster.Result {
	if !c.isSelf(n) {
		return c.transport.Prepare(ctx, n.Address, rec)
	}
	return localResult(c.replica.Prepare(ctx, rec))
}

func (c *Committer) submit(ctx context.Context, n cluster.Node, rec cluster.Record) cluster.Result {
	if !c.isSelf(n) {
		return c.transport.Submit(ctx, n.Address, rec)
	}
	return localResult(c.replica.Submit(ctx, rec.ID))
}

func (c *Committer) rollbackOne(ctx context.Context, n cluster.Node, rec cluster.Record) cluster.Result {
	if !c.isSelf(n) {
		return c.transport.Rollback(ctx, n.Address, rec)
	}
	return localResult(c.replica.Rollback(ctx, rec))
}

func localResult(err error) cluster.Result {
	if err != nil {
		return cluster.Result{Outcome: cluster.Rejected, Msg: err.Error()}
	}
	return cluster.Result{Outcome: cluster.OK}
}
