package peer

import (
	"context"
	"time"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/health"
)

// Supervisor keeps the leader belief of a node current. Every tick it elects
// a leader when there is none, or runs one refresh round otherwise, then
// pings the leader. A leader that fails its ping is forgotten and the next
// tick elects again.
type Supervisor struct {
	view    *View
	elector *Elector
	monitor *health.Monitor
	cancel  context.CancelFunc
}

// NewSupervisor creates a supervisor that ticks every interval.
func NewSupervisor(view *View, elector *Elector, transport Transport, interval time.Duration) *Supervisor {
	s := &Supervisor{
		view:    view,
		elector: elector,
		monitor: health.NewMonitor(interval, nil),
	}
	s.monitor.SetCheckFunction(func(ctx context.Context, addr string) error {
		if !transport.Ping(ctx, addr) {
			return health.ErrNoAnswer
		}
		return nil
	})
	s.monitor.SetBeforeCheck(s.refresh)
	s.monitor.SetOnUnhealthy(func(n cluster.Node) {
		if s.view.ClearLeader(n.Name) {
			Logger.Warningf("leader %s is unreachable, forgetting it", n.Name)
		}
	})
	return s
}

// Start runs the supervisor in the background until Stop is called or ctx
// is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.monitor.Start(ctx, s.leaderNodes)
}

// Stop stops the supervisor and waits for the current tick to finish.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.monitor.Stop()
}

// refresh elects a leader, blocking, when none is believed and runs a single
// round otherwise.
func (s *Supervisor) refresh(ctx context.Context) {
	if s.view.Leader() == "" {
		if _, err := s.elector.Elect(ctx); err != nil {
			Logger.Debugf("election interrupted: %v", err)
		}
		return
	}

	candidate, ok := s.elector.Round(ctx)
	if !ok {
		return
	}
	previous := s.view.Leader()
	if s.view.SetLeader(candidate) {
		leaderChanges.Inc()
		Logger.Infof("%s switched leader from %s to %s", s.view.Self().Name, previous, candidate)
	}
}

// LeaderHealth returns the last health check of the believed leader. It is
// nil when there is no leader, when the local node leads, or before the
// first check.
func (s *Supervisor) LeaderHealth() *health.NodeHealth {
	leader, ok := s.view.LeaderAddress()
	if !ok || leader.Name == s.view.Self().Name {
		return nil
	}
	return s.monitor.GetNodeHealth(leader.Name)
}

// leaderNodes returns the believed leader unless it is the local node.
func (s *Supervisor) leaderNodes() []cluster.Node {
	leader, ok := s.view.LeaderAddress()
	if !ok || leader.Name == s.view.Self().Name {
		return nil
	}
	return []cluster.Node{leader}
}
