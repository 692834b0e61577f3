package peer

import (
	"context"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/exp/slices"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/replica"
)

var Logger = logger.GetLogger("peer")

// DefaultBackoff is the delay between election rounds and bootstrap polls.
const DefaultBackoff = time.Second

// Elector runs leader election rounds for the local node.
type Elector struct {
	view      *View
	transport Transport
	replica   *replica.Replica
	backoff   time.Duration
}

// NewElector creates an elector for the node described by view.
func NewElector(view *View, transport Transport, rep *replica.Replica) *Elector {
	return &Elector{
		view:      view,
		transport: transport,
		replica:   rep,
		backoff:   DefaultBackoff,
	}
}

// Elect runs rounds until one produces a leader, records it in the view and
// returns it. Returns ctx.Err() if ctx is cancelled first.
func (e *Elector) Elect(ctx context.Context) (string, error) {
	for {
		if leader, ok := e.Round(ctx); ok {
			if e.view.SetLeader(leader) {
				leaderChanges.Inc()
				Logger.Infof("%s elected %s", e.view.Self().Name, leader)
			}
			return leader, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.backoff):
		}
	}
}

// Round runs a single election round and returns its candidate. It does not
// change the leader belief, but it does refresh the cached membership.
func (e *Elector) Round(ctx context.Context) (string, bool) {
	electionRounds.Inc()
	self := e.view.Self()

	members, res := e.transport.Nodes(ctx, e.view.Central())
	if !res.Ok() {
		Logger.Warningf("election: membership unavailable: %s", res)
		return "", false
	}
	if addr, ok := members[self.Name]; !ok || addr != self.Address {
		Logger.Warningf("election: %s missing from membership, registering again", self.Name)
		if res := e.transport.Register(ctx, e.view.Central(), self); !res.Ok() {
			Logger.Warningf("election: register %s: %s", self.Name, res)
		}
		return "", false
	}
	e.view.SetKnown(members)
	names := sortedNames(members)

	beliefs := make([]string, 0, len(names))
	for _, name := range names {
		var belief string
		if name == self.Name {
			belief = e.view.Leader()
		} else {
			var res cluster.Result
			belief, res = e.transport.Leader(ctx, members[name])
			if !res.Ok() {
				Logger.Debugf("election: no belief from %s: %s", name, res)
				continue
			}
		}
		if belief != "" {
			beliefs = append(beliefs, belief)
		}
	}

	if winner := Tally(beliefs); winner != "" {
		if addr, ok := members[winner]; ok && (winner == self.Name || e.transport.Ping(ctx, addr)) {
			return winner, true
		}
		Logger.Infof("election: %s lost its vote, falling back to record counts", winner)
	}

	electionFallback.Inc()
	counts := make(map[string]int, len(names))
	for _, name := range names {
		if name == self.Name {
			n, err := e.replica.Count(ctx)
			if err != nil {
				Logger.Errorf("election: local count: %v", err)
				continue
			}
			counts[name] = n
			continue
		}
		records, res := e.transport.Data(ctx, members[name])
		if !res.Ok() {
			continue
		}
		counts[name] = len(records)
	}

	winner := Fallback(counts)
	return winner, winner != ""
}

// Tally returns the plurality winner of beliefs. Candidates are ranked by
// vote count; among the candidates with the top count the one seen last in
// beliefs wins. Returns "" for no beliefs.
func Tally(beliefs []string) string {
	counts := make(map[string]int, len(beliefs))
	order := make([]string, 0, len(beliefs))
	for _, b := range beliefs {
		if counts[b] == 0 {
			order = append(order, b)
		}
		counts[b]++
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})

	winner := ""
	for _, candidate := range order {
		if counts[candidate] < counts[order[0]] {
			break
		}
		winner = candidate
	}
	return winner
}

// Fallback returns the node holding the most records, ties going to the
// lexicographically greatest name. Returns "" for no counts.
func Fallback(counts map[string]int) string {
	winner, best := "", -1
	for name, n := range counts {
		if n > best || (n == best && name > winner) {
			winner, best = name, n
		}
	}
	return winner
}

func sortedNames(members map[string]string) []string {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
