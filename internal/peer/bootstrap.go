package peer

import (
	"context"
	"time"

	"github.com/dreamware/quorra/internal/replica"
)

// Bootstrapper copies the leader's records into a joining node.
type Bootstrapper struct {
	view      *View
	transport Transport
	replica   *replica.Replica
	interval  time.Duration
}

// NewBootstrapper creates a bootstrapper for the node described by view.
func NewBootstrapper(view *View, transport Transport, rep *replica.Replica) *Bootstrapper {
	return &Bootstrapper{
		view:      view,
		transport: transport,
		replica:   rep,
		interval:  DefaultBackoff,
	}
}

// Run waits for a leader belief and loads the leader's records that are
// missing locally. It returns the number of records loaded. Nothing is
// loaded when the local node is leader. Fetch failures are retried until
// ctx is cancelled.
func (b *Bootstrapper) Run(ctx context.Context) (int, error) {
	self := b.view.Self()
	for {
		leader, ok := b.view.LeaderAddress()
		switch {
		case !ok:
			Logger.Debugf("bootstrap: waiting for a leader")
		case leader.Name == self.Name:
			Logger.Infof("bootstrap: %s is leader, nothing to sync", self.Name)
			return 0, nil
		default:
			records, res := b.transport.Data(ctx, leader.Address)
			if res.Ok() {
				n, err := b.replica.Load(ctx, records)
				if err != nil {
					return 0, err
				}
				bootstrapLoaded.Add(n)
				Logger.Infof("bootstrap: loaded %d of %d records from %s", n, len(records), leader.Name)
				return n, nil
			}
			Logger.Warningf("bootstrap: fetch from %s: %s", leader.Name, res)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(b.interval):
		}
	}
}
