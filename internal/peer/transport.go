package peer

import (
	"context"

	"github.com/dreamware/quorra/internal/cluster"
)

// Transport is the subset of the cluster client a peer uses to talk to other
// nodes. *cluster.Client satisfies it; tests substitute an in-process fake.
type Transport interface {
	Ping(ctx context.Context, addr string) bool
	Register(ctx context.Context, central string, n cluster.Node) cluster.Result
	Nodes(ctx context.Context, central string) (map[string]string, cluster.Result)
	Data(ctx context.Context, addr string) ([]cluster.Record, cluster.Result)
	Propose(ctx context.Context, addr string, rec cluster.Record) cluster.Result
	Prepare(ctx context.Context, addr string, rec cluster.Record) cluster.Result
	Submit(ctx context.Context, addr string, rec cluster.Record) cluster.Result
	Rollback(ctx context.Context, addr string, rec cluster.Record) cluster.Result
	Leader(ctx context.Context, addr string) (string, cluster.Result)
	Terminate(ctx context.Context, addr string)
}

var _ Transport = (*cluster.Client)(nil)
