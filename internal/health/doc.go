// Package health watches a set of cluster nodes and reports the ones that
// stop answering. It is the failure detector of the cluster: the central
// node uses it to evict dead members from the registry, and every peer uses
// it to notice that its leader has gone away.
//
// # Overview
//
// A Monitor runs rounds on a fixed interval. Each round asks a node provider
// which nodes to watch, checks every one of them and records the outcome in
// a NodeHealth entry keyed by node name. When a node crosses the failure
// threshold the monitor invokes the unhealthy callback once for that
// transition. Nodes the provider stops returning are forgotten, so the
// monitor never holds state for a node that has left the cluster.
//
//	┌──────────────────────────────────────────────────┐
//	│                     MONITOR                      │
//	├──────────────────────────────────────────────────┤
//	│                                                  │
//	│   ticker ──► round                               │
//	│                │                                 │
//	│                ├─► beforeCheck(ctx)   (optional) │
//	│                ├─► nodeProvider()                │
//	│                ├─► checkFunc(ctx, addr) per node │
//	│                │        │                        │
//	│                │        ├─ nil   ─► healthy      │
//	│                │        └─ error ─► fails++      │
//	│                │                    │            │
//	│                │      fails >= max ─► unhealthy  │
//	│                │                    └─► callback │
//	│                └─► forget nodes not returned     │
//	│                                                  │
//	└──────────────────────────────────────────────────┘
//
// # Deployments
//
// The package has two users with different node providers and callbacks.
//
// Central node: the provider returns every registered member and the
// callback evicts the member from the registry. A dead peer therefore leaves
// the membership within one interval of its first failed ping, which is what
// lets the leader's commit protocol make progress again after a node dies.
//
//	monitor := health.NewMonitor(2*time.Second, cluster.NewClient(5*time.Second))
//	monitor.SetOnUnhealthy(func(n cluster.Node) {
//		if _, err := registry.Evict(ctx, n.Name); err != nil {
//			log.Printf("evict %s: %v", n.Name, err)
//		}
//	})
//	monitor.Start(ctx, func() []cluster.Node {
//		nodes, _ := registry.Nodes(ctx)
//		return nodes
//	})
//	defer monitor.Stop()
//
// Peer node: the provider returns the believed leader, or nothing when the
// node leads itself or has no leader. The check goes through the peer's
// transport instead of the default client, the beforeCheck hook runs leader
// election, and the callback clears the leader belief so that the next round
// elects again.
//
//	monitor := health.NewMonitor(time.Second, nil)
//	monitor.SetCheckFunction(func(ctx context.Context, addr string) error {
//		if !transport.Ping(ctx, addr) {
//			return health.ErrNoAnswer
//		}
//		return nil
//	})
//	monitor.SetBeforeCheck(elect)
//	monitor.SetOnUnhealthy(func(n cluster.Node) { view.ClearLeader(n.Name) })
//	monitor.Start(ctx, leaderNodes)
//
// # Node States
//
// Every watched node is in one of three states:
//
//	StatusUnknown   first seen, not checked yet
//	StatusHealthy   last check succeeded
//	StatusUnhealthy ConsecutiveFails reached the threshold
//
// A successful check always returns a node to StatusHealthy and resets its
// failure count. A node whose address changes between rounds is treated as
// a new node: its entry is replaced and starts again from StatusUnknown.
//
// The default threshold is a single failure. A cluster that prefers to ride
// out a lost packet can raise it with SetMaxFailures, at the price of a
// longer window during which a dead member blocks commits.
//
// # Lifecycle
//
// Start launches the loop in its own goroutine and returns at once. The
// first round runs immediately, later rounds on every tick. The loop ends
// when the context passed to Start is cancelled or when Stop is called.
//
// Stop cancels the loop and waits for it to return. Every loop launched by a
// Start that returned before Stop was called is waited for, so no round runs
// after Stop returns. A monitor is single use: Start on a stopped monitor
// does nothing.
//
//	monitor.Start(ctx, nodes)  // returns immediately
//	...
//	monitor.Stop()             // blocks until the loop has exited
//
// # Invariants
//
//   - The unhealthy callback fires once per transition into StatusUnhealthy,
//     never again for the same node until it has been healthy in between.
//   - The callback runs in its own goroutine, so it may call back into the
//     monitor or block on the network without stalling the loop.
//   - A check that fails because the monitor is shutting down is not counted.
//     Cancelling a deployment never evicts the nodes it was watching.
//   - The hook and the provider are not consulted once the monitor is
//     stopping.
//
// # Querying
//
// GetNodeHealth, GetAllNodeHealth and IsHealthy expose the recorded state.
// The getters return copies, so callers may keep or serialize them freely.
// The central node serves GetAllNodeHealth on its info route and a peer
// serves the health of its leader on its own.
//
//	if h := monitor.GetNodeHealth("n2"); h != nil {
//		fmt.Printf("%s is %s since %v\n", h.Name, h.Status, h.LastCheck)
//	}
//
// # Thread Safety
//
// Start, Stop, SetMaxFailures and the getters are safe for concurrent use.
// The other setters are meant to be called before Start and are not
// synchronized with a running loop.
package health
