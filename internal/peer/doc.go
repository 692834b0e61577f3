// Package peer implements the behaviour of a replicating node: leader
// election, the leader's side of the two-phase commit, bootstrap of a joining
// node and the background supervisor that keeps the leader belief current.
//
// # Overview
//
// A cluster is one central node and any number of peers. The central node
// only keeps the membership; every record lives on the peers, and every peer
// holds the same committed records. Peers agree on a single leader among
// themselves, and the leader is the only node that drives commits. A peer
// that receives a proposal while it is not leader forwards it to the node it
// believes leads.
//
//	        ┌──────────────┐
//	        │   CENTRAL    │  membership registry, health monitor
//	        └──────┬───────┘
//	   register /  │  nodes / evict
//	   ┌───────────┼───────────┐
//	   ▼           ▼           ▼
//	┌──────┐   ┌──────┐   ┌──────┐
//	│  n1  │◄──┤  n2  ├──►│  n3  │   n2 leads: prepare, submit, rollback
//	└──────┘   └──────┘   └──────┘
//
// # Components
//
//	┌──────────────────────────────────────────────┐
//	│                    PEER                      │
//	├──────────────────────────────────────────────┤
//	│  View         self, leader belief, cached    │
//	│               membership (mutex guarded)     │
//	│  Elector      one round = read membership,   │
//	│               tally beliefs, verify, fallback│
//	│  Committer    prepare / submit / rollback    │
//	│               across the whole membership    │
//	│  Bootstrapper one-shot catch-up from leader  │
//	│  Supervisor   health.Monitor watching leader │
//	└──────────────────────────────────────────────┘
//
// View is the only shared state. The Elector writes the leader belief and
// the cached membership, the Committer and the Bootstrapper read them, and
// the HTTP handlers of cmd/node answer leader queries from it.
//
// Transport is the set of remote calls a peer makes. *cluster.Client is the
// production implementation; tests run whole clusters in process with a
// fake that routes calls straight to other Peer values.
//
// # Election
//
// A round reads the membership from the central node and asks every member
// which node it believes to be leader. The local node answers from its own
// View. The plurality winner is accepted when it is still a member and
// answers a ping. Otherwise the reachable node holding the most records is
// chosen, ties going to the greatest name, so that nodes with the same view
// of the cluster pick the same leader.
//
//	beliefs  n1→n3  n2→n3  n3→n3      Tally    = n3, ping n3 ok → n3
//	beliefs  n1→n3  n2→n3  (n3 dead)  Tally    = n3, ping fails
//	counts   n1=4   n2=4              Fallback = n2
//
// A node that finds itself missing from the membership registers again and
// gives up the round; it takes part in the next one. Elect repeats rounds
// with DefaultBackoff between them until one produces a leader.
//
// # Commit
//
// Only the leader commits. A proposal is staged on every member in name order,
// then submitted on every member. The first failure aborts the proposal and
// every member that may hold a copy is rolled back. A member whose rollback
// fails is told to terminate, since its replica can no longer be trusted;
// the central node's health monitor evicts it afterwards.
//
//	leader                 member (each, in name order)
//	  │  PUT /prepare/ rec   │
//	  ├─────────────────────►│  stage rec
//	  │  PUT /submit/  rec   │
//	  ├─────────────────────►│  promote rec.ID only
//	  │                      │
//	  │  on failure:         │
//	  │  PUT /rollback/ rec  │
//	  ├─────────────────────►│  drop staged or committed rec
//	  │  GET /kill/          │
//	  └─────────────────────►│  only when its rollback failed
//
// The outcome is one of the messages below; clients see them verbatim.
//
//	nil                        committed on every member
//	ErrPrepareRollbackSuccess  a prepare failed, nothing was kept anywhere
//	ErrPrepareRollbackFailed   a prepare failed and a member was terminated
//	ErrSubmitRollbackSuccess   a submit failed, nothing was kept anywhere
//	ErrSubmitRollbackFailed    a submit failed and a member was terminated
//	ErrBusy                    another proposal holds the leader
//
// Committer.Phase reports the step of the proposal in flight, for the info
// route and for tests.
//
// # Stage Slot
//
// Each replica stages at most one record at a time. A prepare for a
// different record while one is staged is rejected with "stage busy!", so a
// leader can never promote a record some earlier, abandoned proposal left
// behind. Submit names the record it promotes and a replica refuses to
// promote anything else. A staged record that was never submitted or rolled
// back, for example because its leader died between the two phases, expires
// after the replica's StageTimeout and is discarded by the next prepare.
// Until then proposals to that replica fail and are rolled back cleanly.
//
// # Startup
//
// Start runs the steps a joining node needs, in order:
//
//  1. Register with the central node, retrying a bounded number of times.
//  2. Start the Supervisor, whose first tick elects a leader.
//  3. Bootstrap: wait for a leader and load its committed records.
//
// The local node never calls itself over HTTP. It handles its own prepare,
// submit, rollback and leader belief directly, which lets it elect and
// commit before its HTTP server is listening.
//
// # Usage
//
//	client := cluster.NewClient(5 * time.Second)
//	p := peer.New(self, centralAddr, client, replica.NewMemory(), time.Second)
//	if err := p.Start(ctx, 10, time.Second); err != nil {
//		log.Fatal(err)
//	}
//	defer p.Stop()
//
//	res := p.Propose(ctx, cluster.Record{ID: "a", Raw: "payload", Signature: "sig"})
//	if !res.Ok() {
//		log.Printf("proposal rejected: %s", res.Msg)
//	}
//
// # Invariants
//
//   - After a successful commit every member of the cluster holds the record.
//   - After a rolled back commit no member holds it, or the member that might
//     has been told to terminate.
//   - The leader runs at most one proposal at a time.
//   - A record id is committed at most once across the cluster.
//   - A replica promotes only the record named by the submit it receives.
//
// # Thread Safety
//
// View is guarded by a mutex and safe for concurrent use. Committer admits a
// single proposal and rejects the others with ErrBusy instead of queueing
// them. The Supervisor runs on its own goroutine; Stop waits for it.
package peer
