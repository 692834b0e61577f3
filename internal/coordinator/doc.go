// Package coordinator implements the membership registry kept by the central
// node of a quorra cluster.
//
// # Overview
//
// The central node is not part of the replicated record set. It keeps one
// piece of authoritative state: the mapping from node name to node address.
// Peers register themselves on startup and read the mapping whenever they
// elect a leader or run a proposal.
//
//	┌───────────────────────────────────────┐
//	│               CENTRAL                 │
//	├───────────────────────────────────────┤
//	│  Registry                             │
//	│    name → address                     │
//	│    backed by a storage.MembershipStore│
//	│                                       │
//	│  health.Monitor                       │
//	│    pings every registered node        │
//	│    evicts a node on a failed ping     │
//	└───────────────────────────────────────┘
//
// # Registration
//
// Register is an upsert: a node that restarts on a new address simply
// registers again and its entry is overwritten. Requests are validated
// before they reach the store, so neither name nor address may be empty.
//
// # Eviction
//
// The registry never removes a node on its own. The central's health monitor
// calls Evict after a node fails a check, and the node is gone from the next
// membership read. A node that comes back re-registers.
//
// # Storage
//
// The membership lives in memory by default (storage.MemoryMembership) or in
// a Redis hash (redisstore.Membership), in which case it survives restarts of
// the central node.
//
// # Thread Safety
//
// Registry holds no state of its own beyond the store, and every store
// implementation is safe for concurrent use.
package coordinator
