// Package replica implements the local copy of the cluster's record set held
// by every peer, and the participant side of the two-phase commit protocol.
//
// # Overview
//
// Every peer holds a full replica of the committed records. A replica has two
// areas, both kept by a storage.RecordStore:
//
//	┌──────────────────────────────────────┐
//	│               REPLICA                │
//	├──────────────────────────────────────┤
//	│  staged     records prepared by the  │
//	│             leader, not yet visible  │
//	│                                      │
//	│  committed  records visible through  │
//	│             GET /data/, commit order │
//	└──────────────────────────────────────┘
//
// # Protocol
//
//	prepare(rec)   stage rec; refused when rec.ID is committed ("dup id!")
//	               or already staged ("dup id in stage!")
//	submit()       promote every staged record in one step
//	rollback(rec)  discard the staged copy of rec; when rec was already
//	               promoted, remove the committed copy as well
//
// Rollback of an already promoted record makes a rollback issued after a
// partial submit a compensating action, so an aborted proposal leaves no
// record behind on any peer that answered.
//
// # Bootstrap
//
// Load inserts records fetched from the leader when a peer joins. Records
// already present locally are skipped.
//
// # Thread Safety
//
// Stage transitions are serialised by a mutex so that a check followed by a
// write (prepare, rollback) is atomic. Statistics use atomic counters and
// may be read at any time.
package replica
