// Package storage defines the persistence interfaces of a quorra node and
// provides their in-memory implementations.
//
// # Overview
//
// Two independent stores back a cluster:
//
//	┌─────────────────────────────────────┐
//	│   Peer (replica)   Central (registry)│
//	└─────────┬──────────────────┬────────┘
//	          ▼                  ▼
//	┌──────────────────┐ ┌──────────────────┐
//	│   RecordStore    │ │ MembershipStore  │
//	│ committed+staged │ │  name → address  │
//	└────────┬─────────┘ └────────┬─────────┘
//	    ┌────┴─────┐         ┌────┴─────┐
//	    ▼          ▼         ▼          ▼
//	┌────────┐┌─────────┐┌────────┐┌─────────┐
//	│ Memory ││ pgstore ││ Memory ││redisstore│
//	└────────┘└─────────┘└────────┘└─────────┘
//
// # RecordStore
//
// RecordStore keeps two areas per node: committed records and staged
// records. The commit protocol stages a record on every peer (Stage),
// then promotes exactly that record (CommitStaged) or discards it
// (DeleteStaged). The store itself allows several staged records; keeping
// a single slot per node is the job of the replica on top of it. Insert and
// CommitStaged either apply entirely or fail with ErrDuplicate and leave
// the store untouched.
//
// List returns records in commit order, so two replicas that applied the
// same proposals in the same order list identical sequences.
//
// # MembershipStore
//
// MembershipStore is a flat name → address mapping. Set is an upsert, which
// makes re-registration of a node overwrite its previous address instead of
// creating a second entry.
//
// # Implementations
//
// MemoryStore and MemoryMembership live in this package and are used for
// tests and single-process deployments. pgstore persists records in
// PostgreSQL; redisstore keeps membership in a Redis hash.
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
package storage
