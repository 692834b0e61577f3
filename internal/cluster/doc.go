// Package cluster provides the wire model and the peer client shared by the
// central node and every peer of a quorra cluster.
//
// # Overview
//
// A quorra cluster is a hub of one central node, which owns the membership
// registry, and any number of peers, which hold replicated records, elect a
// leader among themselves and commit writes through that leader:
//
//	              ┌──────────────┐
//	              │ Central node │
//	              │              │
//	              │ - Registry   │
//	              │ - Health Mon │
//	              └──────┬───────┘
//	                     │ register / list / ping
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐  ┌─────▼─────┐  ┌─────▼─────┐
//	│  Peer n1  │◄─┤  Peer n2  ├─►│  Peer n3  │
//	│           │  │  (leader) │  │           │
//	└───────────┘  └───────────┘  └───────────┘
//	         prepare / submit / rollback
//
// # Wire Model
//
// Node is a registry entry {name, address}. Record is a replicated entry
// {data_id, raw, signature}. Every RPC answers with the same envelope:
//
//	{"result": "ok" | "error", "data": ..., "msg": "..."}
//
// Protocol outcomes are always carried with HTTP 200; only transport problems
// produce other status codes.
//
// # Peer Client
//
// Client wraps each RPC verb (ping, register, nodes, data, propose, prepare,
// submit, rollback, leader, terminate) and reduces every call to a Result:
//
//   - OK: the peer answered "ok"
//   - Unreachable: network error, timeout, non-2xx status or malformed body
//   - Rejected: the peer answered "error"; Msg carries its reason
//
// The client never retries. Retrying is left to the bootstrap and election
// loops, which know whether waiting makes sense.
//
// # Addresses
//
// Addresses are accepted either as host:port or as full http(s) URLs. URL
// joins an address with an RPC path:
//
//	URL("127.0.0.1:8081", "/ping/")          // http://127.0.0.1:8081/ping/
//	URL("http://127.0.0.1:8081/", "/data/")  // http://127.0.0.1:8081/data/
package cluster
