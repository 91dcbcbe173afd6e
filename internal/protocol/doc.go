// Package protocol defines the wire messages and ordering rules of the baton
// election protocol.
//
// The protocol is a two-phase, Paxos-derived exchange run by every participant
// over a broadcast topic "<namespace>:<key>":
//
//	proposer                      acceptors (every participant)
//	   │ ── prepare! {n, id} ──────────▶ │  adopt n if better, reply promise
//	   │ ◀───────── promise {n, id, winner?, interested?} ── │
//	   │   (quorum = N/2 + 1 promises)
//	   │ ── accept! {n, id, winner} ───▶ │  accept if not worse, broadcast accepted
//	   │ ◀════════ accepted {n, id, winner} ═══════════════ │  (to everyone)
//
// A holder that steps down broadcasts release {accepted record}; acceptors then
// forget the winner so the next round can pick a new holder.
//
// Every message is JSON encoded as {"op": "...", "data": {...}}.
package protocol
