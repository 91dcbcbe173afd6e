// Package presence provides types.PresenceDirectory implementations.
//
// A presence directory tells a baton coordinator how many participants are
// active for a key (to size the election quorum) and whether a given
// participant is still around (for the optional dead-holder probe).
//
// Presence is an eventually consistent hint. A count that is too low lets an
// election decide with fewer acceptors than a true majority; a count that is
// too high stalls elections until it converges.
//
// # Implementations
//
//   - Static: fixed participant count, everyone considered active
//   - Memory: in-process registry for tests and single-process deployments;
//     every participant must share the same instance
//   - KV: NATS JetStream KV heartbeats with watch and polling refresh
package presence
