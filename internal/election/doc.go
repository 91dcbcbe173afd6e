// Package election implements the per-key baton election.
//
// A Coordinator runs one participant's side of a Paxos-style election for a
// single baton key. Every participant subscribed to the key's topic acts as an
// acceptor and a learner; a participant that wants the baton (or is handing it
// off) also acts as a proposer.
//
// # Roles
//
// Proposer: picks a fresh number, broadcasts prepare!, gathers a quorum of
// promises addressed to itself, then broadcasts accept! naming a winner.
//
// Acceptor: promises the best prepare! it has seen, reports the winner it
// accepted last, and accepts any accept! not worse than its promise.
//
// Learner: counts distinct accepted senders per ballot. A ballot is chosen
// once the count reaches quorum; only then does the named winner learn it
// was elected.
//
// # Lifecycle
//
//	Idle ──Claim──▶ Claiming ──chosen(self)──▶ Holding
//	  ▲                │                          │
//	  │             Release                    Release
//	  │                ▼                          ▼
//	  └──settled─── Releasing ◀───────────────────┘
//
// A holder that learns another winner was chosen goes straight back to Idle.
//
// # Failure Handling
//
// Every proposal arms a watchdog. A round that does not decide before the
// watchdog fires is retried with a higher number; the timeout is jittered so
// two symmetric claimants do not keep colliding. Hand-off rounds started by a
// releasing holder give up after a bounded number of attempts.
//
// Optionally a liveness probe re-proposes when the known holder disappears
// from the presence directory, so a crashed holder does not block claimants
// forever.
//
// # Concurrency Safety
//
// A Coordinator is safe for concurrent use. Protocol state is guarded by a
// single mutex; messages, callbacks and hooks are issued after the mutex is
// released, so callbacks may call Claim or Release again. Callbacks run one at
// a time from a per-coordinator queue, so onElected of a hold always finishes
// before its onReleased starts.
package election
