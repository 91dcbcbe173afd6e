// Package baton provides a virtual baton: a per-key leader election that runs
// over an unreliable publish/subscribe bus.
//
// Participants that want exclusive responsibility for a named resource claim
// its baton. A Paxos-style protocol run entirely over broadcast messages
// elects at most one holder per key, and a releasing holder hands the baton
// to another participant that asked for it. There is no broker-side state:
// the bus only needs to deliver messages eventually, possibly duplicated,
// reordered or dropped.
//
// # Quick Start
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	cfg := baton.DefaultConfig()
//
//	mgr, err := baton.NewNATSManager(ctx, &cfg, nc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop(context.Background())
//
//	b, _ := mgr.Baton("billing-export")
//	b.Claim(
//	    func(key string) { log.Printf("now exporting %s", key) },
//	    func(key string) { log.Printf("stopped exporting %s", key) },
//	)
//
// # Key Features
//
//   - Bus Agnostic: NATS, Redis Pub/Sub and an in-process bus ship in package transport
//   - Majority Quorums: quorums are sized from a presence directory (package presence)
//   - Hand-off: a releasing holder elects the next interested participant itself
//   - Key Isolation: each key runs an independent election on its own topic
//   - Stable IDs: optional participant IDs leased from JetStream KV
//
// # Architecture
//
// Each opened baton has a coordinator that moves through:
//
//	Idle → Claiming → Holding → Releasing → Idle
//
// Every coordinator is an acceptor, a learner and, while it claims or hands
// off, a proposer. A proposal is a prepare!/promise round followed by an
// accept!/accepted round; a ballot is decided once a majority of the active
// participants report accepting it.
//
// # Safety
//
// The baton gives mutual exclusion only as far as the presence directory is
// accurate and participants are honest. It is a coordination hint, not a
// lock: use fencing on the protected resource when a stale holder would be
// harmful.
//
// See the types, transport and presence packages for the extension points.
package baton
