// Package transport provides types.Transport implementations for baton.
//
// The election protocol only needs a best-effort broadcast bus: messages may
// be lost, duplicated or reordered. Each transport delivers the publisher's
// participant ID alongside the payload so acceptors can be told apart.
//
// # Implementations
//
//   - NATS: core NATS publish/subscribe, sender ID in a message header
//   - Redis: Redis Pub/Sub, sender ID in a JSON envelope
//   - Memory: in-process bus for tests and single-process use, with a drop
//     filter for injecting message loss
//
// # Usage
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	tr, err := transport.NewNATS(nc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Every participant must size quorums from the same membership.
//	mgr, err := baton.NewManager(&cfg, tr, baton.WithPresence(presence.NewStatic(3)))
//
// NewNATSManager wires the NATS transport together with KV presence.
package transport
