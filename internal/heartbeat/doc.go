// Package heartbeat keeps presence keys alive in NATS KV.
//
// A participant that joins a baton key owns one KV key for that membership.
// The Publisher re-puts every owned key at a fixed interval; the bucket's TTL
// (about three intervals) removes the keys of participants that crashed.
//
// # Publisher Lifecycle
//
//  1. Create publisher with New(kv, interval)
//  2. Start the refresh loop with Start(ctx)
//  3. Add and Remove keys as memberships change
//  4. Stop with Stop(), which deletes every remaining key
//
// Example:
//
//	publisher := heartbeat.New(kv, 2*time.Second)
//	if err := publisher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer publisher.Stop()
//
//	_ = publisher.Add(ctx, "9c1f3a.participant-1")
//
// # Crash Detection
//
//   - Normal operation: keys are re-put every interval, TTL restarts
//   - Participant crashes: no more puts, keys age out after the TTL
//   - Other participants: see the key vanish on their next poll
package heartbeat
