// Package testing provides test utilities for the baton library.
//
// It follows Go's convention of shipping test helpers in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - StartEmbeddedNATSCluster: 3-node in-process NATS cluster
//   - CreateJetStreamKV: KV bucket with test defaults
//   - ConnectRedis: Redis client for BATON_REDIS_ADDR, skipping when unset
//   - NewTestLogger / NewRecordingLogger: loggers for assertions and debugging
//
// Example usage:
//
//	import (
//	    "testing"
//	    batontest "github.com/arloliu/baton/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := batontest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
