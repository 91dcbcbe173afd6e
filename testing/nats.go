package testing

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	serverReadyTimeout = 10 * time.Second
	clusterSize        = 3
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream enabled.
//
// The server listens on a random loopback port and keeps JetStream data in a
// test temp dir. Server and client are shut down on test cleanup.
//
// Parameters:
//   - t: Testing context for failure and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client
//
// Example:
//
//	func TestNATSTransport(t *testing.T) {
//	    _, nc := batontest.StartEmbeddedNATS(t)
//	    tr, _ := transport.NewNATS(nc)
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns := startServer(t, &server.Options{})
	nc := connect(t, ns.ClientURL(), nats.MaxReconnects(3))

	return ns, nc
}

// StartEmbeddedNATSCluster starts a 3-node routed NATS cluster.
//
// Baton tests use it to check that protocol messages published on one node
// reach participants connected to another. The returned client is connected
// to the first node.
//
// Parameters:
//   - t: Testing context for failure and cleanup
//
// Returns:
//   - []*server.Server: The cluster nodes
//   - *nats.Conn: Client connected to the first node
//
// Example:
//
//	servers, _ := batontest.StartEmbeddedNATSCluster(t)
//	other, _ := nats.Connect(servers[1].ClientURL())
func StartEmbeddedNATSCluster(t *testing.T) ([]*server.Server, *nats.Conn) {
	t.Helper()

	servers := make([]*server.Server, 0, clusterSize)
	var routes []*url.URL
	for i := range clusterSize {
		ns := startServer(t, &server.Options{
			ServerName: fmt.Sprintf("baton-node-%d", i),
			Cluster: server.ClusterOpts{
				Name: "baton-test",
				Host: "127.0.0.1",
				Port: server.RANDOM_PORT,
			},
			Routes: routes,
		})
		servers = append(servers, ns)

		addr := ns.ClusterAddr()
		if addr == nil {
			t.Fatalf("cluster node %d has no cluster address", i)
		}
		routes = append(routes, &url.URL{Scheme: "nats", Host: addr.String()})
	}

	deadline := time.Now().Add(serverReadyTimeout)
	for !fullyRouted(servers) {
		if time.Now().After(deadline) {
			t.Fatal("NATS cluster did not form in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	nc := connect(t, servers[0].ClientURL(), nats.MaxReconnects(-1))

	return servers, nc
}

// startServer fills in loopback, random port, JetStream and quiet logging,
// starts the server and registers its shutdown.
func startServer(t *testing.T, opts *server.Options) *server.Server {
	t.Helper()

	opts.Host = "127.0.0.1"
	opts.Port = server.RANDOM_PORT
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	opts.NoLog = true
	opts.NoSigs = true

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create embedded NATS server: %v", err)
	}

	go ns.Start()
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	if !ns.ReadyForConnections(serverReadyTimeout) {
		t.Fatalf("embedded NATS server %s not ready", opts.ServerName)
	}

	return ns
}

func connect(t *testing.T, addr string, extra ...nats.Option) *nats.Conn {
	t.Helper()

	opts := append([]nats.Option{
		nats.Timeout(2 * time.Second),
		nats.RetryOnFailedConnect(true),
	}, extra...)

	nc, err := nats.Connect(addr, opts...)
	if err != nil {
		t.Fatalf("failed to connect to embedded NATS at %s: %v", addr, err)
	}
	// Registered after the server's cleanup, so the client closes first.
	t.Cleanup(nc.Close)

	return nc
}

func fullyRouted(servers []*server.Server) bool {
	for _, s := range servers {
		if s.NumRoutes() < len(servers)-1 {
			return false
		}
	}

	return true
}

// CreateJetStreamKV creates a memory-backed JetStream KV bucket with a
// one-minute TTL.
//
// Example:
//
//	_, nc := batontest.StartEmbeddedNATS(t)
//	kv := batontest.CreateJetStreamKV(t, nc, "participant-ids")
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	return CreateJetStreamKVWithTTL(t, nc, bucketName, time.Minute)
}

// CreateJetStreamKVWithTTL creates a memory-backed KV bucket whose entries
// expire after ttl. Presence tests use a short TTL to observe expiry.
func CreateJetStreamKVWithTTL(t *testing.T, nc *nats.Conn, bucketName string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create JetStream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:   bucketName,
		TTL:      ttl,
		Storage:  jetstream.MemoryStorage,
		Replicas: 1,
	})
	if err != nil {
		t.Fatalf("failed to create KV bucket %s: %v", bucketName, err)
	}

	return kv
}
