package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

var errEmbeddedNotReady = errors.New("embedded NATS server not ready")

// startEmbeddedNATS runs a single-node NATS server with JetStream on a random
// port. The returned stop function shuts it down and removes its store.
func startEmbeddedNATS() (url string, stop func(), err error) {
	storeDir, err := os.MkdirTemp("", "batond-nats-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create JetStream store: %w", err)
	}

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		_ = os.RemoveAll(storeDir)
		return "", nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		_ = os.RemoveAll(storeDir)

		return "", nil, errEmbeddedNotReady
	}

	stop = func() {
		srv.Shutdown()
		srv.WaitForShutdown()
		_ = os.RemoveAll(storeDir)
	}

	return srv.ClientURL(), stop, nil
}
