// Package stableid claims human-readable participant IDs from a NATS KV pool.
//
// Stable IDs ("participant-0", "participant-1", ...) survive restarts of the
// same slot, which keeps logs, metrics labels and presence keys readable. A
// claimed ID is a KV key created atomically and kept alive by renewal; the
// bucket TTL frees the IDs of participants that crashed.
package stableid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/types"
)

// Common errors returned by the claimer.
var (
	ErrNoAvailableID   = errors.New("no available participant ID in pool")
	ErrNotClaimed      = errors.New("participant ID not claimed")
	ErrAlreadyReleased = errors.New("participant ID already released")
)

// Claimer claims one stable participant ID and keeps its lease alive.
type Claimer struct {
	kv     jetstream.KeyValue
	prefix string
	minID  int
	maxID  int
	ttl    time.Duration
	logger types.Logger

	mu       sync.Mutex
	id       string
	revision uint64
	renewing bool
	released bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewClaimer creates a new stable ID claimer.
//
// Parameters:
//   - kv: NATS KV bucket for stable IDs (TTL should equal ttl)
//   - prefix: ID prefix (e.g., "participant")
//   - minID: Minimum ID number (inclusive)
//   - maxID: Maximum ID number (inclusive)
//   - ttl: Lease TTL; renewal runs every ttl/3
//   - logger: Logger (nil uses a no-op logger)
//
// Returns:
//   - *Claimer: New claimer instance
//
// Example:
//
//	claimer := stableid.NewClaimer(kv, "participant", 0, 63, 30*time.Second, logger)
//	id, err := claimer.Claim(ctx)
func NewClaimer(kv jetstream.KeyValue, prefix string, minID, maxID int, ttl time.Duration, logger types.Logger) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Claimer{
		kv:     kv,
		prefix: prefix,
		minID:  minID,
		maxID:  maxID,
		ttl:    ttl,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Claim takes the lowest free ID of the pool.
//
// Each candidate is claimed with an atomic KV Create, so two processes can
// never hold the same ID.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - string: Claimed ID (e.g., "participant-5")
//   - error: ErrNoAvailableID if the pool is exhausted, context or KV error
func (c *Claimer) Claim(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return "", ErrAlreadyReleased
	}
	if c.id != "" {
		return c.id, nil
	}

	for n := c.minID; n <= c.maxID; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id := fmt.Sprintf("%s-%d", c.prefix, n)
		value := []byte(time.Now().Format(time.RFC3339))

		revision, err := c.kv.Create(ctx, id, value)
		if err == nil {
			c.id = id
			c.revision = revision
			c.logger.Info("stable participant ID claimed", "id", id, "attempts", n-c.minID+1)

			return id, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return "", fmt.Errorf("failed to claim ID %s: %w", id, err)
		}
	}

	c.logger.Error("no available stable IDs", "prefix", c.prefix, "pool_size", c.maxID-c.minID+1)

	return "", ErrNoAvailableID
}

// StartRenewal renews the claimed lease every ttl/3 until Release.
//
// Parameters:
//   - ctx: Context bounding the renewal loop
//
// Returns:
//   - error: ErrNotClaimed if Claim has not succeeded
func (c *Claimer) StartRenewal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id == "" {
		return ErrNotClaimed
	}
	if c.renewing {
		return nil
	}
	c.renewing = true

	go c.renewalLoop(ctx)

	return nil
}

func (c *Claimer) renewalLoop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(max(c.ttl/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.renew(ctx); err != nil {
				c.logger.Warn("stable ID renewal failed", "error", err)
			}
		}
	}
}

// renew rewrites the lease key. Update guards against overwriting an ID that
// expired and was claimed by someone else.
func (c *Claimer) renew(ctx context.Context) error {
	c.mu.Lock()
	id, revision := c.id, c.revision
	c.mu.Unlock()

	if id == "" {
		return ErrNotClaimed
	}

	next, err := c.kv.Update(ctx, id, []byte(time.Now().Format(time.RFC3339)), revision)
	if err != nil {
		return fmt.Errorf("failed to renew ID %s: %w", id, err)
	}

	c.mu.Lock()
	c.revision = next
	c.mu.Unlock()

	return nil
}

// Release stops renewal and deletes the lease so the ID can be reused.
//
// Parameters:
//   - ctx: Context for the delete
//
// Returns:
//   - error: ErrNotClaimed, context or KV error
func (c *Claimer) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.id == "" {
		c.mu.Unlock()
		return ErrNotClaimed
	}
	id := c.id
	renewing := c.renewing
	c.id = ""
	c.released = true
	c.mu.Unlock()

	if renewing {
		close(c.stopCh)
		select {
		case <-c.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.kv.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete ID %s: %w", id, err)
	}

	return nil
}

// ID returns the claimed participant ID, or "" when none is held.
func (c *Claimer) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id
}
