package baton

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/baton/internal/kvutil"
	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/stableid"
	"github.com/arloliu/baton/presence"
	"github.com/arloliu/baton/transport"
)

// bucketRetries bounds concurrent bucket creation attempts at startup.
const bucketRetries = 5

// NewNATSManager creates a Manager wired to NATS.
//
// It uses core NATS pub/sub as the transport and a JetStream KV presence
// directory for quorum sizing. When cfg.StableID.Enabled is set, the
// participant ID is claimed from a JetStream KV pool and its lease is held
// until Stop; otherwise WithParticipantID or a random UUID is used.
//
// Parameters:
//   - ctx: Context for bucket creation and ID claiming
//   - cfg: Configuration (missing values are filled with defaults)
//   - conn: NATS connection
//   - opts: Optional configuration (hooks, metrics, logger, participant ID)
//
// Returns:
//   - *Manager: Initialized manager instance; call Start before use
//   - error: Configuration, JetStream or ID claim error
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	cfg := baton.DefaultConfig()
//	mgr, err := baton.NewNATSManager(ctx, &cfg, nc)
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop(context.Background())
func NewNATSManager(ctx context.Context, cfg *Config, conn *nats.Conn, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	bus, err := transport.NewNATS(conn)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	presenceKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js,
		kvutil.PresenceBucket(cfg.Presence.Bucket, cfg.Presence.HeartbeatTTL), bucketRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to create presence KV: %w", err)
	}

	directory := presence.NewKV(presenceKV,
		presence.WithHeartbeat(cfg.Presence.HeartbeatInterval, cfg.Presence.HeartbeatTTL),
		presence.WithLogger(logger),
		presence.WithMetrics(options.metrics),
	)
	opts = append(opts, WithPresence(directory))

	var claimer *stableid.Claimer
	if cfg.StableID.Enabled && options.participantID == "" {
		stableKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js,
			kvutil.StableIDBucket(cfg.StableID.Bucket, cfg.StableID.TTL), bucketRetries)
		if err != nil {
			return nil, fmt.Errorf("failed to create stable ID KV: %w", err)
		}

		claimer = stableid.NewClaimer(stableKV, cfg.StableID.Prefix, cfg.StableID.Min, cfg.StableID.Max,
			cfg.StableID.TTL, logger)
		id, err := claimer.Claim(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIDClaimFailed, err)
		}
		opts = append(opts, WithParticipantID(id))
	}

	m, err := NewManager(cfg, bus, opts...)
	if err != nil {
		if claimer != nil {
			_ = claimer.Release(ctx)
		}

		return nil, err
	}

	if claimer != nil {
		m.startFns = append(m.startFns, claimer.StartRenewal)
		m.stopFns = append(m.stopFns, func(ctx context.Context) error {
			if err := claimer.Release(ctx); err != nil && !errors.Is(err, stableid.ErrNotClaimed) {
				return fmt.Errorf("participant ID release failed: %w", err)
			}

			return nil
		})
	}

	return m, nil
}
