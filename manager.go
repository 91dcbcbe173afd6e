package baton

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/baton/internal/election"
	"github.com/arloliu/baton/internal/hooks"
	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/metrics"
)

// Manager owns the batons of one participant.
//
// Manager is the main entry point of the baton library. It handles:
//   - The local participant identity
//   - One election coordinator per baton key, fully isolated from the others
//   - The presence directory lifecycle
//   - Graceful release of every held baton on shutdown
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Baton handles are safe to share between goroutines
//
// Lifecycle:
//   - Create with NewManager() or NewNATSManager()
//   - Call Start() to start presence and accept Baton() calls
//   - Use Baton(key).Claim / Release to take part in elections
//   - Call Stop() to release held batons and leave every topic
type Manager struct {
	cfg       Config
	transport Transport
	presence  PresenceDirectory

	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger

	participantID string
	batons        *xsync.Map[string, *Baton]

	// startFns and stopFns extend Start and Stop for transport-specific
	// resources such as the stable ID lease.
	startFns []func(ctx context.Context) error
	stopFns  []func(ctx context.Context) error

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

// NewManager creates a new Manager instance with the provided configuration.
//
// Returns a concrete *Manager struct following the "accept interfaces, return structs" principle.
//
// Parameters:
//   - cfg: Configuration (missing values are filled with defaults)
//   - transport: Broadcast bus shared by all participants
//   - opts: Options; WithPresence is required, the rest (hooks, metrics,
//     logger, participant ID) are optional
//
// Returns:
//   - *Manager: Initialized manager instance
//   - error: Validation error, or ErrPresenceRequired without WithPresence
//
// Example:
//
//	bus := transport.NewMemoryBus()
//	dir := presence.NewMemory() // shared by every participant in this process
//	cfg := baton.DefaultConfig()
//	mgr, err := baton.NewManager(&cfg, bus.Endpoint("a"),
//	    baton.WithParticipantID("a"),
//	    baton.WithPresence(dir),
//	)
func NewManager(cfg *Config, transport Transport, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if transport == nil {
		return nil, ErrTransportRequired
	}

	// Fill in missing configuration values with defaults
	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Quorums are sized from presence; a per-manager default would count
	// only the local participant.
	if options.presence == nil {
		return nil, ErrPresenceRequired
	}

	// Provide safe defaults for optional dependencies to avoid nil checks everywhere
	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	// Validate with warnings after logger is available
	cfg.ValidateWithWarnings(loggerInstance)

	hooksInstance := options.hooks
	if hooksInstance == nil {
		nopHooks := hooks.NewNop()
		hooksInstance = &nopHooks
	}

	participantID := options.participantID
	if participantID == "" {
		participantID = uuid.NewString()
	}

	return &Manager{
		cfg:           *cfg,
		transport:     transport,
		presence:      options.presence,
		hooks:         hooksInstance,
		metrics:       metricsCollector,
		logger:        loggerInstance,
		participantID: participantID,
		batons:        xsync.NewMap[string, *Baton](),
	}, nil
}

// Start starts the presence directory and enables Baton().
//
// Parameters:
//   - ctx: Context for startup operations
//
// Returns:
//   - error: ErrAlreadyStarted, or a presence/startup error
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return ErrAlreadyStarted
	}

	// The manager context outlives the startup context; Stop cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	lc, hasLifecycle := m.presence.(Lifecycle)
	if hasLifecycle {
		if err := lc.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start presence directory: %w", err)
		}
	}

	for _, fn := range m.startFns {
		if err := fn(runCtx); err != nil {
			// Roll presence back so a later Start can run again.
			if hasLifecycle {
				if stopErr := lc.Stop(); stopErr != nil {
					m.logger.Warn("failed to stop presence after startup error", "error", stopErr)
				}
			}
			cancel()

			return err
		}
	}

	m.ctx, m.cancel = runCtx, cancel

	m.logger.Info("baton manager started", "participant_id", m.participantID, "namespace", m.cfg.Namespace)

	return nil
}

// Stop releases every held baton, leaves every topic and stops presence.
//
// Subsequent calls return ErrNotStarted.
//
// Parameters:
//   - ctx: Context for shutdown timeout (ShutdownTimeout applies if it has no deadline)
//
// Returns:
//   - error: Shutdown error or timeout
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx == nil || m.stopped {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.stopped = true
	m.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error

	// Step 1: close coordinators (held batons broadcast a release)
	m.batons.Range(func(key string, b *Baton) bool {
		if err := b.coord.Close(ctx); err != nil {
			m.logger.Error("failed to close baton", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("baton %s: %w", key, err))
		}

		return true
	})

	// Step 2: stop presence heartbeats
	if lc, ok := m.presence.(Lifecycle); ok {
		if err := lc.Stop(); err != nil {
			m.logger.Error("failed to stop presence directory", "error", err)
			errs = append(errs, fmt.Errorf("presence stop failed: %w", err))
		}
	}

	// Step 3: transport-specific cleanup in reverse registration order
	for _, fn := range slices.Backward(m.stopFns) {
		if err := fn(ctx); err != nil {
			m.logger.Error("shutdown step failed", "error", err)
			errs = append(errs, err)
		}
	}

	m.cancel()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.logger.Info("baton manager stopped", "participant_id", m.participantID)

	return nil
}

// ParticipantID returns the local participant ID.
//
// Returns:
//   - string: Participant ID used as proposer and sender ID
func (m *Manager) ParticipantID() string {
	return m.participantID
}

// Baton returns the handle for key, opening it on first use.
//
// Opening a baton starts its coordinator: in standing acceptor mode the
// participant subscribes to the key's topic and votes in its elections from
// now until Stop. Repeated calls return the same handle.
//
// Parameters:
//   - key: Baton key (non-empty)
//
// Returns:
//   - *Baton: Handle for key
//   - error: ErrEmptyKey, ErrNotStarted, or a subscribe error
//
// Example:
//
//	b, err := mgr.Baton("nightly-report")
//	if err != nil {
//	    return err
//	}
//	b.Claim(func(key string) { go runReport(key) }, nil)
func (m *Manager) Baton(key string) (*Baton, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if b, ok := m.batons.Load(key); ok {
		return b, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil || m.stopped {
		return nil, ErrNotStarted
	}
	if b, ok := m.batons.Load(key); ok {
		return b, nil
	}

	coord, err := election.New(key, m.participantID, m.cfg.electionConfig(), m.transport, m.presence,
		election.WithLogger(m.logger),
		election.WithMetrics(m.metrics),
		election.WithHooks(*m.hooks),
	)
	if err != nil {
		return nil, err
	}
	if err := coord.Start(m.ctx); err != nil {
		_ = coord.Close(m.ctx)
		return nil, fmt.Errorf("failed to open baton %s: %w", key, err)
	}

	b := &Baton{coord: coord}
	m.batons.Store(key, b)
	m.logger.Debug("baton opened", "key", key, "participant_id", m.participantID)

	return b, nil
}

// Keys returns the keys of every opened baton, sorted.
//
// Returns:
//   - []string: Opened baton keys
func (m *Manager) Keys() []string {
	keys := make([]string, 0, m.batons.Size())
	m.batons.Range(func(key string, _ *Baton) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)

	return keys
}
