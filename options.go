package baton

// Option configures a Manager with optional dependencies.
type Option func(*managerOptions)

// managerOptions holds optional Manager configuration.
type managerOptions struct {
	hooks         *Hooks
	metrics       MetricsCollector
	logger        Logger
	presence      PresenceDirectory
	participantID string
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	hooks := &baton.Hooks{
//	    OnHolderChanged: func(ctx context.Context, key, holder string) error {
//	        log.Printf("%s is now held by %q", key, holder)
//	        return nil
//	    },
//	}
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(dir), baton.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *managerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	collector := baton.NewPrometheusMetrics(prometheus.DefaultRegisterer, "baton")
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(dir), baton.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *managerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (see NewZapLogger and NewSlogLogger)
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	logger := baton.NewZapLogger(zap.NewExample())
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(dir), baton.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithPresence sets the presence directory used to size quorums.
//
// NewManager requires it; NewNATSManager supplies a KV directory itself.
// Every participant of a baton must see the same membership: share one
// presence.Memory between managers in one process, or use presence.NewKV or
// presence.NewStatic across processes. If the directory implements Lifecycle,
// the Manager starts it in Start and stops it in Stop.
//
// Parameters:
//   - directory: PresenceDirectory implementation
//
// Returns:
//   - Option: Functional option for NewManager
//
// Example:
//
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(presence.NewStatic(3)))
func WithPresence(directory PresenceDirectory) Option {
	return func(o *managerOptions) {
		o.presence = directory
	}
}

// WithParticipantID sets the local participant ID.
//
// The ID must be unique among all participants sharing a namespace. Without
// it the Manager generates a random UUID.
//
// Parameters:
//   - id: Participant ID (non-empty)
//
// Returns:
//   - Option: Functional option for NewManager
func WithParticipantID(id string) Option {
	return func(o *managerOptions) {
		o.participantID = id
	}
}
