package baton

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/baton/internal/election"
	"github.com/arloliu/baton/internal/protocol"
)

// PresenceConfig controls the NATS KV presence directory.
type PresenceConfig struct {
	// Bucket is the KV bucket holding presence heartbeats.
	Bucket string `yaml:"bucket"`

	// HeartbeatInterval is how often joined memberships are re-published.
	// Recommended: 2 seconds.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// HeartbeatTTL is the bucket TTL after which a silent participant is gone.
	// Must be >= 2*HeartbeatInterval. Recommended: 3x HeartbeatInterval.
	HeartbeatTTL time.Duration `yaml:"heartbeatTtl"`
}

// StableIDConfig controls stable participant ID claiming.
type StableIDConfig struct {
	// Enabled claims IDs like "participant-3" instead of random UUIDs.
	Enabled bool `yaml:"enabled"`

	// Bucket is the KV bucket holding ID leases.
	Bucket string `yaml:"bucket"`

	// Prefix is the ID prefix ("participant" produces "participant-0", ...).
	Prefix string `yaml:"prefix"`

	// Min is the lowest ID number (inclusive).
	Min int `yaml:"min"`

	// Max is the highest ID number (inclusive).
	// The pool size (Max - Min + 1) caps the number of concurrent participants.
	Max int `yaml:"max"`

	// TTL is the lease duration; leases are renewed every TTL/3.
	TTL time.Duration `yaml:"ttl"`
}

// Config is the configuration for the Manager.
//
// All duration fields accept standard Go duration strings like "500ms", "2s".
type Config struct {
	// Namespace prefixes every baton topic ("<namespace>:<key>").
	// Participants only see each other within the same namespace.
	Namespace string `yaml:"namespace"`

	// ElectionTimeout is the base watchdog delay of one proposal round.
	// A round that has not decided by then is retried with a higher number.
	// Recommended: a few times the bus round-trip time.
	ElectionTimeout time.Duration `yaml:"electionTimeout"`

	// TimeoutJitter randomizes the watchdog to
	// [ElectionTimeout, ElectionTimeout*(1+TimeoutJitter)) so simultaneous
	// claimants stop colliding. 0 disables jitter.
	TimeoutJitter float64 `yaml:"timeoutJitter"`

	// HandoffAttempts bounds the rounds a releasing holder runs to pass the
	// baton on before settling.
	HandoffAttempts int `yaml:"handoffAttempts"`

	// Ordering selects how proposals are compared: "number" compares proposal
	// numbers only, "strict" also breaks equal numbers by proposer ID.
	Ordering string `yaml:"ordering"`

	// AcceptorMode is "standing" (vote from Baton() until Stop) or
	// "on-demand" (vote only while claiming or releasing).
	AcceptorMode string `yaml:"acceptorMode"`

	// LivenessProbeInterval enables re-election when the known holder leaves
	// the presence directory. 0 disables the probe.
	LivenessProbeInterval time.Duration `yaml:"livenessProbeInterval"`

	// OperationTimeout bounds each publish and KV operation.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// ShutdownTimeout bounds Stop when the caller's context has no deadline.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Presence configures the KV presence directory used by NewNATSManager.
	Presence PresenceConfig `yaml:"presence"`

	// StableID configures stable participant IDs for NewNATSManager.
	StableID StableIDConfig `yaml:"stableId"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Namespace:        "virtualBaton",
		ElectionTimeout:  time.Second,
		TimeoutJitter:    0.25,
		HandoffAttempts:  3,
		Ordering:         "number",
		AcceptorMode:     "standing",
		OperationTimeout: 5 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		Presence: PresenceConfig{
			Bucket:            "baton-presence",
			HeartbeatInterval: 2 * time.Second,
			HeartbeatTTL:      6 * time.Second,
		},
		StableID: StableIDConfig{
			Bucket: "baton-stableid",
			Prefix: "participant",
			Min:    0,
			Max:    99,
			TTL:    30 * time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.ElectionTimeout == 0 {
		cfg.ElectionTimeout = defaults.ElectionTimeout
	}
	// TimeoutJitter of 0 is valid (no jitter), so no default is applied.
	if cfg.HandoffAttempts == 0 {
		cfg.HandoffAttempts = defaults.HandoffAttempts
	}
	if cfg.Ordering == "" {
		cfg.Ordering = defaults.Ordering
	}
	if cfg.AcceptorMode == "" {
		cfg.AcceptorMode = defaults.AcceptorMode
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.Presence.Bucket == "" {
		cfg.Presence.Bucket = defaults.Presence.Bucket
	}
	if cfg.Presence.HeartbeatInterval == 0 {
		cfg.Presence.HeartbeatInterval = defaults.Presence.HeartbeatInterval
	}
	if cfg.Presence.HeartbeatTTL == 0 {
		cfg.Presence.HeartbeatTTL = 3 * cfg.Presence.HeartbeatInterval
	}
	if cfg.StableID.Bucket == "" {
		cfg.StableID.Bucket = defaults.StableID.Bucket
	}
	if cfg.StableID.Prefix == "" {
		cfg.StableID.Prefix = defaults.StableID.Prefix
	}
	if cfg.StableID.Max == 0 {
		cfg.StableID.Max = defaults.StableID.Max
	}
	if cfg.StableID.TTL == 0 {
		cfg.StableID.TTL = defaults.StableID.TTL
	}
	// LivenessProbeInterval of 0 is valid (probe disabled).
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - ElectionTimeout > 0
//   - 0 <= TimeoutJitter <= 1
//   - HandoffAttempts >= 1
//   - Ordering is "number" or "strict"
//   - AcceptorMode is "standing" or "on-demand"
//   - LivenessProbeInterval >= 0
//   - Presence.HeartbeatTTL >= 2 * Presence.HeartbeatInterval
//   - StableID.Max >= StableID.Min when stable IDs are enabled
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.ElectionTimeout <= 0 {
		return fmt.Errorf("%w: ElectionTimeout must be > 0, got %v", ErrInvalidConfig, cfg.ElectionTimeout)
	}

	if cfg.TimeoutJitter < 0 || cfg.TimeoutJitter > 1 {
		return fmt.Errorf("%w: TimeoutJitter must be within [0, 1], got %v", ErrInvalidConfig, cfg.TimeoutJitter)
	}

	if cfg.HandoffAttempts < 1 {
		return fmt.Errorf("%w: HandoffAttempts must be >= 1, got %d", ErrInvalidConfig, cfg.HandoffAttempts)
	}

	if _, err := protocol.ParseOrdering(cfg.Ordering); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := election.ParseAcceptorMode(cfg.AcceptorMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.LivenessProbeInterval < 0 {
		return fmt.Errorf("%w: LivenessProbeInterval must be >= 0, got %v", ErrInvalidConfig, cfg.LivenessProbeInterval)
	}

	if cfg.Presence.HeartbeatTTL < 2*cfg.Presence.HeartbeatInterval {
		return fmt.Errorf(
			"%w: Presence.HeartbeatTTL (%v) must be >= 2*HeartbeatInterval (%v) to allow one missed heartbeat",
			ErrInvalidConfig, cfg.Presence.HeartbeatTTL, cfg.Presence.HeartbeatInterval,
		)
	}

	if cfg.StableID.Enabled && cfg.StableID.Max < cfg.StableID.Min {
		return fmt.Errorf("%w: StableID.Max (%d) must be >= StableID.Min (%d)",
			ErrInvalidConfig, cfg.StableID.Max, cfg.StableID.Min)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but risky values.
//
// This is called after Validate() in NewManager() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Ordering == "number" {
		logger.Debug(
			"proposal ordering compares numbers only; equal numbers from different proposers are not ordered",
			"recommended", "strict",
		)
	}

	if cfg.TimeoutJitter == 0 {
		logger.Warn(
			"TimeoutJitter is 0, simultaneous claimants may keep colliding",
			"recommended", 0.25,
		)
	}

	if cfg.LivenessProbeInterval > 0 && cfg.LivenessProbeInterval < cfg.Presence.HeartbeatTTL {
		logger.Warn(
			"LivenessProbeInterval is shorter than HeartbeatTTL, a slow holder may be replaced",
			"livenessProbeInterval", cfg.LivenessProbeInterval,
			"heartbeatTTL", cfg.Presence.HeartbeatTTL,
		)
	}

	if cfg.StableID.Enabled && cfg.StableID.TTL < 3*cfg.Presence.HeartbeatInterval {
		logger.Warn(
			"StableID.TTL is below recommended minimum",
			"ttl", cfg.StableID.TTL,
			"recommended", 3*cfg.Presence.HeartbeatInterval,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := baton.TestConfig()
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(presence.NewStatic(3)))
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.ElectionTimeout = 150 * time.Millisecond
	cfg.OperationTimeout = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.Presence.HeartbeatInterval = 200 * time.Millisecond
	cfg.Presence.HeartbeatTTL = 600 * time.Millisecond
	cfg.StableID.TTL = 3 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Loaded configuration with defaults applied
//   - error: Read, parse or validation error
//
// Example:
//
//	cfg, err := baton.LoadConfig("baton.yaml")
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes and applies defaults.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// electionConfig converts the manager configuration into coordinator tuning.
func (cfg *Config) electionConfig() election.Config {
	ordering, _ := protocol.ParseOrdering(cfg.Ordering)
	mode, _ := election.ParseAcceptorMode(cfg.AcceptorMode)

	return election.Config{
		Namespace:             cfg.Namespace,
		ElectionTimeout:       cfg.ElectionTimeout,
		TimeoutJitter:         cfg.TimeoutJitter,
		HandoffAttempts:       cfg.HandoffAttempts,
		Ordering:              ordering,
		AcceptorMode:          mode,
		LivenessProbeInterval: cfg.LivenessProbeInterval,
		OperationTimeout:      cfg.OperationTimeout,
	}
}
