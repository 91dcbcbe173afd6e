package baton

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/baton/internal/election"
	"github.com/arloliu/baton/internal/protocol"
	batontest "github.com/arloliu/baton/testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "virtualBaton", cfg.Namespace)
	require.Equal(t, time.Second, cfg.ElectionTimeout)
	require.Equal(t, 0.25, cfg.TimeoutJitter)
	require.Equal(t, 3, cfg.HandoffAttempts)
	require.Equal(t, "number", cfg.Ordering)
	require.Equal(t, "standing", cfg.AcceptorMode)
	require.Zero(t, cfg.LivenessProbeInterval)
	require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "baton-presence", cfg.Presence.Bucket)
	require.Equal(t, 2*time.Second, cfg.Presence.HeartbeatInterval)
	require.Equal(t, 6*time.Second, cfg.Presence.HeartbeatTTL)
	require.False(t, cfg.StableID.Enabled)
	require.Equal(t, "participant", cfg.StableID.Prefix)
	require.Equal(t, 99, cfg.StableID.Max)
	require.Equal(t, 30*time.Second, cfg.StableID.TTL)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "virtualBaton", cfg.Namespace)
		require.Equal(t, time.Second, cfg.ElectionTimeout)
		require.Equal(t, 3, cfg.HandoffAttempts)
		require.Equal(t, "number", cfg.Ordering)
		require.Zero(t, cfg.TimeoutJitter, "zero jitter is a valid choice")
		require.NoError(t, cfg.Validate())
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Namespace:             "jobs",
			ElectionTimeout:       3 * time.Second,
			TimeoutJitter:         0.5,
			HandoffAttempts:       5,
			Ordering:              "strict",
			AcceptorMode:          "on-demand",
			LivenessProbeInterval: 10 * time.Second,
			OperationTimeout:      2 * time.Second,
			ShutdownTimeout:       20 * time.Second,
			Presence: PresenceConfig{
				Bucket:            "p",
				HeartbeatInterval: time.Second,
				HeartbeatTTL:      4 * time.Second,
			},
		}
		SetDefaults(&cfg)

		require.Equal(t, "jobs", cfg.Namespace)
		require.Equal(t, 3*time.Second, cfg.ElectionTimeout)
		require.Equal(t, 0.5, cfg.TimeoutJitter)
		require.Equal(t, 5, cfg.HandoffAttempts)
		require.Equal(t, "strict", cfg.Ordering)
		require.Equal(t, "on-demand", cfg.AcceptorMode)
		require.Equal(t, 10*time.Second, cfg.LivenessProbeInterval)
		require.Equal(t, "p", cfg.Presence.Bucket)
		require.Equal(t, 4*time.Second, cfg.Presence.HeartbeatTTL)
	})

	t.Run("derives heartbeat TTL from interval", func(t *testing.T) {
		cfg := Config{Presence: PresenceConfig{HeartbeatInterval: 5 * time.Second}}
		SetDefaults(&cfg)

		require.Equal(t, 15*time.Second, cfg.Presence.HeartbeatTTL)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero election timeout", func(c *Config) { c.ElectionTimeout = 0 }},
		{"negative jitter", func(c *Config) { c.TimeoutJitter = -0.1 }},
		{"jitter above one", func(c *Config) { c.TimeoutJitter = 1.5 }},
		{"zero handoff attempts", func(c *Config) { c.HandoffAttempts = 0 }},
		{"unknown ordering", func(c *Config) { c.Ordering = "alphabetical" }},
		{"unknown acceptor mode", func(c *Config) { c.AcceptorMode = "sometimes" }},
		{"negative probe interval", func(c *Config) { c.LivenessProbeInterval = -time.Second }},
		{"heartbeat TTL too short", func(c *Config) { c.Presence.HeartbeatTTL = c.Presence.HeartbeatInterval }},
		{"inverted stable ID range", func(c *Config) {
			c.StableID.Enabled = true
			c.StableID.Min = 10
			c.StableID.Max = 5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("inverted range ignored when stable IDs disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StableID.Min = 10
		cfg.StableID.Max = 5
		require.NoError(t, cfg.Validate())
	})
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	logger := batontest.NewRecordingLogger()

	cfg := DefaultConfig()
	cfg.TimeoutJitter = 0
	cfg.LivenessProbeInterval = time.Second
	cfg.ValidateWithWarnings(logger)

	require.Equal(t, 1, logger.Count("WARN", "TimeoutJitter is 0, simultaneous claimants may keep colliding"))
	require.Equal(t, 1, logger.Count("WARN", "LivenessProbeInterval is shorter than HeartbeatTTL, a slow holder may be replaced"))
}

// TestConfig_YAML checks that durations decode from strings like "500ms".
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
namespace: jobs
electionTimeout: 500ms
timeoutJitter: 0.1
handoffAttempts: 2
ordering: strict
acceptorMode: on-demand
livenessProbeInterval: 5s
operationTimeout: 2s
shutdownTimeout: 15s
presence:
  bucket: jobs-presence
  heartbeatInterval: 1s
  heartbeatTtl: 3s
stableId:
  enabled: true
  prefix: node
  min: 1
  max: 8
  ttl: 45s
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	require.Equal(t, "jobs", cfg.Namespace)
	require.Equal(t, 500*time.Millisecond, cfg.ElectionTimeout)
	require.Equal(t, 0.1, cfg.TimeoutJitter)
	require.Equal(t, 2, cfg.HandoffAttempts)
	require.Equal(t, "strict", cfg.Ordering)
	require.Equal(t, "on-demand", cfg.AcceptorMode)
	require.Equal(t, 5*time.Second, cfg.LivenessProbeInterval)
	require.Equal(t, 2*time.Second, cfg.OperationTimeout)
	require.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, "jobs-presence", cfg.Presence.Bucket)
	require.Equal(t, time.Second, cfg.Presence.HeartbeatInterval)
	require.Equal(t, 3*time.Second, cfg.Presence.HeartbeatTTL)
	require.True(t, cfg.StableID.Enabled)
	require.Equal(t, "node", cfg.StableID.Prefix)
	require.Equal(t, 1, cfg.StableID.Min)
	require.Equal(t, 8, cfg.StableID.Max)
	require.Equal(t, 45*time.Second, cfg.StableID.TTL)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("partial file takes defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "baton.yaml")
		require.NoError(t, os.WriteFile(path, []byte("namespace: jobs\nelectionTimeout: 2s\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "jobs", cfg.Namespace)
		require.Equal(t, 2*time.Second, cfg.ElectionTimeout)
		require.Equal(t, 3, cfg.HandoffAttempts)
		require.Equal(t, 6*time.Second, cfg.Presence.HeartbeatTTL)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := ParseConfig([]byte("ordering: sideways\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseConfig([]byte("electionTimeout: [1, 2\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_ElectionConfig(t *testing.T) {
	cfg := TestConfig()
	cfg.Ordering = "strict"
	cfg.AcceptorMode = "on-demand"

	ec := cfg.electionConfig()
	require.Equal(t, cfg.Namespace, ec.Namespace)
	require.Equal(t, cfg.ElectionTimeout, ec.ElectionTimeout)
	require.Equal(t, protocol.OrderingStrict, ec.Ordering)
	require.Equal(t, election.AcceptorOnDemand, ec.AcceptorMode)
	require.Equal(t, cfg.OperationTimeout, ec.OperationTimeout)
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()
	require.NoError(t, cfg.Validate())
	require.Less(t, cfg.ElectionTimeout, DefaultConfig().ElectionTimeout)
}
