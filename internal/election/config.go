package election

import (
	"fmt"
	"time"

	"github.com/arloliu/baton/internal/protocol"
)

// AcceptorMode decides when a participant takes part in a key's election.
type AcceptorMode int

const (
	// AcceptorStanding keeps the participant subscribed (and present) from
	// Start until Close, so it votes in elections it has no interest in.
	AcceptorStanding AcceptorMode = iota

	// AcceptorOnDemand subscribes on Claim and unsubscribes once the
	// claim/release cycle has settled back in Idle.
	AcceptorOnDemand
)

// ParseAcceptorMode converts a configuration string into an AcceptorMode.
func ParseAcceptorMode(s string) (AcceptorMode, error) {
	switch s {
	case "standing", "":
		return AcceptorStanding, nil
	case "on-demand":
		return AcceptorOnDemand, nil
	default:
		return AcceptorStanding, fmt.Errorf("unknown acceptor mode %q", s)
	}
}

func (m AcceptorMode) String() string {
	switch m {
	case AcceptorStanding:
		return "standing"
	case AcceptorOnDemand:
		return "on-demand"
	default:
		return "unknown"
	}
}

// Config holds the protocol tuning of a Coordinator.
type Config struct {
	// Namespace prefixes the broadcast topic ("<namespace>:<key>").
	Namespace string

	// ElectionTimeout is the base watchdog delay for one proposal round.
	ElectionTimeout time.Duration

	// TimeoutJitter spreads the watchdog over [ElectionTimeout, ElectionTimeout*(1+TimeoutJitter)).
	TimeoutJitter float64

	// HandoffAttempts bounds the proposal rounds a releasing holder runs.
	HandoffAttempts int

	// Ordering decides which of two proposals is better.
	Ordering protocol.Ordering

	// AcceptorMode decides when the coordinator is subscribed.
	AcceptorMode AcceptorMode

	// LivenessProbeInterval enables the dead-holder probe when positive.
	LivenessProbeInterval time.Duration

	// OperationTimeout bounds each publish.
	OperationTimeout time.Duration
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:        "virtualBaton",
		ElectionTimeout:  time.Second,
		TimeoutJitter:    0.25,
		HandoffAttempts:  3,
		Ordering:         protocol.OrderingNumber,
		AcceptorMode:     AcceptorStanding,
		OperationTimeout: 5 * time.Second,
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}
	if c.ElectionTimeout <= 0 {
		c.ElectionTimeout = def.ElectionTimeout
	}
	if c.TimeoutJitter < 0 {
		c.TimeoutJitter = 0
	}
	if c.HandoffAttempts <= 0 {
		c.HandoffAttempts = def.HandoffAttempts
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = def.OperationTimeout
	}
}
