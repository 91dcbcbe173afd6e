package baton

import "github.com/arloliu/baton/types"

// Re-export types from the types package.
//
// Internal packages depend on `types` rather than the root package, which
// avoids import cycles while still giving users `baton.State`,
// `baton.Logger`, etc.
type (
	State        = types.State
	Subscription = types.Subscription
	// MessageHandler receives every message published on a subscribed topic.
	MessageHandler = types.MessageHandler
)

// Re-export interfaces from the types package for convenience.
type (
	Transport         = types.Transport
	PresenceDirectory = types.PresenceDirectory
	Lifecycle         = types.Lifecycle
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
	Hooks             = types.Hooks
)

// Re-export State constants from the types package.
const (
	StateIdle      = types.StateIdle
	StateClaiming  = types.StateClaiming
	StateHolding   = types.StateHolding
	StateReleasing = types.StateReleasing
)
