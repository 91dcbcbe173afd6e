package baton

import "github.com/arloliu/baton/types"

// Sentinel errors returned by the Manager.
//
// Claim and Release never return errors; misuse of the baton protocol is
// logged and counted instead. These errors cover construction and lifecycle.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrTransportRequired is returned when the transport is nil.
	ErrTransportRequired = types.ErrTransportRequired

	// ErrPresenceRequired is returned when NewManager gets no WithPresence option.
	ErrPresenceRequired = types.ErrPresenceRequired

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired

	// ErrAlreadyStarted is returned when Start is called on an already running manager.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Baton or Stop is called before Start.
	ErrNotStarted = types.ErrNotStarted

	// ErrEmptyKey is returned when a baton key is empty.
	ErrEmptyKey = types.ErrEmptyKey

	// ErrInvalidParticipantID is returned when a participant ID is empty.
	ErrInvalidParticipantID = types.ErrInvalidParticipantID

	// ErrIDClaimFailed is returned when stable ID claiming fails.
	ErrIDClaimFailed = types.ErrIDClaimFailed
)
