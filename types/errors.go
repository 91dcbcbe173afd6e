package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the baton library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Protocol operations (Claim, Release) never return errors; misuse is logged.
// Sentinels cover construction and lifecycle paths only.

// Manager errors - Public API errors returned by Manager component.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTransportRequired is returned when the messaging transport is nil.
	ErrTransportRequired = errors.New("transport is required")

	// ErrPresenceRequired is returned when no presence directory is configured.
	ErrPresenceRequired = errors.New("presence directory is required")

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrAlreadyStarted is returned when Start is called on an already running manager.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrNotStarted is returned when operations require a started manager.
	ErrNotStarted = errors.New("manager not started")

	// ErrEmptyKey is returned when a baton key is empty.
	ErrEmptyKey = errors.New("baton key is empty")

	// ErrInvalidParticipantID is returned when a participant ID is empty.
	ErrInvalidParticipantID = errors.New("invalid participant ID")

	// ErrIDClaimFailed is returned when stable participant ID claiming fails.
	ErrIDClaimFailed = errors.New("failed to claim stable participant ID")
)

// Coordinator errors - Internal election component errors.
var (
	// ErrCoordinatorClosed is returned when a closed coordinator is used.
	ErrCoordinatorClosed = errors.New("coordinator closed")

	// ErrSubscribeFailed is returned when subscribing to a baton topic fails.
	ErrSubscribeFailed = errors.New("failed to subscribe to baton topic")

	// ErrPublishFailed is returned when publishing a protocol message fails.
	ErrPublishFailed = errors.New("failed to publish protocol message")
)

// Presence errors - Presence directory component errors.
var (
	// ErrPresenceAlreadyStarted is returned when Start is called on a running directory.
	ErrPresenceAlreadyStarted = errors.New("presence directory already started")

	// ErrPresenceNotStarted is returned when Stop is called before Start.
	ErrPresenceNotStarted = errors.New("presence directory not started")

	// ErrWatcherFailed is returned when NATS KV watcher operations fail.
	ErrWatcherFailed = errors.New("watcher operation failed")
)

// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
var ErrNoKeysFound = errors.New("no keys found")

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	// Check against our sentinel error first
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}
	// Check for NATS-specific error message (handles both direct and wrapped errors)
	return strings.Contains(err.Error(), "no keys found")
}
