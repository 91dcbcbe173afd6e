package types

import "context"

// PresenceDirectory reports which participants are currently active for a baton key.
//
// The directory is used to size election quorums and, optionally, to notice a
// holder that vanished without releasing. It is treated as an eventually
// consistent hint: a stale count can make an election decide early (count too
// low) or stall (count too high). That risk is accepted by the protocol.
//
// ActiveCount and IsActive are called while protocol state is locked and must
// not block on I/O.
type PresenceDirectory interface {
	// ActiveCount returns the number of active participants for key.
	ActiveCount(key string) int

	// IsActive reports whether participantID is currently active for key.
	IsActive(key, participantID string) bool

	// Join announces participantID as active for key.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - key: Baton key
	//   - participantID: Local participant ID
	//
	// Returns:
	//   - error: Announcement error (nil on success)
	Join(ctx context.Context, key, participantID string) error

	// Leave withdraws participantID from key.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - key: Baton key
	//   - participantID: Local participant ID
	//
	// Returns:
	//   - error: Withdrawal error (nil on success)
	Leave(ctx context.Context, key, participantID string) error
}

// Lifecycle is implemented by collaborators that run background work.
//
// The Manager starts such collaborators in Start and stops them in Stop.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}
