package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ElectionMetrics
	TransportMetrics
	PresenceMetrics
}

// ElectionMetrics defines metrics for the per-key election protocol.
type ElectionMetrics interface {
	// RecordStateTransition records a coordinator state transition.
	RecordStateTransition(key string, from, to State)

	// RecordProposal records a new proposal round.
	//
	// Parameters:
	//   - key: Baton key
	//   - reason: Why the round started ("claim", "retry", "handoff", "probe")
	RecordProposal(key string, reason string)

	// RecordElection records the local participant winning an election.
	//
	// Parameters:
	//   - key: Baton key
	//   - duration: Seconds between the claim and the election
	RecordElection(key string, duration float64)

	// RecordHolderChange records a change of the locally known holder.
	RecordHolderChange(key string)

	// RecordIgnoredRequest records a claim or release call that was a no-op.
	//
	// Parameters:
	//   - key: Baton key
	//   - operation: "claim" or "release"
	RecordIgnoredRequest(key string, operation string)
}

// TransportMetrics defines metrics for protocol message traffic.
type TransportMetrics interface {
	// RecordMessage records one protocol message.
	//
	// Parameters:
	//   - op: Protocol op ("prepare!", "promise", ...)
	//   - direction: "in" or "out"
	RecordMessage(op string, direction string)

	// RecordDroppedMessage records an inbound message that was discarded.
	//
	// Parameters:
	//   - reason: "decode", "unknown_op", "stale"
	RecordDroppedMessage(reason string)

	// RecordPublishError records a failed publish.
	RecordPublishError(op string)
}

// PresenceMetrics defines metrics for the presence directory.
type PresenceMetrics interface {
	// RecordHeartbeat records a heartbeat publish attempt.
	RecordHeartbeat(participantID string, success bool)

	// RecordActiveParticipants sets the participant count used for a quorum (gauge metric).
	RecordActiveParticipants(key string, count int)
}
