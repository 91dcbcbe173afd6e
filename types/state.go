package types

// State represents the lifecycle state of one participant's coordinator for a baton key.
//
// States follow this progression during normal operation:
//
//	StateIdle → StateClaiming → StateHolding → StateReleasing → StateIdle
//
// A claim abandoned before election moves StateClaiming → StateReleasing, and a
// holder that is outvoted moves StateHolding → StateIdle.
type State int

const (
	// StateIdle indicates no claim is outstanding and no hand-off is in flight.
	StateIdle State = iota

	// StateClaiming indicates a claim is outstanding and the election is running.
	StateClaiming

	// StateHolding indicates this participant is the elected holder of the baton.
	StateHolding

	// StateReleasing indicates the participant gave up the baton (or a pending claim)
	// and is handing it off as a distinguished proposer.
	StateReleasing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateClaiming:
		return "Claiming"
	case StateHolding:
		return "Holding"
	case StateReleasing:
		return "Releasing"
	default:
		return "Unknown"
	}
}
