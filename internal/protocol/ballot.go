package protocol

import "fmt"

// Ordering decides when one proposal is strictly better than another.
type Ordering int

const (
	// OrderingNumber compares proposal numbers only. Two proposals with the same
	// number are never better than each other. This is the historical behavior.
	OrderingNumber Ordering = iota

	// OrderingStrict compares (number, proposerID) lexicographically, so equal
	// numbers from different proposers are totally ordered.
	OrderingStrict
)

// ParseOrdering converts a configuration string into an Ordering.
//
// Parameters:
//   - s: "number" or "strict"
//
// Returns:
//   - Ordering: Parsed ordering
//   - error: Non-nil for unknown values
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "number", "":
		return OrderingNumber, nil
	case "strict":
		return OrderingStrict, nil
	default:
		return OrderingNumber, fmt.Errorf("unknown ballot ordering %q", s)
	}
}

func (o Ordering) String() string {
	switch o {
	case OrderingNumber:
		return "number"
	case OrderingStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// Better reports whether a is strictly better than b.
func (o Ordering) Better(a, b Proposal) bool {
	if a.Number != b.Number {
		return a.Number > b.Number
	}
	if o == OrderingStrict {
		return a.ProposerID > b.ProposerID
	}

	return false
}

// Quorum returns the majority threshold for n participants: n/2 + 1.
//
// A non-positive n is treated as zero participants, which yields 1 so a lone
// participant with a stale directory can still make progress.
func Quorum(n int) int {
	if n < 0 {
		n = 0
	}

	return n/2 + 1
}
