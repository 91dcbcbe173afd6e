package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op identifies a protocol message type.
type Op string

// Protocol operations.
const (
	OpPrepare  Op = "prepare!"
	OpPromise  Op = "promise"
	OpAccept   Op = "accept!"
	OpAccepted Op = "accepted"
	OpRelease  Op = "release"

	// OpNack tells a proposer its prepare was stale. Peers that do not know it
	// log and drop it.
	OpNack Op = "nack"
)

// ErrEmptyPayload is returned when decoding an empty message.
var ErrEmptyPayload = errors.New("empty protocol payload")

// Known reports whether op is one of the protocol operations.
func (op Op) Known() bool {
	switch op {
	case OpPrepare, OpPromise, OpAccept, OpAccepted, OpRelease, OpNack:
		return true
	default:
		return false
	}
}

// Proposal is the data record carried by every protocol message.
//
// Empty string fields stand for an absent participant ID and are omitted on the wire.
type Proposal struct {
	Number     uint64 `json:"number"`
	ProposerID string `json:"proposerID,omitempty"`
	Winner     string `json:"winner,omitempty"`
	Interested string `json:"interested,omitempty"`

	// AcceptedNumber and AcceptedProposerID identify the ballot under which a
	// promise's Winner was accepted.
	AcceptedNumber     uint64 `json:"acceptedNumber,omitempty"`
	AcceptedProposerID string `json:"acceptedProposerID,omitempty"`
}

// Ballot returns the proposal's (number, proposerID) pair without its payload.
func (p Proposal) Ballot() Proposal {
	return Proposal{Number: p.Number, ProposerID: p.ProposerID}
}

// AcceptedBallot returns the ballot a promise's Winner was accepted under.
func (p Proposal) AcceptedBallot() Proposal {
	return Proposal{Number: p.AcceptedNumber, ProposerID: p.AcceptedProposerID}
}

// Record returns the proposal reduced to the accepted-state fields.
func (p Proposal) Record() Proposal {
	return Proposal{Number: p.Number, ProposerID: p.ProposerID, Winner: p.Winner}
}

// SameBallot reports whether p and other carry the same (number, proposerID).
func (p Proposal) SameBallot(other Proposal) bool {
	return p.Number == other.Number && p.ProposerID == other.ProposerID
}

func (p Proposal) String() string {
	if p.Number == 0 && p.ProposerID == "" {
		return "ø"
	}
	if p.Winner == "" {
		return fmt.Sprintf("%d/%s", p.Number, p.ProposerID)
	}

	return fmt.Sprintf("%d/%s→%s", p.Number, p.ProposerID, p.Winner)
}

// Message is one protocol message.
type Message struct {
	Op   Op       `json:"op"`
	Data Proposal `json:"data"`
}

// Encode serializes m to its JSON wire form.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Op, err)
	}

	return b, nil
}

// Decode parses a JSON wire message.
//
// Unknown ops decode successfully; callers decide how to treat them.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return Message{}, ErrEmptyPayload
	}

	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode protocol message: %w", err)
	}

	return m, nil
}

// Topic returns the broadcast topic for a baton key.
func Topic(namespace, key string) string {
	return namespace + ":" + key
}
