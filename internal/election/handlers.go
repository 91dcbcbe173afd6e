package election

import (
	"time"

	"github.com/arloliu/baton/internal/protocol"
	"github.com/arloliu/baton/types"
)

// handle is the transport callback for the baton topic.
func (c *Coordinator) handle(_ string, payload []byte, senderID string) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		c.metrics.RecordDroppedMessage("decode")
		c.logger.Warn("dropping undecodable message", "key", c.key, "sender", senderID, "error", err)

		return
	}
	if !msg.Op.Known() {
		c.metrics.RecordDroppedMessage("unknown_op")
		c.logger.Warn("dropping message with unknown op", "key", c.key, "op", string(msg.Op), "sender", senderID)

		return
	}
	if senderID == "" {
		c.metrics.RecordDroppedMessage("anonymous")
		c.logger.Debug("dropping message without sender", "key", c.key, "op", string(msg.Op))

		return
	}
	c.metrics.RecordMessage(string(msg.Op), "in")

	var fx effects

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.observeNumber(msg.Data.Number)

	switch msg.Op {
	case protocol.OpPrepare:
		c.onPrepare(&fx, msg.Data)
	case protocol.OpPromise:
		c.onPromise(&fx, msg.Data, senderID)
	case protocol.OpAccept:
		c.onAccept(&fx, msg.Data)
	case protocol.OpAccepted:
		c.onAccepted(&fx, msg.Data, senderID)
	case protocol.OpRelease:
		c.onRelease(&fx, msg.Data, senderID)
	case protocol.OpNack:
		// observeNumber already raised highestSeen; the watchdog retries above it.
	}
	c.mu.Unlock()

	c.flush(&fx)
}

func (c *Coordinator) observeNumber(n uint64) {
	if n > c.highestSeen {
		c.highestSeen = n
	}
}

func (c *Coordinator) better(a, b protocol.Proposal) bool {
	return c.cfg.Ordering.Better(a, b)
}

// onPrepare is the acceptor's promise step.
func (c *Coordinator) onPrepare(fx *effects, p protocol.Proposal) {
	ballot := p.Ballot()

	switch {
	case c.better(ballot, c.best):
		c.best = ballot
	case ballot.SameBallot(c.best):
		// Duplicate delivery; promising again is idempotent.
	default:
		if p.ProposerID != c.selfID {
			fx.send(protocol.OpNack, protocol.Proposal{Number: c.best.Number, ProposerID: p.ProposerID})
		}

		return
	}

	reply := protocol.Proposal{Number: ballot.Number, ProposerID: ballot.ProposerID}
	winner := c.accepted.Winner
	if winner != "" && c.cfg.LivenessProbeInterval > 0 && !c.presence.IsActive(c.key, winner) {
		winner = ""
	}
	if winner != "" {
		reply.Winner = winner
		reply.AcceptedNumber = c.accepted.Number
		reply.AcceptedProposerID = c.accepted.ProposerID
	} else if c.state == types.StateClaiming {
		reply.Interested = c.selfID
	}
	fx.send(protocol.OpPromise, reply)
}

// onPromise is the proposer's quorum step.
func (c *Coordinator) onPromise(fx *effects, p protocol.Proposal, senderID string) {
	r := c.round
	if r == nil || r.acceptSent || p.ProposerID != c.selfID || p.Number != r.proposal.Number {
		return
	}
	if _, voted := r.votes[senderID]; voted {
		return
	}
	r.votes[senderID] = struct{}{}

	if p.Winner != "" && (!r.hasStanding || c.better(p.AcceptedBallot(), r.standing.AcceptedBallot())) {
		r.standing = protocol.Proposal{
			Winner:             p.Winner,
			AcceptedNumber:     p.AcceptedNumber,
			AcceptedProposerID: p.AcceptedProposerID,
		}
		r.hasStanding = true
	}
	if p.Interested != "" {
		r.interested = p.Interested
	}

	if len(r.votes) < r.quorum {
		return
	}

	winner := c.pickWinner(r)
	r.acceptSent = true
	accept := r.proposal.Ballot()
	accept.Winner = winner
	r.proposal = accept

	c.logger.Debug("quorum reached, sending accept", "key", c.key, "proposal", accept.String(), "votes", len(r.votes))
	fx.send(protocol.OpAccept, accept)
}

// pickWinner chooses the value a round proposes. Must be called with mu held.
func (c *Coordinator) pickWinner(r *round) string {
	claiming := c.state == types.StateClaiming

	if r.hasStanding {
		// A participant that gave the baton up must not pick itself from a
		// stale acceptor that missed its release notice.
		if r.standing.Winner != c.selfID || claiming {
			return r.standing.Winner
		}
	}
	if claiming {
		return c.selfID
	}
	if r.interested != c.selfID {
		return r.interested
	}

	return ""
}

// onAccept is the acceptor's accept step.
func (c *Coordinator) onAccept(fx *effects, a protocol.Proposal) {
	ballot := a.Ballot()
	if c.better(c.best, ballot) {
		c.metrics.RecordDroppedMessage("stale")
		return
	}
	if c.better(ballot, c.best) {
		c.best = ballot
	}

	record := a.Record()
	if !record.SameBallot(c.accepted) || c.accepted.Winner == record.Winner {
		c.accepted = record
	}
	fx.send(protocol.OpAccepted, record)
}

// onAccepted is the learner step.
func (c *Coordinator) onAccepted(fx *effects, a protocol.Proposal, senderID string) {
	record := a.Record()
	ballot := record.Ballot()

	if c.chosen.Number != 0 && c.better(c.chosen, ballot) {
		c.metrics.RecordDroppedMessage("stale")
		return
	}
	if c.better(record, c.accepted) || (!c.better(c.accepted, record) && !record.SameBallot(c.accepted)) {
		c.accepted = record
	}

	entry, ok := c.tally[ballot]
	if !ok {
		entry = &tallyEntry{record: record, voters: make(map[string]struct{})}
		c.tally[ballot] = entry
	}
	entry.voters[senderID] = struct{}{}

	if ballot.SameBallot(c.chosen) {
		return
	}
	if len(entry.voters) < protocol.Quorum(c.presence.ActiveCount(c.key)) {
		return
	}

	c.chosen = record
	for b := range c.tally {
		if !c.better(b, ballot) {
			delete(c.tally, b)
		}
	}
	c.onChosen(fx, record)
}

// onChosen applies a decided ballot to the local state. Must be called with mu held.
func (c *Coordinator) onChosen(fx *effects, chosen protocol.Proposal) {
	ownRound := c.round != nil && c.round.proposal.SameBallot(chosen)
	if ownRound {
		c.cancelWatchdog()
	}
	c.round = nil

	c.logger.Debug("ballot chosen", "key", c.key, "proposal", chosen.String(), "own", ownRound)
	c.setHolder(fx, chosen.Winner)

	if chosen.Winner == c.selfID {
		switch c.state {
		case types.StateClaiming:
			c.cancelWatchdog()
			req := c.claim
			c.setState(fx, types.StateHolding)
			c.metrics.RecordElection(c.key, time.Since(req.claimedAt).Seconds())
			c.logger.Info("elected baton holder", "key", c.key, "proposal", chosen.String())
			if req.onElected != nil {
				c.enqueueCallback(c.key, req.onElected)
			}
		case types.StateIdle, types.StateReleasing:
			c.logger.Debug("elected while not claiming, handing off", "key", c.key)
			c.startHandoff(fx)
		case types.StateHolding:
		}

		return
	}

	switch c.state {
	case types.StateHolding:
		req := c.claim
		c.claim = nil
		c.logger.Info("outvoted while holding baton", "key", c.key, "holder", chosen.Winner)
		c.setState(fx, types.StateIdle)
		if req.onReleased != nil {
			c.enqueueCallback(c.key, req.onReleased)
		}

	case types.StateClaiming:
		if chosen.Winner == "" {
			// Decided without our interest; keep retrying.
			c.armWatchdog()
		} else {
			c.cancelWatchdog()
		}

	case types.StateReleasing:
		c.cancelWatchdog()
		c.handoffLeft = 0
		c.setState(fx, types.StateIdle)

	case types.StateIdle:
	}
}

// onRelease handles a holder's release notice.
func (c *Coordinator) onRelease(fx *effects, r protocol.Proposal, senderID string) {
	if r.Winner == "" || r.Winner != senderID {
		return
	}
	if c.better(c.accepted, r.Record()) || c.accepted.Winner != r.Winner {
		return
	}

	c.accepted.Winner = ""
	if c.holder == r.Winner {
		c.setHolder(fx, "")
	}
	if c.chosen.Winner == r.Winner {
		c.chosen.Winner = ""
	}

	// The releaser hands off; the watchdog backs that up.
	if c.state == types.StateClaiming && c.round == nil {
		c.armWatchdog()
	}
}
