package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_WireFormat(t *testing.T) {
	t.Run("omits absent participants", func(t *testing.T) {
		b, err := Encode(Message{Op: OpPrepare, Data: Proposal{Number: 7, ProposerID: "p1"}})
		require.NoError(t, err)
		require.JSONEq(t, `{"op":"prepare!","data":{"number":7,"proposerID":"p1"}}`, string(b))
	})

	t.Run("promise carries winner and interest", func(t *testing.T) {
		b, err := Encode(Message{Op: OpPromise, Data: Proposal{
			Number:             7,
			ProposerID:         "p1",
			Winner:             "p2",
			Interested:         "p3",
			AcceptedNumber:     5,
			AcceptedProposerID: "p2",
		}})
		require.NoError(t, err)
		require.JSONEq(t,
			`{"op":"promise","data":{"number":7,"proposerID":"p1","winner":"p2","interested":"p3","acceptedNumber":5,"acceptedProposerID":"p2"}}`,
			string(b))
	})
}

func TestDecode(t *testing.T) {
	t.Run("decodes peer message without optional fields", func(t *testing.T) {
		m, err := Decode([]byte(`{"op":"accepted","data":{"number":2,"proposerID":"p1","winner":"p1"}}`))
		require.NoError(t, err)
		require.Equal(t, OpAccepted, m.Op)
		require.Equal(t, Proposal{Number: 2, ProposerID: "p1", Winner: "p1"}, m.Data)
	})

	t.Run("unknown op is not an error", func(t *testing.T) {
		m, err := Decode([]byte(`{"op":"heartbeat","data":{"number":0}}`))
		require.NoError(t, err)
		require.False(t, m.Op.Known())
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		_, err := Decode([]byte(`{"op":`))
		require.Error(t, err)

		_, err = Decode(nil)
		require.ErrorIs(t, err, ErrEmptyPayload)
	})
}

func TestProposal_Helpers(t *testing.T) {
	p := Proposal{Number: 4, ProposerID: "p1", Winner: "p2", Interested: "p3", AcceptedNumber: 2}

	require.Equal(t, Proposal{Number: 4, ProposerID: "p1"}, p.Ballot())
	require.Equal(t, Proposal{Number: 4, ProposerID: "p1", Winner: "p2"}, p.Record())
	require.Equal(t, Proposal{Number: 2}, p.AcceptedBallot())
	require.True(t, p.SameBallot(Proposal{Number: 4, ProposerID: "p1", Winner: "other"}))
	require.False(t, p.SameBallot(Proposal{Number: 4, ProposerID: "p9"}))
	require.Equal(t, "4/p1→p2", p.String())
	require.Equal(t, "ø", Proposal{}.String())
}

func TestTopic(t *testing.T) {
	require.Equal(t, "virtualBaton:door", Topic("virtualBaton", "door"))
}

func TestOp_Known(t *testing.T) {
	for _, op := range []Op{OpPrepare, OpPromise, OpAccept, OpAccepted, OpRelease, OpNack} {
		require.True(t, op.Known(), op)
	}
	require.False(t, Op("promise!").Known())
}
