package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuorum(t *testing.T) {
	tests := []struct {
		participants int
		want         int
	}{
		{-3, 1},
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{10, 6},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Quorum(tt.participants), "Quorum(%d)", tt.participants)
	}
}

func TestOrdering_Better(t *testing.T) {
	p1 := Proposal{Number: 3, ProposerID: "alice"}
	p2 := Proposal{Number: 3, ProposerID: "bob"}
	higher := Proposal{Number: 4, ProposerID: "alice"}

	t.Run("number ordering ignores proposer on ties", func(t *testing.T) {
		require.True(t, OrderingNumber.Better(higher, p2))
		require.False(t, OrderingNumber.Better(p2, higher))
		require.False(t, OrderingNumber.Better(p1, p2))
		require.False(t, OrderingNumber.Better(p2, p1))
		require.False(t, OrderingNumber.Better(p1, p1))
	})

	t.Run("strict ordering breaks ties by proposer", func(t *testing.T) {
		require.True(t, OrderingStrict.Better(higher, p2))
		require.True(t, OrderingStrict.Better(p2, p1))
		require.False(t, OrderingStrict.Better(p1, p2))
		require.False(t, OrderingStrict.Better(p1, p1))
	})

	t.Run("zero proposal is never better", func(t *testing.T) {
		require.False(t, OrderingNumber.Better(Proposal{}, Proposal{}))
		require.True(t, OrderingNumber.Better(Proposal{Number: 1}, Proposal{}))
	})
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("strict")
	require.NoError(t, err)
	require.Equal(t, OrderingStrict, o)

	o, err = ParseOrdering("")
	require.NoError(t, err)
	require.Equal(t, OrderingNumber, o)
	require.Equal(t, "number", o.String())

	_, err = ParseOrdering("lexical")
	require.Error(t, err)
}
