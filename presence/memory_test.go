package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	dir := NewStatic(3)

	require.Equal(t, 3, dir.ActiveCount("door"))
	require.Equal(t, 3, dir.ActiveCount("gate"))
	require.True(t, dir.IsActive("door", "anyone"))
	require.NoError(t, dir.Join(t.Context(), "door", "p1"))
	require.NoError(t, dir.Leave(t.Context(), "door", "p1"))
	require.Equal(t, 3, dir.ActiveCount("door"))
}

func TestMemory_JoinLeave(t *testing.T) {
	ctx := t.Context()
	dir := NewMemory()

	require.Equal(t, 0, dir.ActiveCount("door"))

	require.NoError(t, dir.Join(ctx, "door", "p1"))
	require.NoError(t, dir.Join(ctx, "door", "p2"))
	require.NoError(t, dir.Join(ctx, "door", "p2"))
	require.NoError(t, dir.Join(ctx, "gate", "p1"))

	require.Equal(t, 2, dir.ActiveCount("door"))
	require.Equal(t, 1, dir.ActiveCount("gate"))
	require.True(t, dir.IsActive("door", "p2"))
	require.False(t, dir.IsActive("gate", "p2"))

	require.NoError(t, dir.Leave(ctx, "door", "p2"))
	require.Equal(t, 1, dir.ActiveCount("door"))
	require.False(t, dir.IsActive("door", "p2"))

	require.NoError(t, dir.Leave(ctx, "nowhere", "p9"))
}

func TestMemory_Evict(t *testing.T) {
	ctx := t.Context()
	dir := NewMemory()

	require.NoError(t, dir.Join(ctx, "door", "p1"))
	require.NoError(t, dir.Join(ctx, "gate", "p1"))
	require.NoError(t, dir.Join(ctx, "gate", "p2"))

	dir.Evict("p1")

	require.Equal(t, 0, dir.ActiveCount("door"))
	require.Equal(t, 1, dir.ActiveCount("gate"))
	require.True(t, dir.IsActive("gate", "p2"))
}
