package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/baton/types"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnStateChanged)
	require.NotNil(t, hooks.OnHolderChanged)
	require.NotNil(t, hooks.OnError)

	ctx := t.Context()
	require.NoError(t, hooks.OnStateChanged(ctx, "door", types.StateIdle, types.StateClaiming))
	require.NoError(t, hooks.OnHolderChanged(ctx, "door", "p1"))
	require.NoError(t, hooks.OnError(ctx, context.Canceled))
}

func TestFill_KeepsCallerCallbacks(t *testing.T) {
	var holder string
	filled := Fill(types.Hooks{
		OnHolderChanged: func(_ context.Context, _, h string) error {
			holder = h
			return nil
		},
	})

	require.NotNil(t, filled.OnStateChanged)
	require.NotNil(t, filled.OnError)
	require.NoError(t, filled.OnHolderChanged(t.Context(), "door", "p2"))
	require.Equal(t, "p2", holder)
}
