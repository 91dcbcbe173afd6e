// Package hooks provides default Hooks implementations.
package hooks

import (
	"context"

	"github.com/arloliu/baton/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, string, string) error                   = (*NopHooks)(nil).OnHolderChanged
	_ func(context.Context, error) error                            = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnStateChanged:  h.OnStateChanged,
		OnHolderChanged: h.OnHolderChanged,
		OnError:         h.OnError,
	}
}

// Fill returns h with every nil callback replaced by its no-op counterpart.
//
// Parameters:
//   - h: Caller-supplied hooks, possibly partially set
//
// Returns:
//   - types.Hooks: Hooks with all callbacks non-nil
func Fill(h types.Hooks) types.Hooks {
	nop := NewNop()
	if h.OnStateChanged == nil {
		h.OnStateChanged = nop.OnStateChanged
	}
	if h.OnHolderChanged == nil {
		h.OnHolderChanged = nop.OnHolderChanged
	}
	if h.OnError == nil {
		h.OnError = nop.OnError
	}

	return h
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _ string, _, _ types.State) error {
	return nil
}

// OnHolderChanged is a no-op implementation.
func (h *NopHooks) OnHolderChanged(_ context.Context, _, _ string) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
