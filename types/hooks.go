package types

import "context"

// Hooks defines callbacks for baton lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the election protocol. Hooks receive the manager's
// lifecycle context which will be cancelled during shutdown.
//
// Hook execution behavior:
//   - Hooks run concurrently and may be observed out of order
//   - The context passed to hooks is cancelled when the manager stops
//   - Hook errors are logged but never affect the protocol
//
// Example:
//
//	hooks := &baton.Hooks{
//	    OnHolderChanged: func(ctx context.Context, key, holder string) error {
//	        log.Printf("baton %s now held by %q", key, holder)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called when the local coordinator for key changes state.
	OnStateChanged func(ctx context.Context, key string, from, to State) error

	// OnHolderChanged is called when the locally known holder of key changes.
	// holder is empty when the baton became unheld.
	OnHolderChanged func(ctx context.Context, key, holder string) error

	// OnError is called when a recoverable error occurs (publish, subscribe, presence).
	OnError func(ctx context.Context, err error) error
}
