package baton

import (
	"context"
	"time"

	"github.com/arloliu/baton/internal/election"
)

// Callback is invoked with the baton key when the local participant is
// elected or stops holding a baton.
type Callback func(key string)

// Baton is the local participant's handle on one baton key.
//
// Obtain it with Manager.Baton. Claim and Release never block on the network
// and never return errors; misuse such as a duplicate claim is logged and
// counted.
type Baton struct {
	coord *election.Coordinator
}

// Key returns the baton key.
func (b *Baton) Key() string {
	return b.coord.Key()
}

// Claim asks to hold the baton.
//
// onElected runs exactly once, in its own goroutine, when this participant is
// elected. onReleased runs when the hold ends without an explicit Release
// (outvoted by a competing round, or Manager.Stop). Either may be nil.
//
// Claiming while a claim is outstanding or the baton is held is a no-op.
//
// Parameters:
//   - onElected: Called with the key once elected
//   - onReleased: Called with the key when the hold ends
//
// Example:
//
//	b.Claim(
//	    func(key string) { log.Printf("holding %s", key) },
//	    func(key string) { log.Printf("lost %s", key) },
//	)
func (b *Baton) Claim(onElected, onReleased Callback) {
	b.coord.Claim(election.Callback(onElected), election.Callback(onReleased))
}

// Release gives the baton up.
//
// While holding, the release is broadcast, onReleased (or the claim's
// callback if nil) runs, and the baton is then handed to another interested
// participant. Callbacks of one baton never overlap and run in decision
// order: if onElected is still running, onReleased runs after it on the
// callback goroutine; otherwise it runs on the caller's goroutine. Claiming again from inside the
// callback keeps the baton here. While claiming, the claim is abandoned and
// no callback runs. Otherwise Release is a no-op.
//
// Parameters:
//   - onReleased: Overrides the claim's release callback when non-nil
func (b *Baton) Release(onReleased Callback) {
	b.coord.Release(election.Callback(onReleased))
}

// State returns the local coordinator state.
func (b *Baton) State() State {
	return b.coord.State()
}

// Holder returns the participant this process believes holds the baton,
// or "" when none is known.
func (b *Baton) Holder() string {
	return b.coord.Holder()
}

// IsHolding reports whether the local participant holds the baton.
func (b *Baton) IsHolding() bool {
	return b.coord.State() == StateHolding
}

// WaitState waits for the baton to reach the expected state within the timeout period.
//
// The returned channel receives exactly one value and is then closed:
//   - nil if the expected state is reached within the timeout
//   - context.DeadlineExceeded if the timeout expires first
//
// Parameters:
//   - expectedState: The state to wait for
//   - timeout: Maximum duration to wait for the state
//
// Returns:
//   - <-chan error: A channel that receives the result (nil on success, error on timeout)
//
// Example:
//
//	b.Claim(nil, nil)
//	if err := <-b.WaitState(baton.StateHolding, 5*time.Second); err != nil {
//	    log.Printf("not elected yet: %v", err)
//	}
func (b *Baton) WaitState(expectedState State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)

	go func() {
		defer close(ch)

		if b.State() == expectedState {
			ch <- nil
			return
		}

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		timeoutTimer := time.NewTimer(timeout)
		defer timeoutTimer.Stop()

		for {
			select {
			case <-ticker.C:
				if b.State() == expectedState {
					ch <- nil
					return
				}
			case <-timeoutTimer.C:
				ch <- context.DeadlineExceeded
				return
			}
		}
	}()

	return ch
}
