// Package session implements the top-level client session state machine
// (§3.6, §4.5): conn-status transitions, the registration and bootstrap
// sub-machines, queue mode, server-triggered disable, and the
// communication-retry schedule. It never performs I/O itself — it tells
// its owner what to send next via Session.Tick and is fed back the
// outcome of each exchange through its On*Result methods.
package session

import "errors"

var (
	// ErrNotConfigured is returned when an operation needs a server or
	// security instance that has not been set.
	ErrNotConfigured = errors.New("session: no server configured")

	// ErrBootstrapFailed is the sticky failure reason after a bootstrap
	// sequence times out or the post-bootstrap validation fails (§4.5.3).
	ErrBootstrapFailed = errors.New("session: bootstrap failed")

	// ErrRetryExhausted is the sticky failure reason after the
	// communication-retry schedule runs out without
	// bootstrap_on_registration_failure set (§4.5.2).
	ErrRetryExhausted = errors.New("session: communication retry schedule exhausted")

	// ErrWrongState is returned by operations not valid in the session's
	// current ConnStatus.
	ErrWrongState = errors.New("session: operation not valid in current state")
)
