// Package transport declares the non-blocking transport contract the
// engine drives (§6.2) and provides a reference UDP implementation plus an
// in-memory pipe used by this module's own tests. Concrete (D)TLS-secured
// or production transports are an external collaborator per spec.md §1;
// only the Context interface is load-bearing for the rest of this module.
package transport

import "errors"

// Errors returned by a Context. EAGAIN-equivalent backpressure is reported
// through a (false, nil)/(0, ErrWouldBlock) return rather than an error
// value the caller must unwrap, mirroring the reference transport's
// non-blocking socket conventions.
var (
	// ErrWouldBlock is the EAGAIN-equivalent: the operation could not
	// complete without blocking and should be retried on a later tick.
	ErrWouldBlock = errors.New("transport: would block")

	// ErrMessageTooLarge is the EMSGSIZE-equivalent: the supplied buffer
	// cannot hold an entire datagram, or the payload exceeds the
	// transport's MTU.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrClosed is returned by any operation on a context already past
	// StateClosed.
	ErrClosed = errors.New("transport: closed")

	// ErrNotConnected is returned by Send/Recv before a successful Connect.
	ErrNotConnected = errors.New("transport: not connected")
)
