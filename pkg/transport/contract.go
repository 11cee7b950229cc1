package transport

import "time"

// Config configures a Context at creation time (§6.2 create_ctx). The
// reference UDP/TCP implementations in this package consume it directly;
// a (D)TLS-secured transport would accept the same shape plus its own
// certificate/PSK material, entirely outside this contract.
type Config struct {
	Kind Kind

	// LocalPort pins the local port a socket binds to; 0 lets the OS
	// choose, mirroring ReuseLastPort's counterpart.
	LocalPort int

	// DialTimeout bounds a blocking-looking Connect's internal retry of a
	// non-blocking dial; Connect itself never blocks past this.
	DialTimeout time.Duration
}

// Context is the non-blocking transport contract the exchange engine
// drives (§6.2). Every method must return promptly; a socket operation
// that would block returns ErrWouldBlock (or, for Recv, either
// ErrWouldBlock or ErrMessageTooLarge) instead of blocking the caller.
type Context interface {
	// Connect associates the context with a remote host:port. Returns
	// ErrWouldBlock if the underlying handshake (relevant for TCP/TLS
	// bindings) has not yet completed; the caller retries on a later tick.
	Connect(host string, port int) error

	// Send transmits buf whole (UDP: never partial). Returns
	// ErrWouldBlock if the socket buffer is currently full; the caller
	// must retry the identical buffer, not merge it with the next Send.
	Send(buf []byte) (int, error)

	// Recv reads one inbound unit (one UDP datagram, or up to len(buf)
	// TCP-framed bytes) into buf. Returns ErrWouldBlock if nothing is
	// currently available, or ErrMessageTooLarge if the next datagram
	// does not fit in buf.
	Recv(buf []byte) (int, error)

	// Shutdown begins an orderly close (e.g. TCP FIN); may return
	// ErrWouldBlock while the close is in flight, in which case the
	// caller polls Shutdown again on a later tick (§4.5.6).
	Shutdown() error

	// Close releases the context's socket without an orderly handshake.
	Close() error

	// Cleanup releases any resources retained after Close (e.g. a reused
	// local port); the context is unusable afterward.
	Cleanup()

	// InnerMTU returns the largest payload Send can carry in one unit
	// after transport and any security overhead.
	InnerMTU() int32

	// State reports the context's current lifecycle state.
	State() State

	// ReuseLastPort rebinds a fresh socket to the local port the previous
	// socket used, for clients that must keep a stable source port across
	// reconnects (e.g. after a Queue Mode wake-up).
	ReuseLastPort() error
}
