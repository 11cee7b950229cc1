// Package exchange drives a single CoAP request/response conversation to
// completion: retransmission timing, deduplication, block-wise transfer,
// and the separate-response case, all advanced by repeated, non-blocking
// Tick calls rather than goroutines or timers (§4.2).
package exchange

import "errors"

// Errors returned by the exchange package. None of these cross the wire;
// callers map them to a CoAP response code or a session-level failure.
var (
	// ErrFinished is returned when an operation is attempted on an exchange
	// that has already reached a terminal state.
	ErrFinished = errors.New("exchange: exchange already finished")

	// ErrMaxRetransmit is the terminal reason when an exchange exhausts its
	// retransmission budget without an ACK (§4.2.2).
	ErrMaxRetransmit = errors.New("exchange: max retransmissions exceeded")

	// ErrCanceled is the terminal reason when an exchange is canceled by its
	// owner before completion (§4.2.7).
	ErrCanceled = errors.New("exchange: canceled")

	// ErrInterrupted is the terminal reason when a new client request
	// reusing its token interrupts a pending exchange (§4.2.5).
	ErrInterrupted = errors.New("exchange: interrupted by a newer request")

	// ErrBlockTransferNeeded signals that the exchange cannot complete a
	// read/write in one step and needs another block exchanged first. It is
	// a control-flow signal, not a failure.
	ErrBlockTransferNeeded = errors.New("exchange: block transfer needed")

	// ErrPeerReset is the terminal reason when the peer replies with a CoAP
	// Reset message.
	ErrPeerReset = errors.New("exchange: peer sent reset")

	// ErrInvalidParams is returned by Params.Validate for an unusable
	// timing configuration.
	ErrInvalidParams = errors.New("exchange: invalid timing parameters")

	// ErrBlockOutOfRange is returned when a requested block number starts
	// past the end of the payload being sliced.
	ErrBlockOutOfRange = errors.New("exchange: block number out of range")

	// ErrBlockOutOfOrder is returned when an assembler receives a block
	// number other than the next expected one.
	ErrBlockOutOfOrder = errors.New("exchange: block received out of order")

	// ErrBlockSizeChanged is returned when a block-wise upload tries to
	// increase its block size mid-transfer.
	ErrBlockSizeChanged = errors.New("exchange: block size increased mid-transfer")
)
