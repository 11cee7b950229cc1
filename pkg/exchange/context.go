package exchange

import (
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// Sender is the minimal non-blocking send contract an exchange needs from
// the transport layer (§6.2): Send never blocks. It returns false, nil when
// the underlying socket buffer is full and the caller should retry on the
// next Tick, mirroring the reference transport's EAGAIN convention.
type Sender interface {
	Send(raw []byte) (bool, error)
}

// Context drives one request/response (or server-initiated notify/send)
// conversation to completion. All state transitions happen inside Tick or
// OnMessage calls driven by the caller's cooperative loop; there are no
// goroutines, channels, or background timers (§4.2, §5).
type Context struct {
	Token coap.Token
	Role  Role
	State State

	params   Params
	backoff  *BackoffCalculator
	sender   Sender

	outMsg       *coap.Message
	raw          []byte
	confirmable  bool
	attempt      int
	curTimeout   time.Duration
	deadlineMs   int64
	hasDeadline  bool

	response *coap.Message
	err      error
}

// NewContext creates an exchange for an outgoing message. msg.UDP must be
// set by the caller (message id chosen, type CON or NON); the exchange only
// tracks retransmission, not message-id allocation.
func NewContext(msg *coap.Message, role Role, sender Sender, params Params, backoff *BackoffCalculator) *Context {
	if backoff == nil {
		backoff = NewBackoffCalculator(nil)
	}
	return &Context{
		Token:       msg.Token,
		Role:        role,
		State:       StateMsgToSend,
		params:      params.applyDefaults(),
		backoff:     backoff,
		sender:      sender,
		outMsg:      msg,
		confirmable: msg.UDP != nil && msg.UDP.Type == coap.TypeCON,
	}
}

// Response returns the completed response message, if any.
func (c *Context) Response() *coap.Message { return c.response }

// Err returns the terminal failure reason, or nil on success. Only
// meaningful once State is StateFinished.
func (c *Context) Err() error { return c.err }

// NextDeadline returns the absolute millisecond deadline the caller should
// next invoke Tick by, and whether one is currently set.
func (c *Context) NextDeadline() (int64, bool) { return c.deadlineMs, c.hasDeadline }

// finish transitions the exchange to its terminal state with the given
// outcome (nil err for success).
func (c *Context) finish(err error) {
	c.State = StateFinished
	c.err = err
	c.hasDeadline = false
}

// Cancel aborts the exchange immediately (§4.2.7).
func (c *Context) Cancel() {
	if c.State != StateFinished {
		c.finish(ErrCanceled)
	}
}

// encodeOutgoing lazily encodes outMsg the first time it is needed, so a
// canceled-before-send exchange never pays the encode cost.
func (c *Context) encodeOutgoing() error {
	if c.raw != nil {
		return nil
	}
	var raw []byte
	var err error
	if c.outMsg.UDP != nil {
		raw, err = coap.EncodeUDP(c.outMsg)
	} else {
		raw, err = coap.EncodeTCP(c.outMsg)
	}
	if err != nil {
		return err
	}
	c.raw = raw
	return nil
}

// Tick advances the exchange by one step: issuing the initial send,
// retrying a blocked send, or checking whether a retransmission deadline
// has passed. nowMs is the caller's monotonic clock in milliseconds.
func (c *Context) Tick(nowMs int64) error {
	switch c.State {
	case StateMsgToSend:
		return c.trySend(nowMs)

	case StateWaitingSendConfirm:
		return c.trySend(nowMs)

	case StateWaitingAck:
		if !c.hasDeadline || nowMs < c.deadlineMs {
			return nil
		}
		if c.attempt >= c.params.MaxRetransmit {
			c.finish(ErrMaxRetransmit)
			return c.err
		}
		c.attempt++
		return c.trySend(nowMs)

	case StateWaitingResponse, StateFinished:
		return nil
	}
	return nil
}

func (c *Context) trySend(nowMs int64) error {
	if err := c.encodeOutgoing(); err != nil {
		c.finish(err)
		return err
	}

	sent, err := c.sender.Send(c.raw)
	if err != nil {
		c.finish(err)
		return err
	}
	if !sent {
		c.State = StateWaitingSendConfirm
		return nil
	}

	if !c.confirmable {
		c.State = StateWaitingResponse
		c.hasDeadline = false
		return nil
	}

	if c.attempt == 0 {
		c.curTimeout = c.backoff.InitialTimeout(c.params)
	} else {
		// curTimeout still holds the previous attempt's timeout, so one
		// doubling yields T0·2^attempt.
		c.curTimeout = c.backoff.NextTimeout(c.curTimeout, 0)
	}
	c.deadlineMs = nowMs + c.curTimeout.Milliseconds()
	c.hasDeadline = true
	c.State = StateWaitingAck
	return nil
}

// OnMessage feeds an incoming message that correlates to this exchange
// (same token, matched by the caller). It reports whether the exchange
// reached a terminal outcome as a result.
func (c *Context) OnMessage(msg *coap.Message, nowMs int64) bool {
	switch c.State {
	case StateWaitingAck:
		switch msg.Operation {
		case coap.OpCoAPReset:
			c.finish(ErrPeerReset)
			return true
		case coap.OpEmpty:
			// bare ACK: request is confirmed delivered, response comes
			// separately (§4.2.4).
			c.State = StateWaitingResponse
			c.hasDeadline = false
			return false
		default:
			// piggybacked response in the ACK.
			c.response = msg
			c.finish(nil)
			return true
		}

	case StateWaitingResponse:
		c.response = msg
		c.finish(nil)
		return true
	}
	return false
}
