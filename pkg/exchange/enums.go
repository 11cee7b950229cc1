package exchange

// Role distinguishes which side of an exchange this node is playing.
// Distinct from a CoAP message's request/response direction: a server
// plays Responder for a client-initiated request, but Initiator for a
// server-initiated Send/notification.
type Role int

const (
	RoleUnknown Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is the tick-driven lifecycle of an exchange (§4.2.1). Every state
// transition happens inside Tick or OnMessage; nothing runs on a
// background goroutine or timer.
type State int

const (
	// StateMsgToSend: the outgoing message is built and ready; Tick should
	// hand it to the transport on the next call.
	StateMsgToSend State = iota

	// StateWaitingSendConfirm: the transport refused the outgoing message
	// (its non-blocking send would have blocked), CON or NON alike; the
	// exchange retries the same send on a later Tick.
	StateWaitingSendConfirm

	// StateWaitingAck: a CON message was sent and the exchange is waiting
	// for the peer's ACK/RST, retransmitting on backoff deadlines.
	StateWaitingAck

	// StateWaitingResponse: the initial exchange completed (ACK received, or
	// the request was NON) and the exchange is waiting for the separate
	// response (§4.2.4).
	StateWaitingResponse

	// StateFinished: the exchange reached a terminal outcome. Err on the
	// Context reports whether it was success (nil) or a failure reason.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateMsgToSend:
		return "msg-to-send"
	case StateWaitingSendConfirm:
		return "waiting-send-confirm"
	case StateWaitingAck:
		return "waiting-ack"
	case StateWaitingResponse:
		return "waiting-response"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further Tick/OnMessage calls will change
// the exchange's outcome.
func (s State) IsTerminal() bool { return s == StateFinished }
