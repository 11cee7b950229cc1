package coap

// MaxLocationPaths bounds the number of Location-Path segments a decoded
// message can carry (§3.3 invariant: location_path count ≤ N).
const MaxLocationPaths = 4

// UDPBinding carries the UDP-specific wire fields that have no equivalent
// in the internal operation model: message id and message type.
type UDPBinding struct {
	MessageID uint16
	Type      MsgType
}

// TCPBinding carries the TCP-framing fields: the raw length nibble that was
// decoded (informational) and the extended length actually used.
type TCPBinding struct {
	LenNibble      uint8
	ExtendedLength uint32
}

// SignallingOption is a single CSM/Ping/Pong signalling option (RFC 8323
// Section 5), carried opaquely since interpreting CSM capabilities is a
// session-layer concern, not a codec concern.
type SignallingOption struct {
	Number uint32
	Value  []byte
}

// Message is the single uniform decoded/to-be-encoded form every CoAP
// message (UDP or TCP, request or response) is translated to and from
// (§3.3).
type Message struct {
	Operation Operation
	Code      Code
	Token     Token
	URI       Path

	ContentFormat MediaType // MediaTypeUndefined if absent
	Accept        MediaType // MediaTypeUndefined if absent

	Block1 *Block
	Block2 *Block

	ETag []byte // up to 8 bytes, nil if absent

	Observe    *uint32 // nil if absent

	// LocationPath is the registration location: the path segments after
	// "rd" on an Update/Deregister request, or the Location-Path a Register
	// response assigns.
	LocationPath []string

	// Exactly one of these is populated, selected by Operation.
	NotifyAttrs *NotificationAttrs
	Discover    *DiscoverAttrs
	Register    *RegisterAttrs
	Bootstrap   *BootstrapAttrs
	Created     *CreatedAttrs

	Payload []byte

	UDP *UDPBinding
	TCP *TCPBinding

	Signalling []SignallingOption
}

// PayloadSize returns len(Payload), matching the spec's explicit
// payload_size field (kept implicit in Go via the slice length).
func (m *Message) PayloadSize() int { return len(m.Payload) }

// Validate checks the structural invariants of §3.3 that aren't already
// enforced by the types involved (Token/Path are validated at
// construction).
func (m *Message) Validate() error {
	if !m.Token.Valid() {
		return ErrMalformed
	}
	if len(m.Payload) > 0 && m.ContentFormat == MediaTypeUndefined {
		return ErrMalformed
	}
	if Which(m.Block1, m.Block2) == BlockBoth && m.UDP != nil {
		return ErrOptionUnsupported // at most one block-which for UDP
	}
	if len(m.LocationPath) > MaxLocationPaths {
		return ErrTooManyLocationPaths
	}
	return nil
}
