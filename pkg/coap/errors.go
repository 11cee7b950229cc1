package coap

import "errors"

// Errors returned by the codec. These are local decode/encode failures;
// none of them are ever sent to the peer directly (the caller maps them to
// an appropriate CoAP response code, see pkg/dispatch).
var (
	// ErrMalformed is returned for any structurally invalid input: bad
	// version, truncated header, truncated option, truncated payload.
	ErrMalformed = errors.New("coap: malformed message")

	// ErrAttrBufTooSmall is returned when decoded query-string attributes
	// would overflow the fixed attribute scratch area.
	ErrAttrBufTooSmall = errors.New("coap: attribute buffer too small")

	// ErrOptionUnsupported is returned for a critical option number outside
	// the LwM2M subset (§4.1.4).
	ErrOptionUnsupported = errors.New("coap: unsupported critical option")

	// ErrTooManyLocationPaths is returned when Location-Path segments
	// exceed MaxLocationPaths.
	ErrTooManyLocationPaths = errors.New("coap: too many location-path segments")

	// ErrURITooLong is returned when a Uri-Path exceeds MaxPathLen segments.
	ErrURITooLong = errors.New("coap: uri-path too long")

	// ErrBufTooSmall is returned by the encoder when the output buffer
	// cannot hold the complete message. Encoders never truncate.
	ErrBufTooSmall = errors.New("coap: output buffer too small")
)

// TCPDecodeStatus distinguishes the three outcomes of decoding a message
// from a byte-stream transport, where message boundaries are not aligned
// with read() calls.
type TCPDecodeStatus int

const (
	// TCPDecodeOK indicates a complete message was decoded.
	TCPDecodeOK TCPDecodeStatus = iota
	// TCPDecodeIncomplete indicates buf is shorter than the framed length;
	// the caller must read more bytes and retry.
	TCPDecodeIncomplete
	// TCPDecodeMoreData indicates buf held a complete message followed by
	// more bytes; Consumed tells the caller where the next message starts.
	TCPDecodeMoreData
)
