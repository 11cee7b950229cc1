// Package content declares the boundary between the engine and a
// content-format serializer (§6.3). The engine never parses or renders
// TLV/SenML/CBOR/JSON payload bytes itself; it only moves typed Values
// between the data-model dispatcher and whichever Encoder/Decoder the
// caller plugs in for a given Content-Format.
package content

import (
	"errors"
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// ErrNeedMoreData is returned by a Decoder when the supplied buffer ends
// mid-value; the caller is expected to append more bytes (typically the
// next Block1 chunk) and call again.
var ErrNeedMoreData = errors.New("content: need more data")

// ErrUnsupportedFormat is returned when no Encoder/Decoder is registered
// for a requested MediaType.
var ErrUnsupportedFormat = errors.New("content: unsupported format")

// Kind identifies which field of Value is meaningful.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindUint
	KindDouble
	KindBool
	KindString
	KindBytes
	KindObjLnk
	KindTime
)

// ObjectLink is the LwM2M objlnk value type: an object id/instance id pair.
type ObjectLink struct {
	ObjectID   uint16
	InstanceID uint16
}

// Value is the typed-value union a serializer produces or consumes,
// associated with the path it was read from or is being written to
// (§6.3: int, uint, double, bool, string, bytes, objlnk, time).
type Value struct {
	Path coap.Path
	Kind Kind

	Int    int64
	Uint   uint64
	Double float64
	Bool   bool
	Str    string
	Bytes  []byte
	ObjLnk ObjectLink
	Time   time.Time
}

// Encoder renders a sequence of Values for one path's subtree into a
// growing output buffer for a single Content-Format. Values must be
// delivered in ascending path order (§4.4.4).
type Encoder interface {
	// Format reports the MediaType this encoder produces.
	Format() coap.MediaType

	// PutValue appends one value's encoding. It may return
	// ErrNeedMoreData if internal buffering requires draining via Bytes
	// first; the dispatcher then calls Bytes, clears its output window,
	// and retries.
	PutValue(v Value) error

	// Bytes returns the buffered encoding so far. The caller may
	// truncate what it has consumed by calling Reset.
	Bytes() []byte

	// Reset drops the first n bytes already consumed by the caller,
	// keeping any remainder for the next PutValue call.
	Reset(n int)

	// Finish closes any open containers (e.g. a composite wrapper) and
	// returns the final trailing bytes.
	Finish() ([]byte, error)
}

// Decoder parses a buffer of one Content-Format into a sequence of
// Values, used for WRITE/CREATE/EXECUTE payloads and composite requests.
type Decoder interface {
	// Format reports the MediaType this decoder consumes.
	Format() coap.MediaType

	// Feed appends newly-received bytes (e.g. a Block1 chunk) to the
	// decode buffer.
	Feed(data []byte)

	// Next decodes and returns the next Value. It returns
	// ErrNeedMoreData if the buffer doesn't yet hold a complete value;
	// the caller should Feed more and retry.
	Next() (Value, error)

	// Done reports whether the decoder has consumed a complete
	// top-level document and no further values remain.
	Done() bool
}

// Registry resolves an Encoder/Decoder pair for a requested MediaType.
// A concrete content-format package (not part of this module) registers
// itself here; the engine only depends on this interface.
type Registry interface {
	NewEncoder(format coap.MediaType) (Encoder, error)
	NewDecoder(format coap.MediaType) (Decoder, error)
}
