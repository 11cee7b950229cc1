package coap

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Option numbers the codec understands (§4.1.4). Any other critical
// (odd-numbered per RFC 7252 Section 5.4.6) option is ErrOptionUnsupported;
// elective (even-numbered) unknown options are silently ignored.
const (
	OptIfMatch      uint16 = 1
	OptURIHost      uint16 = 3
	OptETag         uint16 = 4
	OptIfNoneMatch  uint16 = 5
	OptObserve      uint16 = 6
	OptURIPort      uint16 = 7
	OptLocationPath uint16 = 8
	OptURIPath      uint16 = 11
	OptContentFormat uint16 = 12
	OptMaxAge       uint16 = 14
	OptURIQuery     uint16 = 15
	OptAccept       uint16 = 17
	OptLocationQuery uint16 = 20
	OptBlock2       uint16 = 23
	OptBlock1       uint16 = 27
	OptSize2        uint16 = 28
	OptSize1        uint16 = 60
)

func isCriticalOption(num uint16) bool {
	return num%2 == 1
}

func isKnownOption(num uint16) bool {
	switch num {
	case OptIfMatch, OptURIHost, OptETag, OptIfNoneMatch, OptObserve,
		OptURIPort, OptLocationPath, OptURIPath, OptContentFormat,
		OptMaxAge, OptURIQuery, OptAccept, OptLocationQuery,
		OptBlock2, OptBlock1, OptSize2, OptSize1:
		return true
	default:
		return false
	}
}

// rawOption is a single decoded CoAP option, before being folded into the
// typed Message fields.
type rawOption struct {
	Number uint16
	Value  []byte
}

// encodeOptionHeader writes the CoAP delta/length nibble encoding for one
// option, given the previous option's number.
func encodeOptionHeader(buf *bytes.Buffer, delta, length int) error {
	if delta < 0 || length < 0 {
		return ErrMalformed
	}
	var d0, l0 int
	var dExt, lExt []byte

	switch {
	case delta < 13:
		d0 = delta
	case delta < 269:
		d0 = 13
		dExt = []byte{byte(delta - 13)}
	case delta < 65535+269:
		d0 = 14
		dExt = make([]byte, 2)
		binary.BigEndian.PutUint16(dExt, uint16(delta-269))
	default:
		return ErrMalformed
	}

	switch {
	case length < 13:
		l0 = length
	case length < 269:
		l0 = 13
		lExt = []byte{byte(length - 13)}
	case length < 65535+269:
		l0 = 14
		lExt = make([]byte, 2)
		binary.BigEndian.PutUint16(lExt, uint16(length-269))
	default:
		return ErrMalformed
	}

	buf.WriteByte(byte(d0<<4) | byte(l0))
	buf.Write(dExt)
	buf.Write(lExt)
	return nil
}

// encodeOptions writes a sorted option list (by Number, ascending, stable
// for repeatable options) in CoAP delta/length form.
func encodeOptions(buf *bytes.Buffer, opts []rawOption) error {
	sorted := append([]rawOption(nil), opts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	prev := uint16(0)
	for _, opt := range sorted {
		delta := int(opt.Number) - int(prev)
		if err := encodeOptionHeader(buf, delta, len(opt.Value)); err != nil {
			return err
		}
		buf.Write(opt.Value)
		prev = opt.Number
	}
	return nil
}

// decodeOptions parses the option list starting at data[0], stopping at
// the payload marker (0xFF) or end of buffer. Returns the options found and
// the number of bytes consumed (not including the payload marker itself).
func decodeOptions(data []byte) (opts []rawOption, consumed int, err error) {
	pos := 0
	optNum := uint16(0)

	for pos < len(data) {
		if data[pos] == 0xFF {
			return opts, pos, nil
		}

		header := data[pos]
		pos++
		deltaNibble := int(header >> 4)
		lenNibble := int(header & 0x0F)

		if deltaNibble == 15 || lenNibble == 15 {
			return nil, 0, ErrMalformed
		}

		delta, n, err := decodeExtendedValue(deltaNibble, data[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n

		length, n, err := decodeExtendedValue(lenNibble, data[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n

		if pos+length > len(data) {
			return nil, 0, ErrMalformed
		}

		num := optNum + uint16(delta)
		if int(num) < int(optNum) {
			return nil, 0, ErrMalformed // overflow past 65535
		}
		optNum = num

		if !isKnownOption(optNum) {
			if isCriticalOption(optNum) {
				return nil, 0, ErrOptionUnsupported
			}
			// elective unknown option: skip silently
			pos += length
			continue
		}

		value := make([]byte, length)
		copy(value, data[pos:pos+length])
		pos += length

		opts = append(opts, rawOption{Number: optNum, Value: value})
	}

	return opts, pos, nil
}

// decodeExtendedValue resolves a 4-bit nibble (delta or length) plus any
// extended bytes that follow it, per RFC 7252 Section 3.1.
func decodeExtendedValue(nibble int, rest []byte) (value, consumed int, err error) {
	switch {
	case nibble < 13:
		return nibble, 0, nil
	case nibble == 13:
		if len(rest) < 1 {
			return 0, 0, ErrMalformed
		}
		return int(rest[0]) + 13, 1, nil
	case nibble == 14:
		if len(rest) < 2 {
			return 0, 0, ErrMalformed
		}
		return int(binary.BigEndian.Uint16(rest[:2])) + 269, 2, nil
	default:
		return 0, 0, ErrMalformed
	}
}

// encodeUint renders an unsigned integer in the minimal number of
// big-endian bytes CoAP uses for numeric option values (0 bytes for value
// 0).
func encodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v))
		return b
	case v < 1<<24:
		b := make([]byte, 3)
		b[0] = byte(v >> 16)
		b[1] = byte(v >> 8)
		b[2] = byte(v)
		return b
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b
	}
}

func decodeUint(b []byte) (uint32, error) {
	if len(b) > 4 {
		return 0, ErrMalformed
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v, nil
}
