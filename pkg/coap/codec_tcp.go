package coap

import (
	"bytes"
	"encoding/binary"
)

// tcpLenExtended1/2/4 are the length-nibble values signalling that the
// actual length follows as 1, 2, or 4 extra bytes (RFC 8323 Section 3.2).
const (
	tcpLenExtended1 = 13
	tcpLenExtended2 = 14
	tcpLenExtended4 = 15

	tcpLenExtended1Base = 13
	tcpLenExtended2Base = 269
	tcpLenExtended4Base = 65805
)

// isSignallingCode reports whether a code is a 7.xx signalling code (CSM,
// Ping, Pong, Release, Abort; RFC 8323 Section 5), which use their own
// option-number space rather than the request/response one.
func isSignallingCode(c Code) bool { return c.Class() == 7 }

// EncodeTCP serializes a Message to a CoAP-over-TCP frame (RFC 8323 Section
// 3.2): a length-nibble header, TKL nibble, code, token, options, and an
// optional 0xFF-marked payload. There is no message id or type.
func EncodeTCP(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.Write(m.Token)

	if isSignallingCode(m.Code) {
		if err := encodeSignallingOptions(&body, m.Signalling); err != nil {
			return nil, err
		}
	} else {
		opts, err := buildOptions(m)
		if err != nil {
			return nil, err
		}
		if err := encodeOptions(&body, opts); err != nil {
			return nil, err
		}
	}

	if len(m.Payload) > 0 {
		body.WriteByte(0xFF)
		body.Write(m.Payload)
	}

	optionsAndPayloadLen := body.Len() - len(m.Token)

	var out bytes.Buffer
	if err := encodeTCPLenHeader(&out, optionsAndPayloadLen, len(m.Token)); err != nil {
		return nil, err
	}
	out.WriteByte(byte(m.Code))
	out.Write(body.Bytes())

	return out.Bytes(), nil
}

func encodeTCPLenHeader(buf *bytes.Buffer, length, tkl int) error {
	if tkl > MaxTokenLen {
		return ErrMalformed
	}

	var lenNibble int
	var ext []byte

	switch {
	case length < tcpLenExtended1:
		lenNibble = length
	case length < tcpLenExtended1Base+256:
		lenNibble = tcpLenExtended1
		ext = []byte{byte(length - tcpLenExtended1Base)}
	case length < tcpLenExtended2Base+65536:
		lenNibble = tcpLenExtended2
		ext = make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(length-tcpLenExtended2Base))
	default:
		lenNibble = tcpLenExtended4
		ext = make([]byte, 4)
		binary.BigEndian.PutUint32(ext, uint32(length-tcpLenExtended4Base))
	}

	buf.WriteByte(byte(lenNibble<<4) | byte(tkl&0x0F))
	buf.Write(ext)
	return nil
}

// DecodeTCP parses one frame from the head of buf, which may contain a
// partial frame, exactly one frame, or one frame followed by the start of
// another (stream reads are not message-aligned). status tells the caller
// which case occurred; consumed is only meaningful for TCPDecodeOK and
// TCPDecodeMoreData.
func DecodeTCP(buf []byte) (m *Message, status TCPDecodeStatus, consumed int, err error) {
	if len(buf) < 1 {
		return nil, TCPDecodeIncomplete, 0, nil
	}

	first := buf[0]
	lenNibble := int(first >> 4)
	tkl := int(first & 0x0F)
	if tkl > MaxTokenLen {
		return nil, 0, 0, ErrMalformed
	}

	pos := 1
	length, extLen, err := decodeTCPLen(lenNibble, buf[pos:])
	if err != nil {
		return nil, 0, 0, err
	}
	pos += extLen

	// code byte + token + options/payload
	frameRemainder := 1 + tkl + length
	if len(buf) < pos+frameRemainder {
		return nil, TCPDecodeIncomplete, 0, nil
	}

	code := Code(buf[pos])
	pos++

	if len(buf) < pos+tkl {
		return nil, TCPDecodeIncomplete, 0, nil
	}
	token := append(Token(nil), buf[pos:pos+tkl]...)
	pos += tkl

	body := buf[pos : pos+length]
	pos += length

	m = &Message{
		Code:  code,
		Token: token,
		TCP:   &TCPBinding{LenNibble: uint8(lenNibble), ExtendedLength: uint32(length)},
	}

	if isSignallingCode(code) {
		sig, bodyConsumed, err := decodeSignallingOptions(body)
		if err != nil {
			return nil, 0, 0, err
		}
		m.Signalling = sig
		if bodyConsumed < len(body) {
			if body[bodyConsumed] != 0xFF {
				return nil, 0, 0, ErrMalformed
			}
			m.Payload = append([]byte(nil), body[bodyConsumed+1:]...)
		}
		m.Operation = signallingOperation(code)
	} else {
		opts, bodyConsumed, err := decodeOptions(body)
		if err != nil {
			return nil, 0, 0, err
		}
		if bodyConsumed < len(body) {
			if body[bodyConsumed] != 0xFF {
				return nil, 0, 0, ErrMalformed
			}
			m.Payload = append([]byte(nil), body[bodyConsumed+1:]...)
		}
		isRequest := code.Class() == 0 && code != CodeEmpty
		if code == CodeEmpty {
			m.Operation = OpEmpty
		} else if err := applyOptions(m, opts, isRequest); err != nil {
			return nil, 0, 0, err
		}
	}

	if pos < len(buf) {
		return m, TCPDecodeMoreData, pos, nil
	}
	return m, TCPDecodeOK, pos, nil
}

func decodeTCPLen(nibble int, rest []byte) (length, consumed int, err error) {
	switch nibble {
	case tcpLenExtended1:
		if len(rest) < 1 {
			return 0, 0, ErrMalformed
		}
		return int(rest[0]) + tcpLenExtended1Base, 1, nil
	case tcpLenExtended2:
		if len(rest) < 2 {
			return 0, 0, ErrMalformed
		}
		return int(binary.BigEndian.Uint16(rest[:2])) + tcpLenExtended2Base, 2, nil
	case tcpLenExtended4:
		if len(rest) < 4 {
			return 0, 0, ErrMalformed
		}
		return int(binary.BigEndian.Uint32(rest[:4])) + tcpLenExtended4Base, 4, nil
	default:
		return nibble, 0, nil
	}
}

// encodeSignallingOptions writes 7.xx signalling options using the same
// delta/length wire form as ordinary options, but without the LwM2M
// known-option whitelist (CSM/Ping/Pong/Release/Abort use a distinct
// option-number space, RFC 8323 Section 5).
func encodeSignallingOptions(buf *bytes.Buffer, opts []SignallingOption) error {
	sorted := append([]SignallingOption(nil), opts...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Number < sorted[i].Number {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	prev := uint32(0)
	for _, opt := range sorted {
		if err := encodeOptionHeader(buf, int(opt.Number-prev), len(opt.Value)); err != nil {
			return err
		}
		buf.Write(opt.Value)
		prev = opt.Number
	}
	return nil
}

func decodeSignallingOptions(data []byte) (opts []SignallingOption, consumed int, err error) {
	pos := 0
	optNum := uint32(0)

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

		optNum += uint32(delta)
		value := make([]byte, length)
		copy(value, data[pos:pos+length])
		pos += length

		opts = append(opts, SignallingOption{Number: optNum, Value: value})
	}
	return opts, pos, nil
}

func signallingOperation(code Code) Operation {
	switch code {
	case NewCode(7, 1):
		return OpCSM
	case NewCode(7, 2):
		return OpPing
	case NewCode(7, 3):
		return OpPong
	case NewCode(7, 4):
		return OpRelease
	case NewCode(7, 5):
		return OpAbort
	default:
		return OpUnknown
	}
}
