package coap

import (
	"bytes"
	"encoding/binary"
)

// udpVersion is the only CoAP version this codec accepts (RFC 7252 §3).
const udpVersion = 1

// udpFixedHeaderSize is the Ver/T/TKL byte, Code byte, and 2-byte Message ID.
const udpFixedHeaderSize = 4

// EncodeUDP serializes a Message to a CoAP-over-UDP datagram (RFC 7252
// Section 3). m.UDP must be set (message id and type).
func EncodeUDP(m *Message) ([]byte, error) {
	if m.UDP == nil {
		return nil, ErrMalformed
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	first := byte(udpVersion<<6) | byte(m.UDP.Type&0x3)<<4 | byte(len(m.Token)&0x0F)
	buf.WriteByte(first)
	buf.WriteByte(byte(m.Code))

	var mid [2]byte
	binary.BigEndian.PutUint16(mid[:], m.UDP.MessageID)
	buf.Write(mid[:])

	buf.Write(m.Token)

	opts, err := buildOptions(m)
	if err != nil {
		return nil, err
	}
	if err := encodeOptions(&buf, opts); err != nil {
		return nil, err
	}

	if len(m.Payload) > 0 {
		buf.WriteByte(0xFF)
		buf.Write(m.Payload)
	}

	return buf.Bytes(), nil
}

// DecodeUDP parses a complete CoAP-over-UDP datagram. UDP delivers whole
// datagrams, so unlike DecodeTCP there is no incomplete/more-data case: the
// entire slice is one message.
func DecodeUDP(data []byte) (*Message, error) {
	if len(data) < udpFixedHeaderSize {
		return nil, ErrMalformed
	}

	first := data[0]
	version := first >> 6
	if version != udpVersion {
		return nil, ErrMalformed
	}
	typ := MsgType((first >> 4) & 0x3)
	tkl := int(first & 0x0F)
	if tkl > MaxTokenLen {
		return nil, ErrMalformed
	}

	code := Code(data[1])
	msgID := binary.BigEndian.Uint16(data[2:4])

	pos := udpFixedHeaderSize
	if len(data) < pos+tkl {
		return nil, ErrMalformed
	}
	token := append(Token(nil), data[pos:pos+tkl]...)
	pos += tkl

	opts, consumed, err := decodeOptions(data[pos:])
	if err != nil {
		return nil, err
	}
	pos += consumed

	var payload []byte
	if pos < len(data) {
		if data[pos] != 0xFF {
			return nil, ErrMalformed
		}
		pos++
		payload = append([]byte(nil), data[pos:]...)
	}

	m := &Message{
		Code:    code,
		Token:   token,
		Payload: payload,
		UDP:     &UDPBinding{MessageID: msgID, Type: typ},
	}

	isRequest := code.Class() == 0 && code != CodeEmpty
	if code == CodeEmpty {
		m.Operation = OpEmpty
		return m, nil
	}
	if err := applyOptions(m, opts, isRequest); err != nil {
		return nil, err
	}

	if !isRequest && typ == TypeRST {
		m.Operation = OpCoAPReset
	}

	return m, nil
}
