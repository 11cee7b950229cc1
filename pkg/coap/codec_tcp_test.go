package coap

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeTCPReadRequest(t *testing.T) {
	uri, _ := NewPath(3, 0, 1)
	msg := &Message{
		Operation: OpRead,
		Code:      CodeGET,
		Token:     Token{0x01, 0x02, 0x03},
		URI:       uri,
	}

	raw, err := EncodeTCP(msg)
	if err != nil {
		t.Fatal(err)
	}

	got, status, consumed, err := DecodeTCP(raw)
	if err != nil {
		t.Fatal(err)
	}
	if status != TCPDecodeOK {
		t.Fatalf("status = %v, want TCPDecodeOK", status)
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if got.Operation != OpRead || !got.URI.Equal(uri) {
		t.Fatalf("got = %+v", got)
	}
}

func TestDecodeTCPIncompleteThenComplete(t *testing.T) {
	uri, _ := NewPath(3)
	msg := &Message{Operation: OpRead, Code: CodeGET, Token: Token{0x01}, URI: uri}
	raw, err := EncodeTCP(msg)
	if err != nil {
		t.Fatal(err)
	}

	if _, status, _, err := DecodeTCP(raw[:len(raw)-1]); err != nil || status != TCPDecodeIncomplete {
		t.Fatalf("status = %v, err = %v, want TCPDecodeIncomplete", status, err)
	}

	got, status, consumed, err := DecodeTCP(raw)
	if err != nil {
		t.Fatal(err)
	}
	if status != TCPDecodeOK || consumed != len(raw) {
		t.Fatalf("status = %v, consumed = %d", status, consumed)
	}
	if got.Operation != OpRead {
		t.Fatalf("Operation = %v", got.Operation)
	}
}

func TestDecodeTCPMoreDataAfterFrame(t *testing.T) {
	uri, _ := NewPath(3)
	msg := &Message{Operation: OpRead, Code: CodeGET, Token: Token{0x01}, URI: uri}
	raw, err := EncodeTCP(msg)
	if err != nil {
		t.Fatal(err)
	}

	stream := append(append([]byte(nil), raw...), raw...)
	got, status, consumed, err := DecodeTCP(stream)
	if err != nil {
		t.Fatal(err)
	}
	if status != TCPDecodeMoreData {
		t.Fatalf("status = %v, want TCPDecodeMoreData", status)
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if got.Operation != OpRead {
		t.Fatalf("Operation = %v", got.Operation)
	}

	second, status2, _, err := DecodeTCP(stream[consumed:])
	if err != nil {
		t.Fatal(err)
	}
	if status2 != TCPDecodeOK {
		t.Fatalf("second status = %v, want TCPDecodeOK", status2)
	}
	if second.Operation != OpRead {
		t.Fatalf("second Operation = %v", second.Operation)
	}
}

func TestEncodeDecodeTCPSignallingCSM(t *testing.T) {
	msg := &Message{
		Code:       NewCode(7, 1),
		Signalling: []SignallingOption{{Number: 2, Value: encodeUint(1152)}},
	}
	raw, err := EncodeTCP(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, status, _, err := DecodeTCP(raw)
	if err != nil {
		t.Fatal(err)
	}
	if status != TCPDecodeOK {
		t.Fatalf("status = %v", status)
	}
	if got.Operation != OpCSM {
		t.Fatalf("Operation = %v, want OpCSM", got.Operation)
	}
	if len(got.Signalling) != 1 || got.Signalling[0].Number != 2 {
		t.Fatalf("Signalling = %+v", got.Signalling)
	}
}

func TestEncodeTCPLargePayloadUsesExtendedLength(t *testing.T) {
	uri, _ := NewPath(3, 0, 1)
	payload := bytes.Repeat([]byte{0x42}, 400)
	msg := &Message{
		Operation:     OpWriteReplace,
		Code:          CodePUT,
		Token:         Token{0x01},
		URI:           uri,
		ContentFormat: MediaTypeOctetStream,
		Payload:       payload,
	}
	raw, err := EncodeTCP(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, status, consumed, err := DecodeTCP(raw)
	if err != nil {
		t.Fatal(err)
	}
	if status != TCPDecodeOK || consumed != len(raw) {
		t.Fatalf("status = %v, consumed = %d, want %d", status, consumed, len(raw))
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatal("payload mismatch after extended-length roundtrip")
	}
}
