package lwm2m

import (
	"testing"
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/session"
	"github.com/lindqvist-iot/lwm2m/pkg/transport"
)

func newTestClient(t *testing.T, dev *testDevice) (*Client, *transport.Pipe) {
	t.Helper()
	clientSide, serverSide := transport.NewPipePair()
	cfg := Config{
		Endpoint: "test-ep",
		Session: session.Config{
			Server:   session.ServerInstance{SSID: 1, LifetimeS: 120},
			Security: session.SecurityInstance{IID: 0, URI: "coap://server"},
		},
		Registry:  newTestRegistry(dev),
		Transport: clientSide,
		Content:   lineRegistry{},
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, serverSide
}

// recvOne reads exactly one decoded CoAP message off srv, failing the test
// if the client hasn't produced one within a handful of Step calls.
func recvOne(t *testing.T, c *Client, srv *transport.Pipe, now time.Time) *coap.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		if err := c.Step(now); err != nil {
			t.Fatalf("Step: %v", err)
		}
		var buf [2048]byte
		n, err := srv.Recv(buf[:])
		if err == transport.ErrWouldBlock {
			now = now.Add(10 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		msg, derr := coap.DecodeUDP(buf[:n])
		if derr != nil {
			t.Fatalf("DecodeUDP: %v", derr)
		}
		return msg
	}
	t.Fatal("no message produced by client within budget")
	return nil
}

// TestClient_RegisterHappyPath exercises S1: the client emits a CON POST
// /rd with ep/lt/lwm2m query parameters and a link-format payload of its
// installed objects, and transitions to Registered on "2.01 Created" with
// a Location-Path.
func TestClient_RegisterHappyPath(t *testing.T) {
	dev := &testDevice{manufacturer: "Acme", counter: 1}
	c, srv := newTestClient(t, dev)
	now := time.Unix(1000, 0)

	req := recvOne(t, c, srv, now)
	if req.Operation != coap.OpRegister {
		t.Fatalf("operation = %v, want OpRegister", req.Operation)
	}
	if req.Code != coap.CodePOST {
		t.Fatalf("code = %v, want POST", req.Code)
	}
	if req.Register == nil || req.Register.Endpoint != "test-ep" {
		t.Fatalf("register attrs = %+v", req.Register)
	}
	if req.Register.Lifetime != 120 {
		t.Fatalf("lifetime = %d, want 120", req.Register.Lifetime)
	}
	if req.ContentFormat != coap.MediaTypeLinkFormat {
		t.Fatalf("content format = %v, want link-format", req.ContentFormat)
	}
	if len(req.Payload) == 0 {
		t.Fatal("expected a non-empty link-format payload")
	}

	resp := &coap.Message{
		Operation:    coap.OpResponse,
		Code:         coap.CodeCreated,
		Token:        req.Token,
		LocationPath: []string{"rd", "5a3f"},
		UDP:          &coap.UDPBinding{MessageID: req.UDP.MessageID, Type: coap.TypeACK},
	}
	raw, err := coap.EncodeUDP(resp)
	if err != nil {
		t.Fatalf("EncodeUDP: %v", err)
	}
	if _, err := srv.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := c.Step(now); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if c.Status() != session.StatusRegistered {
		t.Fatalf("status = %v, want registered", c.Status())
	}
}

// TestClient_ServerReadRoundTrip exercises a server-initiated READ: the
// dispatcher resolves the path, calls ResRead, and the client answers with
// the encoded value as a piggybacked ACK.
func TestClient_ServerReadRoundTrip(t *testing.T) {
	dev := &testDevice{manufacturer: "Acme", counter: 7}
	c, srv := newTestClient(t, dev)
	now := time.Unix(1000, 0)

	// Drain and ack the initial Register so the client settles into
	// Registered before exercising the server-initiated path.
	req := recvOne(t, c, srv, now)
	resp := &coap.Message{
		Operation:    coap.OpResponse,
		Code:         coap.CodeCreated,
		Token:        req.Token,
		LocationPath: []string{"rd", "0"},
		UDP:          &coap.UDPBinding{MessageID: req.UDP.MessageID, Type: coap.TypeACK},
	}
	raw, _ := coap.EncodeUDP(resp)
	srv.Send(raw)
	c.Step(now)

	path, err := coap.NewPath(3, 0, 1)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	get := &coap.Message{
		Operation: coap.OpRead,
		Code:      coap.CodeGET,
		Token:     coap.Token{0xAB},
		URI:       path,
		UDP:       &coap.UDPBinding{MessageID: 99, Type: coap.TypeCON},
	}
	rawReq, err := coap.EncodeUDP(get)
	if err != nil {
		t.Fatalf("EncodeUDP: %v", err)
	}
	if _, err := srv.Send(rawReq); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var ansRaw []byte
	for i := 0; i < 5; i++ {
		if err := c.Step(now); err != nil {
			t.Fatalf("Step: %v", err)
		}
		var buf [2048]byte
		n, err := srv.Recv(buf[:])
		if err == transport.ErrWouldBlock {
			continue
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		ansRaw = buf[:n]
		break
	}
	if ansRaw == nil {
		t.Fatal("no response to server READ")
	}
	ans, err := coap.DecodeUDP(ansRaw)
	if err != nil {
		t.Fatalf("DecodeUDP: %v", err)
	}
	if ans.Code != coap.CodeContent {
		t.Fatalf("code = %v, want 2.05 Content", ans.Code)
	}
	if string(ans.Token) != string(get.Token) {
		t.Fatal("response token does not match request token")
	}
	v, err := parseLine(string(ans.Payload[:len(ans.Payload)-1]))
	if err != nil {
		t.Fatalf("parseLine: %v", err)
	}
	if v.Int != 7 {
		t.Fatalf("value = %d, want 7", v.Int)
	}
}

// TestClient_ServerWriteRoundTrip exercises a server-initiated single-block
// WRITE onto resource 3/0/1 and confirms the client answers 2.04 Changed
// (Block1 chunking is covered by pkg/dispatch/write_test.go directly).
func TestClient_ServerWriteRoundTrip(t *testing.T) {
	dev := &testDevice{manufacturer: "Acme", counter: 0}
	c, srv := newTestClient(t, dev)
	now := time.Unix(1000, 0)

	req := recvOne(t, c, srv, now)
	resp := &coap.Message{
		Operation:    coap.OpResponse,
		Code:         coap.CodeCreated,
		Token:        req.Token,
		LocationPath: []string{"rd", "0"},
		UDP:          &coap.UDPBinding{MessageID: req.UDP.MessageID, Type: coap.TypeACK},
	}
	raw, _ := coap.EncodeUDP(resp)
	srv.Send(raw)
	c.Step(now)

	path, _ := coap.NewPath(3, 0, 1)
	put := &coap.Message{
		Operation:     coap.OpWriteReplace,
		Code:          coap.CodePUT,
		Token:         coap.Token{0x01, 0x02},
		URI:           path,
		ContentFormat: coap.MediaTypeText,
		Payload:       []byte("/3/0/1|i|42\n"),
		UDP:           &coap.UDPBinding{MessageID: 55, Type: coap.TypeCON},
	}
	rawReq, err := coap.EncodeUDP(put)
	if err != nil {
		t.Fatalf("EncodeUDP: %v", err)
	}
	if _, err := srv.Send(rawReq); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var ans *coap.Message
	for i := 0; i < 5; i++ {
		if err := c.Step(now); err != nil {
			t.Fatalf("Step: %v", err)
		}
		var buf [2048]byte
		n, err := srv.Recv(buf[:])
		if err == transport.ErrWouldBlock {
			continue
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		ans, err = coap.DecodeUDP(buf[:n])
		if err != nil {
			t.Fatalf("DecodeUDP: %v", err)
		}
		break
	}
	if ans == nil {
		t.Fatal("no response to server WRITE")
	}
	if ans.Code != coap.CodeChanged {
		t.Fatalf("code = %v, want 2.04 Changed", ans.Code)
	}
}

// registerClient drains and acknowledges the initial Register so the
// client settles into Registered before a test exercises a server- or
// client-initiated path.
func registerClient(t *testing.T, c *Client, srv *transport.Pipe, now time.Time) {
	t.Helper()
	req := recvOne(t, c, srv, now)
	resp := &coap.Message{
		Operation:    coap.OpResponse,
		Code:         coap.CodeCreated,
		Token:        req.Token,
		LocationPath: []string{"rd", "0"},
		UDP:          &coap.UDPBinding{MessageID: req.UDP.MessageID, Type: coap.TypeACK},
	}
	raw, _ := coap.EncodeUDP(resp)
	if _, err := srv.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Step(now); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if c.Status() != session.StatusRegistered {
		t.Fatalf("status = %v, want registered", c.Status())
	}
}

// TestClient_SendOperation exercises the client-originated Send operation
// (§5): an enqueued report goes out as a NON POST to /dp ahead of the next
// due notification.
func TestClient_SendOperation(t *testing.T) {
	dev := &testDevice{manufacturer: "Acme", counter: 0}
	c, srv := newTestClient(t, dev)
	now := time.Unix(1000, 0)
	registerClient(t, c, srv, now)

	c.Send([]byte("/3/0/1|i|5\n"), coap.MediaTypeText, false)

	var got *coap.Message
	for i := 0; i < 5; i++ {
		if err := c.Step(now); err != nil {
			t.Fatalf("Step: %v", err)
		}
		var buf [2048]byte
		n, err := srv.Recv(buf[:])
		if err == transport.ErrWouldBlock {
			continue
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got, err = coap.DecodeUDP(buf[:n])
		if err != nil {
			t.Fatalf("DecodeUDP: %v", err)
		}
		break
	}
	if got == nil {
		t.Fatal("no Send request produced")
	}
	if got.Operation != coap.OpSendNon {
		t.Fatalf("operation = %v, want OpSendNon", got.Operation)
	}
	if got.Code != coap.CodePOST {
		t.Fatalf("code = %v, want POST", got.Code)
	}
}

// TestClient_ServerRequestRejectedDuringBlockTransfer exercises §4.2.5's
// "interruption by a new request" rule: a second server-initiated request
// arriving on a different token while a Block1 WRITE is mid-transfer is
// answered with 5.03 Service Unavailable, and the original transfer is
// left untouched to complete normally afterward.
func TestClient_ServerRequestRejectedDuringBlockTransfer(t *testing.T) {
	dev := &testDevice{manufacturer: "Acme", counter: 0}
	c, srv := newTestClient(t, dev)
	now := time.Unix(1000, 0)
	registerClient(t, c, srv, now)

	path, _ := coap.NewPath(3, 0, 1)
	firstChunk := &coap.Message{
		Operation:     coap.OpWriteReplace,
		Code:          coap.CodePUT,
		Token:         coap.Token{0x01},
		URI:           path,
		ContentFormat: coap.MediaTypeText,
		Payload:       []byte("/3/0/1|i|42\n"),
		Block1:        &coap.Block{Number: 0, Size: 64, More: true},
		UDP:           &coap.UDPBinding{MessageID: 10, Type: coap.TypeCON},
	}
	raw, _ := coap.EncodeUDP(firstChunk)
	if _, err := srv.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Step(now); err != nil {
		t.Fatalf("Step: %v", err)
	}
	var buf [2048]byte
	n, err := srv.Recv(buf[:])
	if err != nil {
		t.Fatalf("Recv continue ack: %v", err)
	}
	ack, err := coap.DecodeUDP(buf[:n])
	if err != nil || ack.Code != coap.CodeContinue {
		t.Fatalf("first chunk ack = %+v, err %v, want 2.31 Continue", ack, err)
	}
	if !c.OngoingOperation() {
		t.Fatal("OngoingOperation should report the in-flight Block1 write")
	}

	intruder := &coap.Message{
		Operation: coap.OpRead,
		Code:      coap.CodeGET,
		Token:     coap.Token{0x02},
		URI:       path,
		UDP:       &coap.UDPBinding{MessageID: 11, Type: coap.TypeCON},
	}
	raw, _ = coap.EncodeUDP(intruder)
	if _, err := srv.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Step(now); err != nil {
		t.Fatalf("Step: %v", err)
	}
	n, err = srv.Recv(buf[:])
	if err != nil {
		t.Fatalf("Recv rejection: %v", err)
	}
	rej, err := coap.DecodeUDP(buf[:n])
	if err != nil {
		t.Fatalf("DecodeUDP: %v", err)
	}
	if rej.Code != coap.CodeServiceUnavailable {
		t.Fatalf("code = %v, want 5.03 Service Unavailable", rej.Code)
	}
	if string(rej.Token) != string(intruder.Token) {
		t.Fatal("rejection token does not match the intruding request")
	}

	lastChunk := &coap.Message{
		Operation:     coap.OpWriteReplace,
		Code:          coap.CodePUT,
		Token:         coap.Token{0x01},
		URI:           path,
		ContentFormat: coap.MediaTypeText,
		Block1:        &coap.Block{Number: 1, Size: 64, More: false},
		UDP:           &coap.UDPBinding{MessageID: 12, Type: coap.TypeCON},
	}
	raw, _ = coap.EncodeUDP(lastChunk)
	if _, err := srv.Send(raw); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Step(now); err != nil {
		t.Fatalf("Step: %v", err)
	}
	n, err = srv.Recv(buf[:])
	if err != nil {
		t.Fatalf("Recv final ack: %v", err)
	}
	final, err := coap.DecodeUDP(buf[:n])
	if err != nil || final.Code != coap.CodeChanged {
		t.Fatalf("final ack = %+v, err %v, want 2.04 Changed", final, err)
	}
	if c.OngoingOperation() {
		t.Fatal("OngoingOperation should be false once the write completes")
	}
}
