package exchange

import (
	"testing"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

func newReadRequest(t *testing.T, msgID uint16, typ coap.MsgType) *coap.Message {
	t.Helper()
	uri, err := coap.NewPath(3, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	return &coap.Message{
		Operation: coap.OpRead,
		Code:      coap.CodeGET,
		Token:     coap.Token{0x01, 0x02},
		URI:       uri,
		UDP:       &coap.UDPBinding{MessageID: msgID, Type: typ},
	}
}

func TestContextSendsOnFirstTick(t *testing.T) {
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, NewBackoffCalculator(fixedRandom(0)))

	if err := ctx.Tick(0); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if ctx.State != StateWaitingAck {
		t.Fatalf("State = %v, want StateWaitingAck", ctx.State)
	}
	if _, ok := ctx.NextDeadline(); !ok {
		t.Fatal("expected a deadline after sending a CON")
	}
}

func TestContextNonMessageSkipsAckWait(t *testing.T) {
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeNON), RoleInitiator, sender, DefaultParams, nil)

	if err := ctx.Tick(0); err != nil {
		t.Fatal(err)
	}
	if ctx.State != StateWaitingResponse {
		t.Fatalf("State = %v, want StateWaitingResponse", ctx.State)
	}
}

func TestContextBlockedSendRetriesNextTick(t *testing.T) {
	sender := &blockingSender{blockFor: 2}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)

	for i := 0; i < 2; i++ {
		if err := ctx.Tick(int64(i)); err != nil {
			t.Fatal(err)
		}
		if ctx.State != StateWaitingSendConfirm {
			t.Fatalf("tick %d: State = %v, want StateWaitingSendConfirm", i, ctx.State)
		}
	}
	if err := ctx.Tick(2); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if ctx.State != StateWaitingAck {
		t.Fatalf("State = %v, want StateWaitingAck", ctx.State)
	}
}

func TestContextRetransmitsOnDeadlineThenGivesUp(t *testing.T) {
	sender := &fakeSender{}
	params := Params{AckTimeout: 0, AckRandomFactor: 1.0, MaxRetransmit: 2}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, params, NewBackoffCalculator(fixedRandom(0)))

	now := int64(0)
	if err := ctx.Tick(now); err != nil {
		t.Fatal(err)
	}

	for attempt := 0; attempt <= params.MaxRetransmit; attempt++ {
		if ctx.State == StateFinished {
			break
		}
		deadline, ok := ctx.NextDeadline()
		if !ok {
			t.Fatalf("attempt %d: expected a deadline", attempt)
		}
		if err := ctx.Tick(deadline); err != nil && err != ErrMaxRetransmit {
			t.Fatal(err)
		}
	}

	if ctx.State != StateFinished {
		t.Fatalf("State = %v, want StateFinished", ctx.State)
	}
	if ctx.Err() != ErrMaxRetransmit {
		t.Fatalf("Err() = %v, want ErrMaxRetransmit", ctx.Err())
	}
	if len(sender.sent) != params.MaxRetransmit+1 {
		t.Fatalf("sent %d messages, want %d", len(sender.sent), params.MaxRetransmit+1)
	}
}

func TestContextBareAckThenSeparateResponse(t *testing.T) {
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)
	if err := ctx.Tick(0); err != nil {
		t.Fatal(err)
	}

	ack := &coap.Message{Operation: coap.OpEmpty, Code: coap.CodeEmpty, UDP: &coap.UDPBinding{MessageID: 1, Type: coap.TypeACK}}
	if done := ctx.OnMessage(ack, 10); done {
		t.Fatal("bare ACK should not finish the exchange")
	}
	if ctx.State != StateWaitingResponse {
		t.Fatalf("State = %v, want StateWaitingResponse", ctx.State)
	}

	resp := &coap.Message{Operation: coap.OpResponse, Code: coap.CodeContent, Payload: []byte("hi")}
	if done := ctx.OnMessage(resp, 20); !done {
		t.Fatal("separate response should finish the exchange")
	}
	if ctx.Response() != resp {
		t.Fatal("Response() should return the separate response")
	}
	if ctx.Err() != nil {
		t.Fatalf("Err() = %v, want nil", ctx.Err())
	}
}

func TestContextPiggybackedResponse(t *testing.T) {
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)
	if err := ctx.Tick(0); err != nil {
		t.Fatal(err)
	}

	resp := &coap.Message{Operation: coap.OpResponse, Code: coap.CodeContent, Payload: []byte("hi")}
	if done := ctx.OnMessage(resp, 5); !done {
		t.Fatal("piggybacked response should finish the exchange")
	}
	if ctx.State != StateFinished {
		t.Fatalf("State = %v, want StateFinished", ctx.State)
	}
}

func TestContextPeerReset(t *testing.T) {
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)
	if err := ctx.Tick(0); err != nil {
		t.Fatal(err)
	}

	rst := &coap.Message{Operation: coap.OpCoAPReset, Code: coap.CodeEmpty}
	if done := ctx.OnMessage(rst, 1); !done {
		t.Fatal("reset should finish the exchange")
	}
	if ctx.Err() != ErrPeerReset {
		t.Fatalf("Err() = %v, want ErrPeerReset", ctx.Err())
	}
}

func TestContextCancel(t *testing.T) {
	ctx := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, &fakeSender{}, DefaultParams, nil)
	ctx.Cancel()
	if ctx.State != StateFinished || ctx.Err() != ErrCanceled {
		t.Fatalf("State = %v, Err = %v", ctx.State, ctx.Err())
	}
}
