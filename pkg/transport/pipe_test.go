package transport

import "testing"

func TestPipe_SendRecvRoundTrip(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	msg := []byte("register me")
	if _, err := a.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 64)
	n, err := b.Recv(buf)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("got %q, want %q", buf[:n], msg)
	}
}

func TestPipe_RecvWithoutDataIsWouldBlock(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	buf := make([]byte, 16)
	if _, err := a.Recv(buf); err != ErrWouldBlock {
		t.Fatalf("got %v, want ErrWouldBlock", err)
	}
}

func TestPipe_SendAfterCloseFails(t *testing.T) {
	a, b := NewPipePair()
	defer b.Close()
	a.Close()

	if _, err := a.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestPipe_OversizeSendRejected(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	big := make([]byte, a.InnerMTU()+1)
	if _, err := a.Send(big); err != ErrMessageTooLarge {
		t.Fatalf("got %v, want ErrMessageTooLarge", err)
	}
}

func TestPipe_StateTransitions(t *testing.T) {
	a, b := NewPipePair()
	defer b.Close()

	if a.State() != StateConnected {
		t.Fatalf("initial state = %v, want connected", a.State())
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if a.State() != StateShutdown {
		t.Fatalf("state after shutdown = %v", a.State())
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.State() != StateClosed {
		t.Fatalf("state after close = %v", a.State())
	}
}
