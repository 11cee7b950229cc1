package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/transport/v3/packetio"
)

// Pipe is an in-memory Context used by this module's own test suites
// (testpair.go convention carried from the teacher's
// pkg/transport/pipe.go) to exercise the exchange/session/observe engines
// without a real socket. Two Pipes created by NewPipePair feed each
// other's inbox directly, using pion's packetio.Buffer the same way
// pion/dtls and pion/sctp use it to back a non-blocking, datagram-shaped
// in-memory connection.
type Pipe struct {
	mu     sync.Mutex
	peer   *Pipe
	inbox  *packetio.Buffer
	mtu    int32
	closed bool
	state  State
}

// NewPipePair returns two already-StateConnected Pipes wired to each
// other, standing in for a client and a server transport context.
func NewPipePair() (a, b *Pipe) {
	a = &Pipe{inbox: packetio.NewBuffer(), mtu: 1152, state: StateConnected}
	b = &Pipe{inbox: packetio.NewBuffer(), mtu: 1152, state: StateConnected}
	a.peer, b.peer = b, a
	return a, b
}

func (p *Pipe) Connect(host string, port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.state = StateConnected
	return nil
}

// Send hands buf directly to the peer's inbox. packetio.Buffer.Write
// never blocks, so a full/closed buffer surfaces as an error rather than
// stalling the caller, matching the non-blocking transport contract.
func (p *Pipe) Send(buf []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	peer := p.peer
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if len(buf) > int(p.mtu) {
		return 0, ErrMessageTooLarge
	}
	if _, err := peer.inbox.Write(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Recv drains one datagram from the inbox. An immediate read deadline
// turns "nothing queued yet" into ErrWouldBlock instead of letting
// packetio.Buffer.Read block the caller, the same EAGAIN-equivalent
// convention UDPContext.Recv uses over a real socket.
func (p *Pipe) Recv(buf []byte) (int, error) {
	if err := p.inbox.SetReadDeadline(time.Now()); err != nil {
		return 0, err
	}
	n, err := p.inbox.Read(buf)
	if err != nil {
		if isTimeout(err) || errors.Is(err, packetio.ErrTimeout) {
			return 0, ErrWouldBlock
		}
		if errors.Is(err, io.ErrShortBuffer) {
			return 0, ErrMessageTooLarge
		}
		return 0, err
	}
	return n, nil
}

func (p *Pipe) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateShutdown
	return nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.state = StateClosed
	return p.inbox.Close()
}

func (p *Pipe) Cleanup() {}

func (p *Pipe) InnerMTU() int32 { return p.mtu }

func (p *Pipe) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipe) ReuseLastPort() error { return nil }

var _ Context = (*Pipe)(nil)
