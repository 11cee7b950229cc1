package transport

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// UDPContext is the reference non-blocking UDP Context (§6.2). It wraps a
// *net.UDPConn and uses golang.org/x/net's ipv4/ipv6 control-message
// helpers to recover the local address a datagram actually arrived on, the
// way a multi-homed constrained device picks its reply source address.
type UDPContext struct {
	log logging.LeveledLogger

	mu       sync.Mutex
	conn     *net.UDPConn
	pconn4   *ipv4.PacketConn
	pconn6   *ipv6.PacketConn
	peer     *net.UDPAddr
	lastPort int
	state    State
	mtu      int32

	lastRecvDst net.IP
}

// NewUDPContext creates an unbound UDP context. Connect must be called
// before Send/Recv are usable.
func NewUDPContext(cfg Config, logger logging.LeveledLogger) *UDPContext {
	if logger == nil {
		logger = logging.NewDefaultLoggerFactory().NewLogger("lwm2m-transport")
	}
	return &UDPContext{
		log:      logger,
		state:    StateClosed,
		mtu:      1152, // conservative default: fits under the common 1280-byte IPv6 MTU minus headers
		lastPort: cfg.LocalPort,
	}
}

// Connect binds a local UDP socket (reusing lastPort if set) and records
// the peer address Send/Recv target.
func (c *UDPContext) Connect(host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	peerAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}

	local := &net.UDPAddr{Port: c.lastPort}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return err
	}
	if err := conn.SetReadBuffer(64 * 1024); err != nil {
		c.log.Warnf("udp: set read buffer: %v", err)
	}

	c.conn = conn
	c.peer = peerAddr
	c.lastPort = conn.LocalAddr().(*net.UDPAddr).Port
	c.state = StateConnected

	if ip4 := conn.LocalAddr().(*net.UDPAddr).IP.To4(); ip4 != nil {
		c.pconn4 = ipv4.NewPacketConn(conn)
		_ = c.pconn4.SetControlMessage(ipv4.FlagDst, true)
	} else {
		c.pconn6 = ipv6.NewPacketConn(conn)
		_ = c.pconn6.SetControlMessage(ipv6.FlagDst, true)
	}
	return nil
}

// Send writes buf as one datagram to the connected peer. A timed-out
// non-blocking write surfaces as ErrWouldBlock.
func (c *UDPContext) Send(buf []byte) (int, error) {
	c.mu.Lock()
	conn, peer, state := c.conn, c.peer, c.state
	c.mu.Unlock()

	if state != StateConnected {
		return 0, ErrNotConnected
	}
	if len(buf) > int(c.mtu) {
		return 0, ErrMessageTooLarge
	}
	if err := conn.SetWriteDeadline(time.Now()); err != nil {
		return 0, err
	}
	n, err := conn.WriteToUDP(buf, peer)
	if err != nil {
		if isTimeout(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Recv reads the next available datagram into buf without blocking,
// recording the local address it arrived on (via the ipv4/ipv6
// control-message destination) for ReplySourceAddr.
func (c *UDPContext) Recv(buf []byte) (int, error) {
	c.mu.Lock()
	conn, pconn4, pconn6, state := c.conn, c.pconn4, c.pconn6, c.state
	c.mu.Unlock()

	if state != StateConnected {
		return 0, ErrNotConnected
	}
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return 0, err
	}

	var n int
	var err error
	var dst net.IP
	switch {
	case pconn4 != nil:
		var cm *ipv4.ControlMessage
		n, cm, _, err = pconn4.ReadFrom(buf)
		if cm != nil {
			dst = cm.Dst
		}
	case pconn6 != nil:
		var cm *ipv6.ControlMessage
		n, cm, _, err = pconn6.ReadFrom(buf)
		if cm != nil {
			dst = cm.Dst
		}
	default:
		n, _, err = conn.ReadFromUDP(buf)
	}
	if err != nil {
		if isTimeout(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}

	c.mu.Lock()
	c.lastRecvDst = dst
	c.mu.Unlock()
	return n, nil
}

// ReplySourceAddr returns the local address the most recent datagram was
// received on, so a multi-homed device can reply from the same address the
// server addressed it to. Nil if no control-message destination has been
// observed yet (e.g. a platform without IP_PKTINFO support).
func (c *UDPContext) ReplySourceAddr() net.IP {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecvDst
}

func (c *UDPContext) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateShutdown
	return nil
}

func (c *UDPContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.state = StateClosed
		return nil
	}
	err := c.conn.Close()
	c.state = StateClosed
	return err
}

func (c *UDPContext) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.pconn4 = nil
	c.pconn6 = nil
}

func (c *UDPContext) InnerMTU() int32 { return c.mtu }

func (c *UDPContext) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReuseLastPort rebinds to the port the previous socket used — e.g. after
// Queue Mode closes the transport and a later wake-up needs to present the
// same source port to the server again.
func (c *UDPContext) ReuseLastPort() error {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return ErrNotConnected
	}
	return c.Connect(peer.IP.String(), peer.Port)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

var _ Context = (*UDPContext)(nil)
