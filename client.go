// Package lwm2m ties the protocol/exchange core together into a single
// non-blocking client session (§6.5): Step drives CoAP codec, exchange
// retransmission/block-wise transfer, the data-model dispatcher, and the
// observation engine from one cooperative entry point, exactly the way
// pkg/matter/node.go's Node coordinates its own layers around a single
// event loop.
package lwm2m

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
	"github.com/lindqvist-iot/lwm2m/pkg/dispatch"
	"github.com/lindqvist-iot/lwm2m/pkg/exchange"
	"github.com/lindqvist-iot/lwm2m/pkg/observe"
	"github.com/lindqvist-iot/lwm2m/pkg/session"
	"github.com/lindqvist-iot/lwm2m/pkg/transport"
)

// Config configures a new Client (§6.5 core_init). Registry must already
// carry every object the device exposes (Device/Server/Security/
// FirmwareUpdate and any application objects); registering those concrete
// objects is an external collaborator's job, out of this module's scope
// (spec.md §1).
type Config struct {
	Endpoint string
	Session  session.Config
	Registry *dispatch.Registry

	Transport transport.Context
	Content   content.Registry

	ExchangeParams exchange.Params

	// ReadBudget bounds the number of payload bytes buffered per Block2
	// chunk during a streaming READ (§4.4.4). Zero falls back to the
	// transport's InnerMTU minus a fixed header allowance.
	ReadBudget int

	Log logging.LeveledLogger
}

// Client is the top-level LwM2M client session (§3.6, §6.5). It owns no
// goroutines: Step is the sole entry point and must be called repeatedly
// from the application's main loop (§5).
type Client struct {
	log logging.LeveledLogger

	endpoint  string
	ssid      uint16
	lifetimeS uint32

	session      *session.Session
	registry     *dispatch.Registry
	observations *observe.Registry
	composites   *observe.CompositeIndex
	attrs        *observe.AttrStore
	content      content.Registry
	xport        transport.Context
	sender       *transportSender

	exParams exchange.Params
	backoff  *exchange.BackoffCalculator
	readBudget int

	current     *exchange.Context
	currentKind actionKind

	// notifyRec/notifyValue identify the observation an in-flight
	// actionNotify exchange belongs to, so finishCurrent can call
	// MarkSent once it completes successfully.
	notifyRec   *observe.Record
	notifyValue content.Value

	pendingReads  map[string]*pendingRead
	pendingWrites map[string]*pendingWrite

	msgID   uint16
	recvBuf []byte
}

type actionKind int

const (
	actionNone actionKind = iota
	actionBootstrap
	actionRegister
	actionUpdate
	actionDeregister
	actionSend
	actionNotify
)

// pendingRead is the in-progress state of a multi-block READ the server is
// fetching one Block2 chunk at a time (§4.4.4, §4.2.3).
type pendingRead struct {
	reader   *dispatch.Reader
	enc      content.Encoder
	size     coap.BlockSize
	blockNum uint32
}

// pendingWrite is the in-progress state of a multi-block Block1 WRITE
// (§4.4.5, §4.2.3): the Writer already bound to the target leaf, plus the
// Content-Format the first chunk declared (subsequent Block1 chunks carry
// no Content-Format option of their own).
type pendingWrite struct {
	writer *dispatch.Writer
	format coap.MediaType
}

// NewClient builds a Client from cfg. It performs no I/O; the first Step
// call drives either a Bootstrap request or a Register, per
// cfg.Session.BootstrapRequired (§4.5.1).
func NewClient(cfg Config) (*Client, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("lwm2m: Config.Registry is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("lwm2m: Config.Transport is required")
	}
	log := cfg.Log
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("lwm2m")
	}
	cfg.Session.Log = log

	budget := cfg.ReadBudget
	if budget <= 0 {
		budget = int(cfg.Transport.InnerMTU()) - 32
		if budget < 64 {
			budget = 64
		}
	}

	c := &Client{
		log:           log,
		endpoint:      cfg.Endpoint,
		ssid:          cfg.Session.Server.SSID,
		lifetimeS:     cfg.Session.Server.LifetimeS,
		session:       session.NewSession(cfg.Session),
		registry:      cfg.Registry,
		observations:  observe.NewRegistry(),
		composites:    observe.NewCompositeIndex(),
		attrs:         observe.NewAttrStore(),
		content:       cfg.Content,
		xport:         cfg.Transport,
		exParams:      cfg.ExchangeParams,
		backoff:       exchange.NewBackoffCalculator(nil),
		readBudget:    budget,
		pendingReads:  make(map[string]*pendingRead),
		pendingWrites: make(map[string]*pendingWrite),
		recvBuf:       make([]byte, 2048),
	}
	c.sender = &transportSender{xport: cfg.Transport}
	c.msgID = randomMessageIDSeed()
	return c, nil
}

// Status reports the session's top-level connection status.
func (c *Client) Status() session.ConnStatus { return c.session.Status() }

// Err returns the sticky failure reason once Status is StatusFailure.
func (c *Client) Err() error { return c.session.Err() }

// Registry exposes the data-model registry so the application can mutate
// instances (create/delete) outside of a server request, e.g. at startup.
func (c *Client) Registry() *dispatch.Registry { return c.registry }

// OngoingOperation reports whether a client- or server-initiated exchange
// is currently in flight (core_ongoing_operation, §6.5): the data model
// should be considered quiescent for persistence/shutdown purposes only
// when this is false.
func (c *Client) OngoingOperation() bool {
	if c.current != nil && c.current.State != exchange.StateFinished {
		return true
	}
	return len(c.pendingReads) > 0 || len(c.pendingWrites) > 0
}

// DataModelChanged tells the observation engine that path may have
// changed kind-wise (added/removed/value changed), and marks a
// registration Update as needed when an instance was added or removed
// (§4.6.4, core_data_model_changed).
func (c *Client) DataModelChanged(path coap.Path, added, removed bool) {
	if removed {
		c.observations.RemoveForPath(path)
	} else {
		c.observations.MarkChanged(path)
	}
	if added || removed {
		c.session.RequestUpdate()
	}
}

// RequestBootstrap forces the session into the bootstrap lifecycle
// (core_request_bootstrap, §6.5).
func (c *Client) RequestBootstrap(now time.Time) { c.session.RequestBootstrap(now) }

// RequestUpdate marks a registration Update as needed on the next Step
// (core_request_update, §6.5).
func (c *Client) RequestUpdate() { c.session.RequestUpdate() }

// Restart resets the session to Initial (core_restart, §6.5).
func (c *Client) Restart() {
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
	c.session.Restart()
}

// DisableServer handles the Server object's Disable execute (/1/x/4,
// §4.5.5).
func (c *Client) DisableServer(timeout time.Duration) { c.session.DisableServer(timeout) }

// Send enqueues a client-originated Send operation (§3.3, §5): a POST of
// payload to /dp, carried on a later Step once any due registration
// update/de-register and server-initiated response have been handled, and
// ahead of notifications. It returns a correlation id local to this
// process for tracking the enqueued report; the id never appears on the
// wire.
func (c *Client) Send(payload []byte, format coap.MediaType, confirmable bool) uuid.UUID {
	return c.session.SendQueue().Enqueue(payload, uint16(format), confirmable)
}

// Shutdown begins the shutdown sequence (core_shutdown, §4.5.6, §6.5): a
// de-register if currently registered. The caller keeps calling Step
// until Status stops being Registered/QueueMode and the transport can be
// torn down.
func (c *Client) Shutdown(now time.Time) {
	if action, ok := c.session.RequestShutdown(); ok {
		c.startAction(now, action)
	}
}

// NextStepTime returns the hint core_next_step_time() exposes: the
// earliest absolute time Step needs to run again to make progress (§6.5).
func (c *Client) NextStepTime(now time.Time) time.Time {
	best := c.session.NextStepTime(now)
	if c.current != nil {
		if deadline, ok := c.current.NextDeadline(); ok {
			t := time.UnixMilli(deadline)
			if t.Before(best) {
				best = t
			}
		}
	}
	return best
}

// Step advances the client by one tick: it drains whatever the transport
// has queued, advances the in-flight exchange (if any), starts the next
// session-driven action when idle, and evaluates due notifications
// (§5: registration update > de-register > server-initiated responses >
// Send > notifications > explicit user actions).
func (c *Client) Step(now time.Time) error {
	if err := c.drainInbound(now); err != nil {
		return err
	}

	if c.current != nil {
		if err := c.current.Tick(now.UnixMilli()); err != nil {
			c.finishCurrent(now, err)
		} else if c.current.State == exchange.StateFinished {
			c.finishCurrent(now, c.current.Err())
		}
		return nil
	}

	if action, ok := c.session.Tick(now); ok {
		c.startAction(now, action)
		return nil
	}

	if c.canSend() {
		if entry, ok := c.session.SendQueue().Peek(); ok {
			c.startSend(now, entry)
			return nil
		}
	}

	c.runNotifications(now)
	return nil
}

// canSend reports whether the session is in a state where a queued Send
// may go out: registered, or idle in Queue Mode (sending wakes it, like
// any other exchange, §4.5.4).
func (c *Client) canSend() bool {
	switch c.session.Status() {
	case session.StatusRegistered, session.StatusQueueMode:
		return true
	default:
		return false
	}
}

// startSend builds and begins sending entry as a Send operation (§3.3,
// §5), mirroring startNotify's direct exchange.Context construction since
// the Send queue, like observations, sits outside session.Action.
func (c *Client) startSend(now time.Time, entry session.SendEntry) {
	op := coap.OpSendNon
	typ := coap.TypeNON
	if entry.Confirmable {
		op = coap.OpSendCon
		typ = coap.TypeCON
	}
	msg := &coap.Message{
		Operation:     op,
		Code:          coap.CodePOST,
		Token:         c.newToken(),
		ContentFormat: coap.MediaType(entry.ContentFormat),
		Payload:       entry.Payload,
		UDP:           &coap.UDPBinding{MessageID: c.nextMessageID(), Type: typ},
	}
	ctx := exchange.NewContext(msg, exchange.RoleInitiator, c.sender, c.exParams, c.backoff)
	c.current = ctx
	c.currentKind = actionSend
	c.session.Touch(now)
	if err := ctx.Tick(now.UnixMilli()); err != nil {
		c.finishCurrent(now, err)
	}
}

// drainInbound reads every datagram currently queued by the transport,
// routing each to the in-flight exchange (if its token matches) or to the
// server-request dispatcher otherwise.
func (c *Client) drainInbound(now time.Time) error {
	for {
		n, err := c.xport.Recv(c.recvBuf)
		if err == transport.ErrWouldBlock {
			return nil
		}
		if err != nil {
			return err
		}
		msg, decErr := coap.DecodeUDP(c.recvBuf[:n])
		if decErr != nil {
			c.log.Warnf("lwm2m: dropping malformed datagram: %v", decErr)
			continue
		}
		c.onMessage(now, msg)
	}
}

func (c *Client) onMessage(now time.Time, msg *coap.Message) {
	if c.current != nil && tokensEqual(c.current.Token, msg.Token) {
		terminal := c.current.OnMessage(msg, now.UnixMilli())
		if terminal {
			c.finishCurrent(now, c.current.Err())
		}
		return
	}
	if isServerInitiatedRequest(msg.Operation) {
		if c.blocksNewServerRequest(msg.Token) {
			// A different block transfer (read or write) is already in
			// flight; only one server-initiated exchange runs at a time
			// (§4.2.5, §5). The original transfer is left untouched.
			c.sendErrorResponse(msg, coap.CodeServiceUnavailable)
			return
		}
		c.handleServerRequest(now, msg)
		return
	}
	// Unmatched response/ack: either a stale retransmission of a finished
	// exchange or a reset for a message we no longer track. Silently
	// dropped, matching §4.2.4's "cached ACK, no re-dispatch" intent for
	// the case the cache already expired.
}

// blocksNewServerRequest reports whether a server-initiated request
// carrying token must be rejected because a different block-wise transfer
// (Block2 read or Block1 write) is already in progress for some other
// token (§4.2.5: "Interruption by a new request"). A request continuing
// the same token's own transfer is never blocked.
func (c *Client) blocksNewServerRequest(token coap.Token) bool {
	key := string(token)
	if _, ok := c.pendingReads[key]; ok {
		return false
	}
	if _, ok := c.pendingWrites[key]; ok {
		return false
	}
	return len(c.pendingReads) > 0 || len(c.pendingWrites) > 0
}

func tokensEqual(a, b coap.Token) bool { return string(a) == string(b) }

func isServerInitiatedRequest(op coap.Operation) bool {
	switch op {
	case coap.OpRead, coap.OpReadComposite, coap.OpDiscover, coap.OpWriteReplace,
		coap.OpWritePartial, coap.OpWriteAttr, coap.OpWriteComposite, coap.OpExecute,
		coap.OpCreate, coap.OpDelete, coap.OpObserve, coap.OpObserveComposite,
		coap.OpCancelObserve, coap.OpCancelObserveComposite, coap.OpBootstrapFinish:
		return true
	default:
		return false
	}
}

// startAction builds and begins sending the message a session.Action
// calls for.
func (c *Client) startAction(now time.Time, action session.Action) {
	var msg *coap.Message
	var kind actionKind

	switch action.Kind {
	case session.ActionSendBootstrapRequest:
		msg = c.buildBootstrapRequest()
		kind = actionBootstrap
	case session.ActionSendRegister:
		msg = c.buildRegister()
		kind = actionRegister
	case session.ActionSendUpdate:
		msg = c.buildUpdate(action.LocationPath)
		kind = actionUpdate
	case session.ActionSendDeregister:
		msg = c.buildDeregister(action.LocationPath)
		kind = actionDeregister
	default:
		return
	}

	msg.UDP = &coap.UDPBinding{MessageID: c.nextMessageID(), Type: coap.TypeCON}
	ctx := exchange.NewContext(msg, exchange.RoleInitiator, c.sender, c.exParams, c.backoff)
	c.current = ctx
	c.currentKind = kind
	if err := ctx.Tick(now.UnixMilli()); err != nil {
		c.finishCurrent(now, err)
	}
}

func (c *Client) finishCurrent(now time.Time, err error) {
	kind := c.currentKind
	resp := c.current.Response()
	c.current = nil
	c.currentKind = actionNone

	success := err == nil && resp != nil && !resp.Code.IsError()

	switch kind {
	case actionBootstrap:
		c.session.OnBootstrapRequestSent(now)
	case actionRegister:
		c.session.OnRegisterResult(now, success, joinLocationPath(resp))
	case actionUpdate:
		c.session.OnUpdateResult(now, success)
	case actionDeregister:
		c.session.OnDeregisterResult(now, success)
	case actionSend:
		if success {
			c.session.SendQueue().Pop()
		}
	case actionNotify:
		if success && c.notifyRec != nil {
			c.notifyRec.MarkSent(now, c.notifyValue)
		}
		c.notifyRec = nil
		c.notifyValue = content.Value{}
	}
	if err != nil {
		c.log.Warnf("lwm2m: exchange %v failed: %v", kind, err)
	}
}

func joinLocationPath(resp *coap.Message) string {
	if resp == nil {
		return ""
	}
	return strings.Join(resp.LocationPath, "/")
}

// splitLocationPath turns the stored registration location back into the
// segments after the "rd" literal, which the coap encoder adds itself.
func splitLocationPath(p string) []string {
	if p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	if segs[0] == "rd" {
		segs = segs[1:]
	}
	return segs
}

func (c *Client) buildBootstrapRequest() *coap.Message {
	return &coap.Message{
		Operation: coap.OpBootstrapRequest,
		Code:      coap.CodePOST,
		Token:     c.newToken(),
		Bootstrap: &coap.BootstrapAttrs{Endpoint: c.endpoint, HasEndpoint: true},
	}
}

func (c *Client) buildRegister() *coap.Message {
	payload := []byte(c.linkFormatObjects())
	return &coap.Message{
		Operation:     coap.OpRegister,
		Code:          coap.CodePOST,
		Token:         c.newToken(),
		ContentFormat: coap.MediaTypeLinkFormat,
		Payload:       payload,
		Register: &coap.RegisterAttrs{
			Endpoint:     c.endpoint,
			HasEndpoint:  true,
			Lifetime:     int64(c.lifetimeS),
			HasLifetime:  true,
			LwM2MVersion: "1.1",
			HasVersion:   true,
		},
	}
}

// buildUpdate renders a plain Update carrying only the lifetime query
// parameter (§4.5.2: "Update with only binding/sms/lifetime changes
// carries no payload, only query parameters"). A payload-carrying Update
// in response to an instance add/remove is left to a future refinement
// (DataModelChanged only flags RequestUpdate today; see DESIGN.md).
func (c *Client) buildUpdate(locationPath string) *coap.Message {
	return &coap.Message{
		Operation:    coap.OpUpdate,
		Code:         coap.CodePOST,
		Token:        c.newToken(),
		LocationPath: splitLocationPath(locationPath),
		Register:     &coap.RegisterAttrs{Lifetime: int64(c.lifetimeS), HasLifetime: true},
	}
}

func (c *Client) buildDeregister(locationPath string) *coap.Message {
	return &coap.Message{
		Operation:    coap.OpDeregister,
		Code:         coap.CodeDELETE,
		Token:        c.newToken(),
		LocationPath: splitLocationPath(locationPath),
	}
}

// linkFormatObjects renders the installed-objects enumeration a
// Register/Update-with-payload carries (§4.5.2): "</oid>/<iid>,..." for
// every live instance of every registered object.
func (c *Client) linkFormatObjects() string {
	var links []string
	for _, oid := range c.registry.OIDs() {
		for _, iid := range c.registry.InstanceIDs(oid) {
			links = append(links, fmt.Sprintf("</%d/%d>", oid, iid))
		}
	}
	return strings.Join(links, ",")
}

func (c *Client) newToken() coap.Token {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return coap.Token(b[:])
}

func (c *Client) nextMessageID() uint16 {
	c.msgID++
	return c.msgID
}

// randomMessageIDSeed is used once by NewClient to avoid every fresh
// process starting its message-id sequence at the same value.
func randomMessageIDSeed() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

// transportSender adapts a transport.Context to exchange.Sender, folding
// ErrWouldBlock into the (false, nil) backpressure convention the
// exchange engine expects (§6.2, §4.2).
type transportSender struct {
	xport transport.Context
}

func (s *transportSender) Send(raw []byte) (bool, error) {
	_, err := s.xport.Send(raw)
	if err == transport.ErrWouldBlock {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
