package session

import (
	"time"

	"github.com/pion/logging"
)

// Config configures a new Session (§3.6).
type Config struct {
	Server            ServerInstance
	Security          SecurityInstance
	BootstrapRequired bool
	QueueMode         QueueModeConfig

	// UpdateMargin is how much before lifetime expiry the Update is sent.
	// Zero (or out of range) falls back to one tenth of the lifetime.
	UpdateMargin time.Duration

	// BootstrapTimeout overrides DefaultBootstrapInactivityTimeout.
	BootstrapTimeout time.Duration

	Log logging.LeveledLogger
}

// Session is the top-level client session state machine (§3.6, §4.5): it
// owns conn_status and the registration/bootstrap sub-machines, and tells
// its owner (the Client) what to send next via Tick. It performs no I/O
// of its own and makes no blocking calls, matching the single-threaded
// cooperative model of §5.
type Session struct {
	log logging.LeveledLogger

	status  ConnStatus
	lastErr error

	server            ServerInstance
	security          SecurityInstance
	bootstrapRequired bool

	regState RegState
	bsState  BootstrapState

	retry          *retrySchedule
	nextRetryAt    time.Time
	hasNextRetryAt bool

	locationPath   string
	updateMargin   time.Duration
	updateDeadline time.Time
	updateNeeded   bool

	bootstrapTimeout  time.Duration
	bootstrapDeadline time.Time

	suspendUntil   time.Time
	pendingDisable bool
	disableTimeout time.Duration

	queue     *queueModeTracker
	sendQueue *SendQueue
}

// NewSession creates a session configured for cfg.Server/cfg.Security. The
// first Tick drives either an initial Bootstrap request or Register,
// depending on cfg.BootstrapRequired (§4.5.1).
func NewSession(cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = logging.NewDefaultLoggerFactory().NewLogger("session")
	}
	bt := cfg.BootstrapTimeout
	if bt <= 0 {
		bt = DefaultBootstrapInactivityTimeout
	}
	return &Session{
		log:               cfg.Log,
		status:            StatusInitial,
		server:            cfg.Server,
		security:          cfg.Security,
		bootstrapRequired: cfg.BootstrapRequired,
		retry:             newRetrySchedule(cfg.Server.Retry),
		updateMargin:      cfg.UpdateMargin,
		bootstrapTimeout:  bt,
		queue:             newQueueModeTracker(cfg.QueueMode),
		sendQueue:         NewSendQueue(),
	}
}

// Status returns the current top-level connection status.
func (s *Session) Status() ConnStatus { return s.status }

// RegState exposes the registration sub-machine for introspection/tests.
func (s *Session) RegState() RegState { return s.regState }

// BootstrapState exposes the bootstrap sub-machine for introspection/tests.
func (s *Session) BootstrapState() BootstrapState { return s.bsState }

// Err returns the sticky failure reason once Status is StatusFailure.
func (s *Session) Err() error { return s.lastErr }

// LocationPath returns the server-assigned registration path, valid once
// Registered.
func (s *Session) LocationPath() string { return s.locationPath }

// SendQueue exposes the FIFO queue of pending client-originated Send
// requests (§5).
func (s *Session) SendQueue() *SendQueue { return s.sendQueue }

// ActionKind enumerates the next protocol action Tick asks the owner to
// perform.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSendBootstrapRequest
	ActionSendRegister
	ActionSendUpdate
	ActionSendDeregister
)

func (k ActionKind) String() string {
	switch k {
	case ActionSendBootstrapRequest:
		return "send-bootstrap-request"
	case ActionSendRegister:
		return "send-register"
	case ActionSendUpdate:
		return "send-update"
	case ActionSendDeregister:
		return "send-deregister"
	default:
		return "none"
	}
}

// Action describes the next request the owner should build and hand to
// pkg/exchange. The owner fills in the wire payload (link-format
// enumeration, query string) from the dispatcher and the server/security
// instance; Session only decides when and which kind of request is due.
type Action struct {
	Kind ActionKind

	// LocationPath is set for ActionSendUpdate/ActionSendDeregister: the
	// path returned by the original Register's Location-Path.
	LocationPath string
}

// Tick advances the session by one step and reports the next action the
// owner should perform. Priority follows §5: registration update comes
// before a fresh register/bootstrap attempt, and a pending disable
// pre-empts both.
func (s *Session) Tick(now time.Time) (Action, bool) {
	if s.checkBootstrapTimeout(now) {
		return Action{}, false
	}
	s.resumeFromSuspend(now)

	switch s.status {
	case StatusInitial:
		if s.bootstrapRequired {
			s.RequestBootstrap(now)
			return Action{Kind: ActionSendBootstrapRequest}, true
		}
		s.beginRegister(now)
		return Action{Kind: ActionSendRegister}, true

	case StatusBootstrapping:
		if s.bsState == BootstrapRequesting {
			return Action{Kind: ActionSendBootstrapRequest}, true
		}
		return Action{}, false

	case StatusBootstrapped:
		s.beginRegister(now)
		return Action{Kind: ActionSendRegister}, true

	case StatusRegistering:
		if s.hasNextRetryAt {
			if now.Before(s.nextRetryAt) {
				return Action{}, false
			}
			s.hasNextRetryAt = false
		}
		return Action{Kind: ActionSendRegister}, true

	case StatusRegistered, StatusQueueMode, StatusEnteringQueueMode:
		if s.pendingDisable {
			s.beginDeregister()
			return Action{Kind: ActionSendDeregister, LocationPath: s.locationPath}, true
		}
		if s.hasNextRetryAt {
			if now.Before(s.nextRetryAt) {
				return Action{}, false
			}
			s.hasNextRetryAt = false
			s.regState = RegUpdating
			return Action{Kind: ActionSendUpdate, LocationPath: s.locationPath}, true
		}
		if s.updateNeeded || !now.Before(s.updateDeadline) {
			s.regState = RegUpdating
			return Action{Kind: ActionSendUpdate, LocationPath: s.locationPath}, true
		}
		if s.status == StatusRegistered && s.queue.due(now) {
			s.status = StatusEnteringQueueMode
		}
		if s.status == StatusEnteringQueueMode {
			s.status = StatusQueueMode
		}
		return Action{}, false

	default:
		return Action{}, false
	}
}

// NextStepTime returns the hint core_next_step_time() exposes: the
// earliest absolute time Tick needs to run again to make progress.
func (s *Session) NextStepTime(now time.Time) time.Time {
	best := now.Add(24 * time.Hour)
	consider := func(t time.Time, ok bool) {
		if ok && t.Before(best) {
			best = t
		}
	}
	consider(s.bootstrapDeadline, s.status == StatusBootstrapping)
	consider(s.nextRetryAt, s.hasNextRetryAt)
	consider(s.updateDeadline, s.status == StatusRegistered)
	consider(s.suspendUntil, s.status == StatusSuspended)
	consider(s.queue.wakeDeadline())
	return best
}

// Restart resets the session to Initial (core_restart, §6.5); Failure is
// sticky until this is called.
func (s *Session) Restart() {
	s.status = StatusInitial
	s.lastErr = nil
	s.regState = RegIdle
	s.bsState = BootstrapIdle
	s.retry.reset()
	s.hasNextRetryAt = false
	s.locationPath = ""
	s.updateNeeded = false
	s.pendingDisable = false
}

// RequestShutdown begins the shutdown sequence (§4.5.6): de-register if
// currently registered, otherwise report nothing to do. The caller polls
// core_shutdown() until the resulting exchange completes.
func (s *Session) RequestShutdown() (Action, bool) {
	switch s.status {
	case StatusRegistered, StatusQueueMode, StatusEnteringQueueMode:
		s.beginDeregister()
		return Action{Kind: ActionSendDeregister, LocationPath: s.locationPath}, true
	}
	return Action{}, false
}

// Touch records exchange activity, resetting the Queue Mode idle timer and
// waking the session out of QueueMode (§4.5.4).
func (s *Session) Touch(now time.Time) {
	s.queue.touch(now)
	if s.status == StatusQueueMode || s.status == StatusEnteringQueueMode {
		s.status = StatusRegistered
	}
}
