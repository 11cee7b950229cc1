package session

import "time"

// RetryParams is the communication-retry schedule (§4.5.2, Supplement
// D.2): up to RetryCount back-to-back attempts with exponential backoff
// RetryTimer·2^(attempt-1), then SeqDelayTimer before a further sequence,
// up to SeqRetryCount sequences.
type RetryParams struct {
	RetryCount    int
	RetryTimer    time.Duration
	SeqDelayTimer time.Duration
	SeqRetryCount int
}

// DefaultRetryParams matches ANJ_COMMUNICATION_RETRY_RES_DEFAULT
// (Supplement D.2): retry_count=5, retry_timer=60s, seq_delay_timer=86400s
// (24h), seq_retry_count=1.
var DefaultRetryParams = RetryParams{
	RetryCount:    5,
	RetryTimer:    60 * time.Second,
	SeqDelayTimer: 86400 * time.Second,
	SeqRetryCount: 1,
}

// applyDefaults returns DefaultRetryParams for a zero RetryParams, and
// otherwise fills each non-positive count or timer from it; an explicit
// SeqRetryCount of 0 is kept and means no further sequence.
func (p RetryParams) applyDefaults() RetryParams {
	if p == (RetryParams{}) {
		return DefaultRetryParams
	}
	if p.RetryCount <= 0 {
		p.RetryCount = DefaultRetryParams.RetryCount
	}
	if p.RetryTimer <= 0 {
		p.RetryTimer = DefaultRetryParams.RetryTimer
	}
	if p.SeqDelayTimer <= 0 {
		p.SeqDelayTimer = DefaultRetryParams.SeqDelayTimer
	}
	if p.SeqRetryCount < 0 {
		p.SeqRetryCount = DefaultRetryParams.SeqRetryCount
	}
	return p
}

// DefaultDisableTimeout is ANJ_DISABLE_TIMEOUT_DEFAULT_VALUE (Supplement
// D.3), used by DisableServer when the Execute argument omits a timeout.
const DefaultDisableTimeout = 86400 * time.Second

// DefaultBootstrapInactivityTimeout is CoAP EXCHANGE_LIFETIME (§4.5.3,
// Supplement D.4), the window a bootstrap sequence may run without a
// Bootstrap-Finish before it is declared failed.
const DefaultBootstrapInactivityTimeout = 247 * time.Second

// ServerInstance is one LwM2M Server Object instance (§3.6).
type ServerInstance struct {
	SSID                           uint16
	IID                            uint16
	LifetimeS                      uint32
	Retry                          RetryParams
	BootstrapOnRegistrationFailure bool
	MuteSend                       bool
	Binding                        string
}

// SecurityInstance is the paired Security Object instance (§3.6).
type SecurityInstance struct {
	IID     uint16
	URI     string
	Port    int
	Binding string
}

// QueueModeConfig controls automatic Queue Mode entry (§4.5.4).
type QueueModeConfig struct {
	Enabled bool
	// Timeout is how long the session waits without exchange activity
	// before closing its transport and entering QueueMode.
	Timeout time.Duration
}
