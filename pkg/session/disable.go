package session

import "time"

// DisableServer handles execution of the Server object's Disable resource
// (/1/x/4, §4.5.5): schedules a de-register followed by Suspended for the
// given window. A non-positive timeout defaults to DefaultDisableTimeout
// (ANJ_DISABLE_TIMEOUT_DEFAULT_VALUE, Supplement D.3).
func (s *Session) DisableServer(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultDisableTimeout
	}
	s.disableTimeout = timeout
	s.pendingDisable = true
}

// resumeFromSuspend exits Suspended once the window has elapsed (§4.5.1:
// "exit is automatic after the configured window expires"), re-arming the
// registration retry schedule from scratch.
func (s *Session) resumeFromSuspend(now time.Time) bool {
	if s.status != StatusSuspended {
		return false
	}
	if now.Before(s.suspendUntil) {
		return false
	}
	s.status = StatusRegistering
	s.retry.reset()
	s.hasNextRetryAt = false
	return true
}
