package session

import "time"

// RequestBootstrap forces the session into the bootstrap lifecycle
// (core_request_bootstrap, §6.5), regardless of the current status.
func (s *Session) RequestBootstrap(now time.Time) {
	s.status = StatusBootstrapping
	s.bsState = BootstrapRequesting
	s.bootstrapDeadline = now.Add(s.bootstrapTimeout)
	s.retry.reset()
	s.hasNextRetryAt = false
}

// OnBootstrapRequestSent marks the bootstrap request as sent and enters
// the relaxed dispatch window (§4.5.3): the Bootstrap-Server may issue any
// mix of writes/deletes/discovers against Security/Server objects until
// Bootstrap-Finish.
func (s *Session) OnBootstrapRequestSent(now time.Time) {
	s.bsState = BootstrapActive
	s.bootstrapDeadline = now.Add(s.bootstrapTimeout)
}

// OnBootstrapFinish handles the server's Bootstrap-Finish (POST /bs). The
// caller supplies whether its own validation found at least one
// non-bootstrap Security+Server pair (§4.5.3); a failed validation ends
// the sequence in Failure just as a malformed or missing Finish would.
func (s *Session) OnBootstrapFinish(valid bool) {
	s.bsState = BootstrapFinishing
	if !valid {
		s.status = StatusFailure
		s.lastErr = ErrBootstrapFailed
		return
	}
	s.status = StatusBootstrapped
	s.bsState = BootstrapIdle
}

// checkBootstrapTimeout fails the bootstrap sequence once its inactivity
// timeout elapses without a Bootstrap-Finish (§4.5.3).
func (s *Session) checkBootstrapTimeout(now time.Time) bool {
	if s.status != StatusBootstrapping {
		return false
	}
	if now.Before(s.bootstrapDeadline) {
		return false
	}
	s.status = StatusFailure
	s.lastErr = ErrBootstrapFailed
	return true
}
