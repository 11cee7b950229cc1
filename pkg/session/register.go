package session

import "time"

// beginRegister transitions into Registering and arms the first attempt,
// issued by the owner as an Action from Tick (§4.5.2).
func (s *Session) beginRegister(now time.Time) {
	s.status = StatusRegistering
	s.regState = RegSending
	s.retry.reset()
	s.hasNextRetryAt = false
}

// OnRegisterResult handles the outcome of a Register exchange.
// locationPath is the server-assigned Location-Path from "2.01 Created",
// used for subsequent Update/De-register requests (§4.5.2).
func (s *Session) OnRegisterResult(now time.Time, success bool, locationPath string) {
	if success {
		s.locationPath = locationPath
		s.regState = RegDone
		s.status = StatusRegistered
		s.armUpdateDeadline(now)
		s.retry.reset()
		s.hasNextRetryAt = false
		return
	}
	s.onRegisterFailure(now)
}

// onRegisterFailure applies the communication-retry schedule (§4.5.2) to
// a failed Register or Update attempt, falling through to bootstrap (if
// bootstrap_on_registration_failure) or Failure once exhausted.
func (s *Session) onRegisterFailure(now time.Time) {
	delay, ok := s.retry.nextDelay()
	if !ok {
		if s.server.BootstrapOnRegistrationFailure {
			s.RequestBootstrap(now)
			return
		}
		s.status = StatusFailure
		s.lastErr = ErrRetryExhausted
		s.regState = RegIdle
		return
	}
	s.nextRetryAt = now.Add(delay)
	s.hasNextRetryAt = true
}

// armUpdateDeadline schedules the next Update at lifetime - margin
// (§4.5.2). A margin that would leave no lead time falls back to one
// tenth of the lifetime.
func (s *Session) armUpdateDeadline(now time.Time) {
	margin := s.updateMargin
	lifetime := time.Duration(s.server.LifetimeS) * time.Second
	if margin <= 0 || margin >= lifetime {
		margin = lifetime / 10
	}
	s.updateDeadline = now.Add(lifetime - margin)
}

// RequestUpdate marks an Update as needed on the next Tick — either
// because the application mutated the data model (instances added or
// removed) or because the owner explicitly called core_request_update
// (§4.5.2, §6.5).
func (s *Session) RequestUpdate() {
	switch s.status {
	case StatusRegistered, StatusQueueMode, StatusEnteringQueueMode:
		s.updateNeeded = true
	}
}

// OnUpdateResult handles the outcome of an Update exchange.
func (s *Session) OnUpdateResult(now time.Time, success bool) {
	if success {
		s.updateNeeded = false
		s.regState = RegDone
		s.status = StatusRegistered
		s.armUpdateDeadline(now)
		s.retry.reset()
		s.hasNextRetryAt = false
		return
	}
	s.onRegisterFailure(now)
}

// beginDeregister transitions into the de-register sub-state (§4.5.2),
// used both for an explicit de-register and as the first step of
// server-triggered disable (§4.5.5) and shutdown (§4.5.6).
func (s *Session) beginDeregister() {
	s.regState = RegDeregistering
}

// OnDeregisterResult handles the outcome of a De-register exchange. A
// de-register that was triggered by DisableServer lands in Suspended for
// disableTimeout instead of Initial.
func (s *Session) OnDeregisterResult(now time.Time, success bool) {
	s.regState = RegIdle
	s.locationPath = ""
	if s.pendingDisable {
		s.pendingDisable = false
		s.status = StatusSuspended
		s.suspendUntil = now.Add(s.disableTimeout)
		return
	}
	s.status = StatusInitial
}
