package session

import "time"

// newTestSession builds a Session with a short update margin and a fast
// retry schedule, so tests can drive full lifecycles over synthetic
// clock advances without waiting on real defaults (§8 test tooling,
// following pkg/exchange/testpair.go's convention of a small
// test-focused constructor per package).
func newTestSession(bootstrapRequired bool) *Session {
	return NewSession(Config{
		Server: ServerInstance{
			SSID:      1,
			IID:       0,
			LifetimeS: 100,
			Retry: RetryParams{
				RetryCount:    3,
				RetryTimer:    1 * time.Second,
				SeqDelayTimer: 5 * time.Second,
				SeqRetryCount: 1,
			},
		},
		BootstrapRequired: bootstrapRequired,
		UpdateMargin:      10 * time.Second,
		BootstrapTimeout:  30 * time.Second,
	})
}
