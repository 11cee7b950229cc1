package exchange

import (
	"math"
	"math/rand"
	"time"
)

// RandomSource provides random values for jitter calculation. Allows
// injection of a deterministic source for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 { return rand.Float64() }

// DefaultRandomSource is the default random source, backed by math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// BackoffCalculator computes CoAP retransmission timeouts (RFC 7252
// Section 4.8.1):
//
//	timeout(0) = ack_timeout * rnd(1, ack_random_factor)
//	timeout(n) = timeout(0) * 2^n
//
// where rnd(1, f) is drawn uniformly from [1, f).
type BackoffCalculator struct {
	random RandomSource
}

// NewBackoffCalculator creates a calculator using the given random source.
// A nil source uses DefaultRandomSource.
func NewBackoffCalculator(random RandomSource) *BackoffCalculator {
	if random == nil {
		random = DefaultRandomSource
	}
	return &BackoffCalculator{random: random}
}

// InitialTimeout draws the randomized timeout for the first transmission
// attempt (n=0).
func (b *BackoffCalculator) InitialTimeout(p Params) time.Duration {
	span := p.AckRandomFactor - 1.0
	factor := 1.0 + b.random.Float64()*span
	return time.Duration(float64(p.AckTimeout) * factor)
}

// NextTimeout doubles the previous attempt's timeout, per the exponential
// backoff schedule (attempt is the retransmission number that just timed
// out, starting at 0 for the initial send).
func (b *BackoffCalculator) NextTimeout(initial time.Duration, attempt int) time.Duration {
	return time.Duration(float64(initial) * math.Pow(2, float64(attempt+1)))
}
