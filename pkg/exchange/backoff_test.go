package exchange

import (
	"testing"
	"time"
)

func TestBackoffInitialTimeoutBounds(t *testing.T) {
	params := Params{AckTimeout: 2 * time.Second, AckRandomFactor: 1.5, MaxRetransmit: 4}

	min := NewBackoffCalculator(fixedRandom(0)).InitialTimeout(params)
	if min != params.AckTimeout {
		t.Fatalf("min timeout = %v, want %v", min, params.AckTimeout)
	}

	max := NewBackoffCalculator(fixedRandom(0.999999)).InitialTimeout(params)
	upper := time.Duration(float64(params.AckTimeout) * params.AckRandomFactor)
	if max >= upper || max < min {
		t.Fatalf("max timeout = %v, want in [%v, %v)", max, min, upper)
	}
}

func TestBackoffNextTimeoutDoubles(t *testing.T) {
	calc := NewBackoffCalculator(fixedRandom(0))
	initial := 2 * time.Second

	if got := calc.NextTimeout(initial, 0); got != 4*time.Second {
		t.Fatalf("attempt 0: got %v, want 4s", got)
	}
	if got := calc.NextTimeout(initial, 1); got != 8*time.Second {
		t.Fatalf("attempt 1: got %v, want 8s", got)
	}
}
