package exchange

import "testing"

func TestParamsApplyDefaults(t *testing.T) {
	got := Params{}.applyDefaults()
	if got != DefaultParams {
		t.Fatalf("got %+v, want %+v", got, DefaultParams)
	}

	custom := Params{MaxRetransmit: 9}.applyDefaults()
	if custom.MaxRetransmit != 9 || custom.AckTimeout != DefaultParams.AckTimeout {
		t.Fatalf("got %+v", custom)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := (Params{AckTimeout: 0, AckRandomFactor: 1.5, MaxRetransmit: 4}).Validate(); err != ErrInvalidParams {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
	if err := (Params{AckTimeout: 1, AckRandomFactor: 0.5, MaxRetransmit: 4}).Validate(); err != ErrInvalidParams {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}
