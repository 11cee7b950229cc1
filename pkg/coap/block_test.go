package coap

import "testing"

func TestBlockValueRoundtrip(t *testing.T) {
	b := Block{Number: 5, Size: 64, More: true}
	v, err := encodeBlockValue(b)
	if err != nil {
		t.Fatal(err)
	}
	got := decodeBlockValue(v)
	if got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestWhich(t *testing.T) {
	b1 := &Block{Size: 64}
	b2 := &Block{Size: 64}

	if Which(nil, nil) != BlockNone {
		t.Fatal("expected BlockNone")
	}
	if Which(b1, nil) != BlockB1 {
		t.Fatal("expected BlockB1")
	}
	if Which(nil, b2) != BlockB2 {
		t.Fatal("expected BlockB2")
	}
	if Which(b1, b2) != BlockBoth {
		t.Fatal("expected BlockBoth")
	}
}

func TestEncodeBlockValueInvalidSize(t *testing.T) {
	if _, err := encodeBlockValue(Block{Size: 100}); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
