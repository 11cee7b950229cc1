package coap

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeOptionsRoundtrip(t *testing.T) {
	opts := []rawOption{
		{Number: OptURIPath, Value: []byte("3")},
		{Number: OptURIPath, Value: []byte("0")},
		{Number: OptURIPath, Value: []byte("1")},
		{Number: OptContentFormat, Value: encodeUint(11542)},
		{Number: OptObserve, Value: encodeUint(1)},
	}

	var buf bytes.Buffer
	if err := encodeOptions(&buf, opts); err != nil {
		t.Fatal(err)
	}

	got, consumed, err := decodeOptions(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed %d, want %d", consumed, buf.Len())
	}
	if len(got) != len(opts) {
		t.Fatalf("got %d options, want %d", len(got), len(opts))
	}
}

func TestDecodeOptionsStopsAtPayloadMarker(t *testing.T) {
	var buf bytes.Buffer
	_ = encodeOptions(&buf, []rawOption{{Number: OptURIPath, Value: []byte("rd")}})
	buf.WriteByte(0xFF)
	buf.WriteString("payload")

	opts, consumed, err := decodeOptions(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 {
		t.Fatalf("got %d options", len(opts))
	}
	if buf.Bytes()[consumed] != 0xFF {
		t.Fatalf("consumed should stop right before the payload marker")
	}
}

func TestDecodeOptionsUnknownCriticalRejected(t *testing.T) {
	var buf bytes.Buffer
	// option number 9 is unassigned and odd (critical).
	if err := encodeOptionHeader(&buf, 9, 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := decodeOptions(buf.Bytes()); err != ErrOptionUnsupported {
		t.Fatalf("err = %v, want ErrOptionUnsupported", err)
	}
}

func TestDecodeOptionsUnknownElectiveSkipped(t *testing.T) {
	var buf bytes.Buffer
	// option number 2 is unassigned and even (elective): must be skipped, not
	// rejected, and must not desync the delta chain for what follows.
	if err := encodeOptionHeader(&buf, 2, 1); err != nil {
		t.Fatal(err)
	}
	buf.WriteByte('x')
	if err := encodeOptionHeader(&buf, int(OptURIPath-2), 1); err != nil {
		t.Fatal(err)
	}
	buf.WriteByte('3')

	opts, _, err := decodeOptions(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 || opts[0].Number != OptURIPath {
		t.Fatalf("got %+v", opts)
	}
}

func TestEncodeUintMinimalBytes(t *testing.T) {
	cases := []struct {
		v    uint32
		want int
	}{
		{0, 0}, {1, 1}, {255, 1}, {256, 2}, {1 << 16, 3}, {1 << 24, 4},
	}
	for _, c := range cases {
		if got := len(encodeUint(c.v)); got != c.want {
			t.Errorf("encodeUint(%d) len = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestExtendedOptionLength(t *testing.T) {
	// Force both delta and length into the two-byte extended range.
	value := make([]byte, 300)
	var buf bytes.Buffer
	if err := encodeOptionHeader(&buf, 300, len(value)); err != nil {
		t.Fatal(err)
	}
	buf.Write(value)

	opts, consumed, err := decodeOptions(append(buf.Bytes(), 0xFF))
	if err != nil {
		t.Fatal(err)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, buf.Len())
	}
	if len(opts) != 0 {
		// option number 300 is unassigned and even: elective, skipped.
		t.Fatalf("expected option to be skipped, got %+v", opts)
	}
}
