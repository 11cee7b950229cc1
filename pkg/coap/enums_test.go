package coap

import "testing"

func TestCodeClassDetail(t *testing.T) {
	if CodeContent.Class() != 2 || CodeContent.Detail() != 5 {
		t.Fatalf("Content = %d.%02d", CodeContent.Class(), CodeContent.Detail())
	}
	if CodeContent.String() != "2.05" {
		t.Fatalf("String() = %q", CodeContent.String())
	}
	if !CodeNotFound.IsError() {
		t.Fatal("4.04 should be an error code")
	}
	if CodeContent.IsError() {
		t.Fatal("2.05 should not be an error code")
	}
}

func TestBlockSizeSZX(t *testing.T) {
	for szx := uint8(0); szx <= 6; szx++ {
		size := BlockSizeFromSZX(szx)
		got, ok := size.SZX()
		if !ok || got != szx {
			t.Fatalf("SZX round trip for size %d: got %d, %v", size, got, ok)
		}
	}
	if _, ok := BlockSize(7).SZX(); ok {
		t.Fatal("size 7 should be invalid")
	}
}
