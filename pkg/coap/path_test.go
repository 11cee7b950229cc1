package coap

import "testing"

func TestNewPathRejectsSentinel(t *testing.T) {
	if _, err := NewPath(3, IDSentinel); err == nil {
		t.Fatal("expected error for sentinel id")
	}
}

func TestNewPathRejectsTooDeep(t *testing.T) {
	if _, err := NewPath(1, 2, 3, 4, 5); err == nil {
		t.Fatal("expected error for depth > 4")
	}
}

func TestPathAccessors(t *testing.T) {
	p, err := NewPath(3, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if oid, ok := p.OID(); !ok || oid != 3 {
		t.Fatalf("OID() = %d, %v", oid, ok)
	}
	if iid, ok := p.IID(); !ok || iid != 0 {
		t.Fatalf("IID() = %d, %v", iid, ok)
	}
	if rid, ok := p.RID(); !ok || rid != 1 {
		t.Fatalf("RID() = %d, %v", rid, ok)
	}
	if _, ok := p.RIID(); ok {
		t.Fatal("RIID() should be absent at depth 3")
	}
	if p.String() != "/3/0/1" {
		t.Fatalf("String() = %q", p.String())
	}
}

func TestPathHasPrefix(t *testing.T) {
	obj, _ := NewPath(3)
	inst, _ := NewPath(3, 0)
	res, _ := NewPath(3, 0, 1)
	other, _ := NewPath(4, 0)

	if !res.HasPrefix(obj) || !res.HasPrefix(inst) || !res.HasPrefix(res) {
		t.Fatal("expected prefix match")
	}
	if res.HasPrefix(other) {
		t.Fatal("unexpected prefix match across objects")
	}
}

func TestPathLess(t *testing.T) {
	a, _ := NewPath(3, 0)
	b, _ := NewPath(3, 1)
	c, _ := NewPath(3)

	if !a.Less(b) {
		t.Fatal("expected /3/0 < /3/1")
	}
	if !c.Less(a) {
		t.Fatal("expected /3 < /3/0 (shallower sorts first)")
	}
}

func TestTokenValid(t *testing.T) {
	if !(Token{1, 2, 3}).Valid() {
		t.Fatal("3-byte token should be valid")
	}
	if (Token(make([]byte, 9))).Valid() {
		t.Fatal("9-byte token should be invalid")
	}
}
