package observe

import (
	"testing"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

func TestCompositeIndex_AddGetRemove(t *testing.T) {
	idx := NewCompositeIndex()
	token := coap.Token{7, 7}
	paths := []coap.Path{
		newPath(t, 3303, 0, 5700),
		newPath(t, 3304, 0, 5702),
	}
	idx.Add(&Composite{SSID: 1, Token: token, Paths: paths})

	got, ok := idx.Get(1, token)
	if !ok || len(got.Paths) != 2 {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	idx.Remove(1, token)
	if _, ok := idx.Get(1, token); ok {
		t.Fatal("expected composite to be gone after Remove")
	}
}

func TestCompositeIndex_AnyPending(t *testing.T) {
	reg := NewRegistry()
	idx := NewCompositeIndex()
	token := coap.Token{3}
	p1 := newPath(t, 3303, 0, 5700)
	p2 := newPath(t, 3304, 0, 5702)

	reg.Add(&Record{SSID: 1, Token: token, Path: p1})
	reg.Add(&Record{SSID: 1, Token: token, Path: p2})
	idx.Add(&Composite{SSID: 1, Token: token, Paths: []coap.Path{p1, p2}})

	if idx.AnyPending(reg, 1, token) {
		t.Fatal("nothing pending yet")
	}

	reg.MarkChanged(p2)
	if !idx.AnyPending(reg, 1, token) {
		t.Fatal("expected AnyPending to see p2's pending flag")
	}
}

func TestCompositeIndex_AnyPending_UnknownToken(t *testing.T) {
	reg := NewRegistry()
	idx := NewCompositeIndex()
	if idx.AnyPending(reg, 1, coap.Token{9}) {
		t.Fatal("unknown composite token should report no pending")
	}
}

func TestRegistry_CancelDropsAllCompositeMembers(t *testing.T) {
	reg := NewRegistry()
	token := coap.Token{5}
	p1 := newPath(t, 3303, 0, 5700)
	p2 := newPath(t, 3304, 0, 5702)

	reg.Add(&Record{SSID: 2, Token: token, Path: p1})
	reg.Add(&Record{SSID: 2, Token: token, Path: p2})

	reg.Cancel(2, token)

	if _, ok := reg.Get(2, token, p1); ok {
		t.Fatal("p1 should have been canceled")
	}
	if _, ok := reg.Get(2, token, p2); ok {
		t.Fatal("p2 should have been canceled")
	}
}

func TestRegistry_SameTokenDifferentPathsAreIndependent(t *testing.T) {
	reg := NewRegistry()
	token := coap.Token{1}
	p1 := newPath(t, 3303, 0, 5700)
	p2 := newPath(t, 3304, 0, 5702)

	if err := reg.Add(&Record{SSID: 1, Token: token, Path: p1}); err != nil {
		t.Fatalf("add p1: %v", err)
	}
	if err := reg.Add(&Record{SSID: 1, Token: token, Path: p2}); err != nil {
		t.Fatalf("add p2 under the same token: %v", err)
	}

	if _, ok := reg.Get(1, token, p1); !ok {
		t.Fatal("p1 missing")
	}
	if _, ok := reg.Get(1, token, p2); !ok {
		t.Fatal("p2 missing")
	}
}
