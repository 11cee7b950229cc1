package dispatch

import (
	"strings"
	"testing"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

type fakeAttrStore struct {
	attrs map[string]coap.NotificationAttrs
}

func (f *fakeAttrStore) SetAttrs(ssid uint16, path coap.Path, a coap.NotificationAttrs) {
	if f.attrs == nil {
		f.attrs = make(map[string]coap.NotificationAttrs)
	}
	f.attrs[path.String()] = a
}

func (f *fakeAttrStore) Attrs(ssid uint16, path coap.Path) (coap.NotificationAttrs, bool) {
	a, ok := f.attrs[path.String()]
	return a, ok
}

func TestDiscover_ListsInstanceAndResources(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(deviceObject()); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, _ := coap.NewPath(3)
	target, err := r.Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	doc := r.Discover(target, 1, 3, nil)
	for _, want := range []string{"</3/0>", "</3/0/0>", "</3/0/1>", "</3/0/4>"} {
		if !strings.Contains(doc, want) {
			t.Errorf("discover document %q missing %q", doc, want)
		}
	}
}

func TestDiscover_IncludesWriteAttributes(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(deviceObject()); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := &fakeAttrStore{}
	path, _ := coap.NewPath(3, 0, 0)
	store.SetAttrs(1, path, coap.NotificationAttrs{Pmin: coap.AttrValue{Present: true, Value: 10}})

	p, _ := coap.NewPath(3, 0)
	target, err := r.Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	doc := r.Discover(target, 1, 3, store)
	if !strings.Contains(doc, "pmin=10") {
		t.Errorf("discover document %q missing pmin attribute", doc)
	}
}
