package coap

import "testing"

func TestParseNotificationAttrsPresentClearedAbsent(t *testing.T) {
	a, err := ParseNotificationAttrs([]string{"pmin=10", "pmax", "gt=21.5"})
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := a.Pmin.Get(); !ok || v != 10 {
		t.Fatalf("pmin = %v, %v", v, ok)
	}
	if !a.Pmax.Present || !a.Pmax.Clear {
		t.Fatalf("pmax should be present-but-cleared: %+v", a.Pmax)
	}
	if v, ok := a.Gt.Get(); !ok || v != 21.5 {
		t.Fatalf("gt = %v, %v", v, ok)
	}
	if a.Lt.Present {
		t.Fatal("lt should be absent")
	}
}

func TestParseNotificationAttrsMalformedValue(t *testing.T) {
	if _, err := ParseNotificationAttrs([]string{"pmin=notanumber"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeNotificationQueryRoundtrip(t *testing.T) {
	in := NotificationAttrs{
		Pmin: AttrValue{Present: true, Value: 5},
		Pmax: AttrValue{Present: true, Clear: true},
	}
	q := EncodeNotificationQuery(in)
	out, err := ParseNotificationAttrs(q)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := out.Pmin.Get(); !ok || v != 5 {
		t.Fatalf("pmin roundtrip = %v, %v", v, ok)
	}
	if !out.Pmax.Clear {
		t.Fatal("pmax clear marker lost in roundtrip")
	}
}

func TestParseRegisterAttrs(t *testing.T) {
	a, err := ParseRegisterAttrs([]string{"ep=node1", "lt=300", "lwm2m=1.1", "b=U", "Q"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Endpoint != "node1" || a.Lifetime != 300 || a.LwM2MVersion != "1.1" || a.Binding != "U" || !a.Queue {
		t.Fatalf("got %+v", a)
	}
}

func TestParseRegisterAttrsStringTooLong(t *testing.T) {
	long := make([]byte, MaxAttrStringLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := ParseRegisterAttrs([]string{"ep=" + string(long)}); err != ErrAttrBufTooSmall {
		t.Fatalf("err = %v, want ErrAttrBufTooSmall", err)
	}
}

func TestParseDiscoverAttrs(t *testing.T) {
	a, err := ParseDiscoverAttrs([]string{"depth=2"})
	if err != nil {
		t.Fatal(err)
	}
	if !a.HasDepth || a.Depth != 2 {
		t.Fatalf("got %+v", a)
	}
}

func TestParseBootstrapAttrs(t *testing.T) {
	a, err := ParseBootstrapAttrs([]string{"ep=node1", "pct=11542"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Endpoint != "node1" || a.PreferredContentFormat != MediaTypeTLV {
		t.Fatalf("got %+v", a)
	}
}
