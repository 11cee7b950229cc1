package dispatch

import (
	"errors"
	"testing"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
)

func twoSensorObjects() (*Registry, error) {
	r := NewRegistry()
	mk := func(oid uint16) *ObjectDescriptor {
		return &ObjectDescriptor{
			OID: oid,
			Insts: []InstanceDescriptor{
				{IID: 0, Resources: []ResourceDescriptor{
					{RID: 5700, Type: content.KindDouble, Operation: OpRW},
				}},
			},
			Handlers: Handlers{
				ResRead: func(oid, iid, rid, riid uint16, hasRIID bool) (content.Value, error) {
					return content.Value{Kind: content.KindDouble, Double: 1.0}, nil
				},
				ResWrite: func(oid, iid, rid, riid uint16, hasRIID bool, chunk ChunkedValue) error {
					return nil
				},
			},
		}
	}
	if err := r.Register(mk(3303)); err != nil {
		return nil, err
	}
	if err := r.Register(mk(3304)); err != nil {
		return nil, err
	}
	return r, nil
}

func TestCompositeReader_SpansMultiplePaths(t *testing.T) {
	r, err := twoSensorObjects()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	p1, _ := coap.NewPath(3303, 0, 5700)
	p2, _ := coap.NewPath(3304, 0, 5700)
	rd, err := r.CompositeReader([]coap.Path{p1, p2})
	if err != nil {
		t.Fatalf("composite reader: %v", err)
	}
	enc := &fakeEncoder{}
	if err := rd.Step(enc, 1024); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !rd.Done() || len(enc.buf) != 2 {
		t.Fatalf("expected 2 values consumed, got %d (done=%v)", len(enc.buf), rd.Done())
	}
}

func TestCompositeReader_UnknownPathFails(t *testing.T) {
	r, err := twoSensorObjects()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	bad, _ := coap.NewPath(9999)
	if _, err := r.CompositeReader([]coap.Path{bad}); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("got %v, want ErrObjectNotFound", err)
	}
}

func TestWriteComposite_RollsBackAcrossObjectsOnFailure(t *testing.T) {
	r := NewRegistry()
	var state1, state2, snap1, snap2 int
	mk := func(oid uint16, state, snap *int, fail bool) *ObjectDescriptor {
		return &ObjectDescriptor{
			OID: oid,
			Insts: []InstanceDescriptor{
				{IID: 0, Resources: []ResourceDescriptor{{RID: 1, Operation: OpRW}}},
			},
			Handlers: Handlers{
				TransactionBegin: func(uint16) error { *snap = *state; return nil },
				TransactionEnd: func(_ uint16, result int) {
					if result != 0 {
						*state = *snap
					}
				},
			},
		}
	}
	if err := r.Register(mk(1, &state1, &snap1, false)); err != nil {
		t.Fatalf("register 1: %v", err)
	}
	if err := r.Register(mk(2, &state2, &snap2, true)); err != nil {
		t.Fatalf("register 2: %v", err)
	}

	p1, _ := coap.NewPath(1, 0, 1)
	p2, _ := coap.NewPath(2, 0, 1)
	items := []CompositeWriteItem{
		{Path: p1, Value: content.Value{Kind: content.KindInt, Int: 5}},
		{Path: p2, Value: content.Value{Kind: content.KindInt, Int: 7}},
	}
	failWrite := errors.New("second write rejected")
	err := r.WriteComposite(items, func(target Target, v content.Value) error {
		if target.Object.OID == 1 {
			state1 = int(v.Int)
			return nil
		}
		return failWrite
	})
	if !errors.Is(err, failWrite) {
		t.Fatalf("got %v, want %v", err, failWrite)
	}
	if state1 != 0 {
		t.Fatalf("state1 = %d, want rolled back to 0", state1)
	}
}
