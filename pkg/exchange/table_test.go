package exchange

import (
	"testing"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

func TestTableAddInterruptsSameToken(t *testing.T) {
	table := NewTable()
	sender := &fakeSender{}

	first := NewContext(newReadRequest(t, 1, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)
	table.Add(first)
	_ = first.Tick(0)

	second := NewContext(newReadRequest(t, 2, coap.TypeCON), RoleInitiator, sender, DefaultParams, nil)
	table.Add(second)

	if first.State != StateFinished || first.Err() != ErrInterrupted {
		t.Fatalf("first exchange should be interrupted, got state=%v err=%v", first.State, first.Err())
	}
	got, ok := table.Lookup(second.Token)
	if !ok || got != second {
		t.Fatal("table should now return the second exchange for the shared token")
	}
}

func TestTableTickAllOmitsUnfinished(t *testing.T) {
	table := NewTable()
	sender := &fakeSender{}
	ctx := NewContext(newReadRequest(t, 1, coap.TypeNON), RoleInitiator, sender, DefaultParams, nil)
	table.Add(ctx)

	done := table.TickAll(0)
	if len(done) != 0 {
		t.Fatalf("done = %v, want none (NON request awaits a response next)", done)
	}
	if ctx.State != StateWaitingResponse {
		t.Fatalf("State = %v, want StateWaitingResponse", ctx.State)
	}
}

func TestTableDedupReplaysResponse(t *testing.T) {
	table := NewTable()
	if _, ok := table.CheckDuplicate(7); ok {
		t.Fatal("no response recorded yet")
	}
	table.RecordResponse(7, []byte("cached"), 0)
	raw, ok := table.CheckDuplicate(7)
	if !ok || string(raw) != "cached" {
		t.Fatalf("raw = %q, ok = %v", raw, ok)
	}
}

func TestTableDedupExpires(t *testing.T) {
	table := NewTable()
	table.RecordResponse(7, []byte("cached"), 0)
	table.sweepDedup(dedupWindowMs + 1)
	if _, ok := table.CheckDuplicate(7); ok {
		t.Fatal("expected dedup entry to expire")
	}
}
