package exchange

import (
	"encoding/hex"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// Table tracks every exchange currently in flight, keyed by token, and the
// small dedup cache of recently-answered message ids a responder needs to
// replay an identical response instead of re-running the operation when
// the peer retransmits a CON it never ACKed in time (§4.2.4).
type Table struct {
	byToken map[string]*Context
	dedup   map[uint16]dedupEntry
}

type dedupEntry struct {
	response   []byte
	expiresMs  int64
}

// dedupWindowMs bounds how long a cached response is replayed for a
// duplicate message id before the entry is evicted on the next Tick sweep.
const dedupWindowMs = 6 * 2000 // a handful of retransmission rounds at the default ack timeout

// NewTable creates an empty exchange table.
func NewTable() *Table {
	return &Table{
		byToken: make(map[string]*Context),
		dedup:   make(map[uint16]dedupEntry),
	}
}

func tokenKey(t coap.Token) string { return hex.EncodeToString(t) }

// Add registers a new exchange, replacing (and canceling) any prior
// exchange sharing the same token — a client starting a new request with a
// reused token implicitly interrupts whatever was pending for it (§4.2.5).
func (t *Table) Add(ctx *Context) {
	key := tokenKey(ctx.Token)
	if old, ok := t.byToken[key]; ok && old.State != StateFinished {
		old.finish(ErrInterrupted)
	}
	t.byToken[key] = ctx
}

// Lookup finds the exchange matching a token, if any.
func (t *Table) Lookup(token coap.Token) (*Context, bool) {
	ctx, ok := t.byToken[tokenKey(token)]
	return ctx, ok
}

// Remove drops a finished exchange from the table. Callers should do this
// once they've consumed its Response()/Err(), typically right after a Tick
// pass that reports StateFinished.
func (t *Table) Remove(token coap.Token) {
	delete(t.byToken, tokenKey(token))
}

// TickAll advances every in-flight exchange by one step and returns the
// tokens of those that just became finished.
func (t *Table) TickAll(nowMs int64) []coap.Token {
	var done []coap.Token
	for _, ctx := range t.byToken {
		if ctx.State == StateFinished {
			continue
		}
		_ = ctx.Tick(nowMs)
		if ctx.State == StateFinished {
			done = append(done, ctx.Token)
		}
	}
	t.sweepDedup(nowMs)
	return done
}

// NextDeadline returns the earliest absolute deadline across all in-flight
// exchanges, for the caller's core_next_step_time computation.
func (t *Table) NextDeadline() (int64, bool) {
	var best int64
	found := false
	for _, ctx := range t.byToken {
		ms, ok := ctx.NextDeadline()
		if !ok {
			continue
		}
		if !found || ms < best {
			best = ms
			found = true
		}
	}
	return best, found
}

// CheckDuplicate reports whether msgID was already answered, returning the
// previously-sent raw response bytes to replay verbatim instead of
// re-running the operation.
func (t *Table) CheckDuplicate(msgID uint16) ([]byte, bool) {
	e, ok := t.dedup[msgID]
	if !ok {
		return nil, false
	}
	return e.response, true
}

// RecordResponse remembers the raw bytes sent in answer to msgID, so a
// retransmitted duplicate request can be answered without re-dispatching.
func (t *Table) RecordResponse(msgID uint16, raw []byte, nowMs int64) {
	t.dedup[msgID] = dedupEntry{response: raw, expiresMs: nowMs + dedupWindowMs}
}

func (t *Table) sweepDedup(nowMs int64) {
	for id, e := range t.dedup {
		if nowMs >= e.expiresMs {
			delete(t.dedup, id)
		}
	}
}
