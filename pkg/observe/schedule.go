package observe

import (
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
)

// ChangeKind reports which value-change condition (if any) fired for the
// current value against a record's last-sent snapshot (§4.6.2).
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeGT
	ChangeLT
	ChangeST
	ChangeEdge
)

// Evaluation is the scheduler's verdict for one observation at one tick.
type Evaluation struct {
	Due    bool
	Change ChangeKind
}

// Evaluate decides whether a notification for rec is due at now, given the
// resource's current value (§4.6.2). It does not mutate rec; callers
// apply the resulting send via MarkSent once the notify actually goes out,
// so a send that never completes (dropped, canceled) doesn't advance
// LastNotifyAt/LastSentValue.
func Evaluate(now time.Time, rec *Record, current content.Value) Evaluation {
	a := rec.AttrsEffective

	if pmin, ok := a.Pmin.Get(); ok {
		if !rec.LastNotifyAt.IsZero() && now.Before(rec.LastNotifyAt.Add(durationFromSeconds(pmin))) {
			return Evaluation{Due: false}
		}
	}

	if pmax, ok := a.Pmax.Get(); ok && !rec.LastNotifyAt.IsZero() {
		if !now.Before(rec.LastNotifyAt.Add(durationFromSeconds(pmax))) {
			return Evaluation{Due: true, Change: ChangeNone}
		}
	}

	if rec.LastNotifyAt.IsZero() {
		// initial notify: always due. The pmin check above only spaces
		// out later notifies; it is skipped while LastNotifyAt is zero.
		return Evaluation{Due: true, Change: ChangeNone}
	}

	if kind, fired := valueChanged(a, rec, current); fired {
		return Evaluation{Due: true, Change: kind}
	}

	if rec.NotificationPending && IsPassive(a) {
		// a passive observation (no pmin/pmax/gt/lt/st) still notifies on
		// an explicit data-model-changed event (§4.6.1).
		return Evaluation{Due: true, Change: ChangeNone}
	}

	return Evaluation{Due: false}
}

func valueChanged(a coap.NotificationAttrs, rec *Record, current content.Value) (ChangeKind, bool) {
	switch current.Kind {
	case content.KindBool:
		if edge, ok := a.Edge.Get(); ok {
			want := edge != 0
			if rec.HasSentBool && rec.LastSentBool != current.Bool && current.Bool == want {
				return ChangeEdge, true
			}
		}
		return ChangeNone, false
	}

	v, ok := numericValue(current)
	if !ok {
		return ChangeNone, false
	}
	if !rec.HasSentValue {
		return ChangeNone, false
	}
	if gt, ok := a.Gt.Get(); ok {
		if rec.LastSentValue <= gt && v > gt {
			return ChangeGT, true
		}
	}
	if lt, ok := a.Lt.Get(); ok {
		if rec.LastSentValue >= lt && v < lt {
			return ChangeLT, true
		}
	}
	if st, ok := a.St.Get(); ok {
		if abs(v-rec.LastSentValue) >= st {
			return ChangeST, true
		}
	}
	return ChangeNone, false
}

func numericValue(v content.Value) (float64, bool) {
	switch v.Kind {
	case content.KindDouble:
		return v.Double, true
	case content.KindInt:
		return float64(v.Int), true
	case content.KindUint:
		return float64(v.Uint), true
	default:
		return 0, false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// MarkSent records that a notification was successfully sent, updating the
// snapshot state evaluate uses for the next tick. Callers invoke this only
// after the exchange's completion fires with success (§4.6.2: "last_notify
// _at and last_sent_value are updated atomically on successful send").
func (r *Record) MarkSent(now time.Time, v content.Value) {
	r.LastNotifyAt = now
	r.ObserveNumber++
	switch v.Kind {
	case content.KindBool:
		r.LastSentBool = v.Bool
		r.HasSentBool = true
	default:
		if f, ok := numericValue(v); ok {
			r.LastSentValue = f
			r.HasSentValue = true
		}
	}
	r.NotificationPending = false
}

// PushQueued appends a pre-rendered notification payload to rec's offline
// queue, evicting the oldest entry once Hqmax is reached (§4.6.2: "the
// newest notification replaces the oldest").
func (r *Record) PushQueued(payload []byte) {
	hqmax, ok := r.AttrsEffective.Hqmax.Get()
	limit := int(hqmax)
	if !ok || limit <= 0 {
		limit = 1
	}
	r.QueuedNotifications = append(r.QueuedNotifications, payload)
	for len(r.QueuedNotifications) > limit {
		r.QueuedNotifications = r.QueuedNotifications[1:]
	}
}
