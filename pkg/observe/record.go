package observe

import (
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// Record is one observation's live state (§3.5). A composite observation
// (§4.6.3) is represented as multiple Records sharing the same Token,
// linked through the Registry rather than an in-struct chain, so each
// path's value-change bookkeeping (LastSentValue) stays independent while
// the notify they trigger is consolidated across the set.
type Record struct {
	SSID  uint16
	Path  coap.Path
	Token coap.Token

	// ObserveNumber is the monotonically increasing counter stamped on
	// each notification sent for this observation (RFC 7641 Section 3.2).
	ObserveNumber uint32

	AttrsEffective coap.NotificationAttrs

	// ObserveActive is true once AttrsEffective has been resolved and the
	// server is considered reachable; false suspends scheduling without
	// discarding the record (e.g. while Suspended, §4.5.1).
	ObserveActive bool

	LastNotifyAt   time.Time
	LastSentValue  float64
	HasSentValue   bool
	HasSentBool    bool
	LastSentBool   bool

	// NotificationPending is set by the dispatcher's data_model_changed
	// hook (§4.6.4) when a value under Path may have changed since the
	// last evaluation, so the scheduler knows to re-check gt/lt/st/edge
	// even between pmin ticks.
	NotificationPending bool

	// Accept is the content-format the initiating request negotiated;
	// notifications are rendered in the same format (§4.6.2).
	Accept coap.MediaType

	// QueuedNotifications holds reports accumulated while offline (Queue
	// Mode), capped at Hqmax (§4.6.2). The newest replaces the oldest once
	// the cap is reached.
	QueuedNotifications [][]byte
}

// Key identifies a Record by the (ssid, token) pair observations are
// addressed by within a session.
type Key struct {
	SSID  uint16
	Token string
	// Path disambiguates the members of a composite observation, which
	// share one wire-visible Token across several paths (§4.6.3). A
	// non-composite observation's Path is simply its own observed path.
	Path string
}

func keyFor(ssid uint16, token coap.Token, path coap.Path) Key {
	return Key{SSID: ssid, Token: string(token), Path: path.String()}
}

// Registry tracks every active observation for one client session.
type Registry struct {
	records map[Key]*Record
}

// NewRegistry creates an empty observation registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[Key]*Record)}
}

// Add begins tracking a new observation. Returns ErrAlreadyExists if the
// (ssid, token, path) triple is already tracked — the caller must cancel
// the prior observation first (a reused token always supersedes, per
// §4.2.5's token-interruption rule applied at the observation layer).
func (r *Registry) Add(rec *Record) error {
	k := keyFor(rec.SSID, rec.Token, rec.Path)
	if _, exists := r.records[k]; exists {
		return ErrAlreadyExists
	}
	r.records[k] = rec
	return nil
}

// Get returns the observation for (ssid, token, path).
func (r *Registry) Get(ssid uint16, token coap.Token, path coap.Path) (*Record, bool) {
	rec, ok := r.records[keyFor(ssid, token, path)]
	return rec, ok
}

// Cancel removes every observation sharing (ssid, token) — for a plain
// observation that is the single member; for a composite observation it
// is every path in the set (§4.6.3: one cancel-observe-composite removes
// the whole set since they share a token).
func (r *Registry) Cancel(ssid uint16, token coap.Token) {
	tok := string(token)
	for k := range r.records {
		if k.SSID == ssid && k.Token == tok {
			delete(r.records, k)
		}
	}
}

// All returns every tracked observation, for the scheduler's sweep.
func (r *Registry) All() []*Record {
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// RemoveForPath drops every observation tied to path (or a descendant of
// it), in response to an instance being deleted (§4.6.4: "drops any
// observations and attributes tied to the vanished path").
func (r *Registry) RemoveForPath(path coap.Path) {
	for k, rec := range r.records {
		if rec.Path.HasPrefix(path) {
			delete(r.records, k)
		}
	}
}

// MarkChanged sets NotificationPending on every observation whose path
// covers the changed path (the observation's path is an ancestor of, or
// equal to, the changed path), implementing the dispatcher's
// data_model_changed hook (§4.6.4).
func (r *Registry) MarkChanged(changed coap.Path) {
	for _, rec := range r.records {
		if changed.HasPrefix(rec.Path) {
			rec.NotificationPending = true
		}
	}
}
