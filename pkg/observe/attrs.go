package observe

import (
	"sync"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// AttrStore stores write-attributes keyed by (ssid, path) and resolves the
// effective, inherited view a resource's observation uses (§4.4.7,
// §4.6.1). It implements pkg/dispatch's AttrStore interface so the
// dispatcher can annotate Discover documents without importing this
// package.
type AttrStore struct {
	mu sync.RWMutex
	// perServer[ssid][path.String()] holds exactly what was written at
	// that path for that server; missing entries mean "inherit from the
	// parent" per attribute.
	perServer map[uint16]map[string]coap.NotificationAttrs

	// Defaults are the server's default pmin/pmax, used when no explicit
	// attribute at any level in the path chain sets them (§4.6.1).
	Defaults coap.NotificationAttrs
}

// NewAttrStore creates an empty attribute store.
func NewAttrStore() *AttrStore {
	return &AttrStore{perServer: make(map[uint16]map[string]coap.NotificationAttrs)}
}

// SetAttrs stores (or clears, per-field) the write-attributes at path for
// ssid. A cleared field (AttrValue.Clear) removes that field from the
// stored record rather than merely zeroing it, so later inheritance
// correctly falls through to the parent.
func (s *AttrStore) SetAttrs(ssid uint16, path coap.Path, attrs coap.NotificationAttrs) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPath, ok := s.perServer[ssid]
	if !ok {
		byPath = make(map[string]coap.NotificationAttrs)
		s.perServer[ssid] = byPath
	}
	cur := byPath[path.String()]
	mergeClearing(&cur.Pmin, attrs.Pmin)
	mergeClearing(&cur.Pmax, attrs.Pmax)
	mergeClearing(&cur.Gt, attrs.Gt)
	mergeClearing(&cur.Lt, attrs.Lt)
	mergeClearing(&cur.St, attrs.St)
	mergeClearing(&cur.Epmin, attrs.Epmin)
	mergeClearing(&cur.Epmax, attrs.Epmax)
	mergeClearing(&cur.Edge, attrs.Edge)
	mergeClearing(&cur.Con, attrs.Con)
	mergeClearing(&cur.Hqmax, attrs.Hqmax)
	byPath[path.String()] = cur
}

// mergeClearing applies one incoming attribute update: absent leaves dst
// untouched, a clear marker removes dst entirely, and a set value replaces
// it (§4.1.6).
func mergeClearing(dst *coap.AttrValue, update coap.AttrValue) {
	if !update.Present {
		return
	}
	if update.Clear {
		*dst = coap.AttrValue{}
		return
	}
	*dst = update
}

// Attrs returns exactly what was explicitly stored at path for ssid (no
// inheritance); dispatch's Discover uses this directly, while Effective
// below does the full chain resolution an observation needs.
func (s *AttrStore) Attrs(ssid uint16, path coap.Path) (coap.NotificationAttrs, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPath, ok := s.perServer[ssid]
	if !ok {
		return coap.NotificationAttrs{}, false
	}
	a, ok := byPath[path.String()]
	return a, ok
}

// Effective resolves the fully-merged attribute view an observation at
// path uses (§4.6.1): the most specific explicit value wins per attribute,
// walking path -> parent resource/instance/object -> the server default
// for pmin/pmax only (gt/lt/st/edge/con/hqmax have no server-wide default).
func (s *AttrStore) Effective(ssid uint16, path coap.Path) coap.NotificationAttrs {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var eff coap.NotificationAttrs
	for depth := path.Len(); depth >= 0; depth-- {
		p := truncate(path, depth)
		a, ok := s.lookupLocked(ssid, p)
		if !ok {
			continue
		}
		fillUnset(&eff.Pmin, a.Pmin)
		fillUnset(&eff.Pmax, a.Pmax)
		fillUnset(&eff.Gt, a.Gt)
		fillUnset(&eff.Lt, a.Lt)
		fillUnset(&eff.St, a.St)
		fillUnset(&eff.Epmin, a.Epmin)
		fillUnset(&eff.Epmax, a.Epmax)
		fillUnset(&eff.Edge, a.Edge)
		fillUnset(&eff.Con, a.Con)
		fillUnset(&eff.Hqmax, a.Hqmax)
	}
	fillUnset(&eff.Pmin, s.Defaults.Pmin)
	fillUnset(&eff.Pmax, s.Defaults.Pmax)
	return eff
}

func (s *AttrStore) lookupLocked(ssid uint16, path coap.Path) (coap.NotificationAttrs, bool) {
	byPath, ok := s.perServer[ssid]
	if !ok {
		return coap.NotificationAttrs{}, false
	}
	a, ok := byPath[path.String()]
	return a, ok
}

// fillUnset sets *dst from src only if *dst isn't already set — callers
// walk most-specific to least-specific, so the first setter along the
// chain wins (§4.6.1: "most specific value winning per attribute").
func fillUnset(dst *coap.AttrValue, src coap.AttrValue) {
	if dst.Present || !src.Present {
		return
	}
	*dst = src
}

func truncate(p coap.Path, depth int) coap.Path {
	segs := p.Segments()
	if depth < len(segs) {
		segs = segs[:depth]
	}
	np, _ := coap.NewPath(segs...)
	return np
}

// IsPassive reports whether, after resolution, the observation has no
// driver at all — neither pmin, pmax, nor a value-change condition — and
// so relies entirely on the initial notify and explicit
// data-model-changed events (§4.6.1).
func IsPassive(a coap.NotificationAttrs) bool {
	_, hasPmin := a.Pmin.Get()
	_, hasPmax := a.Pmax.Get()
	_, hasGt := a.Gt.Get()
	_, hasLt := a.Lt.Get()
	_, hasSt := a.St.Get()
	return !hasPmin && !hasPmax && !hasGt && !hasLt && !hasSt
}
