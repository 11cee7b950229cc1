package observe

import "github.com/lindqvist-iot/lwm2m/pkg/coap"

// Composite is a set of Records sharing one token (§4.6.3): an
// OBSERVE_COMP request subscribes to several paths at once, and a change
// under any of them triggers one consolidated notify carrying every
// path's current value rather than one notify per path.
type Composite struct {
	SSID  uint16
	Token coap.Token
	Paths []coap.Path
}

// compositeKey identifies a composite observation by (ssid, token), since
// its member Records in the plain Registry are addressed by (ssid, token,
// path) but the set itself is one wire-visible observation.
type compositeKey struct {
	SSID  uint16
	Token string
}

// CompositeIndex tracks which paths belong to a composite observation's
// token, so a consolidated notify can be built once any member path
// changes.
type CompositeIndex struct {
	byToken map[compositeKey]*Composite
}

// NewCompositeIndex creates an empty index.
func NewCompositeIndex() *CompositeIndex {
	return &CompositeIndex{byToken: make(map[compositeKey]*Composite)}
}

func ckey(ssid uint16, token coap.Token) compositeKey {
	return compositeKey{SSID: ssid, Token: string(token)}
}

// Add registers a composite observation. The caller additionally Adds one
// Record per member path to the plain Registry, all sharing c.Token.
func (idx *CompositeIndex) Add(c *Composite) {
	idx.byToken[ckey(c.SSID, c.Token)] = c
}

// Get returns the composite observation for (ssid, token).
func (idx *CompositeIndex) Get(ssid uint16, token coap.Token) (*Composite, bool) {
	c, ok := idx.byToken[ckey(ssid, token)]
	return c, ok
}

// Remove drops the composite observation for (ssid, token). The caller
// separately calls Registry.Cancel(ssid, token) to drop the member
// Records.
func (idx *CompositeIndex) Remove(ssid uint16, token coap.Token) {
	delete(idx.byToken, ckey(ssid, token))
}

// AnyPending reports whether any member path of the composite observation
// has a pending notification, consulting the plain Registry that owns the
// member Records' NotificationPending flags.
func (idx *CompositeIndex) AnyPending(reg *Registry, ssid uint16, token coap.Token) bool {
	c, ok := idx.Get(ssid, token)
	if !ok {
		return false
	}
	for _, p := range c.Paths {
		if rec, ok := reg.Get(ssid, token, p); ok && rec.NotificationPending {
			return true
		}
	}
	return false
}
