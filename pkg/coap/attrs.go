package coap

import (
	"strconv"
	"strings"
)

// MaxAttrStringLen bounds each string-valued query attribute (ep, lwm2m
// version, binding) copied into the decoder's fixed attribute scratch area.
// Exceeding it is ErrAttrBufTooSmall, mirroring the fixed-capacity buffer
// a constrained-device decoder copies these into.
const MaxAttrStringLen = 63

// AttrValue is a tri-state query-string attribute value (§4.1.6):
// absent, present with a value, or present-but-cleared ("name" or "name="
// with no value, which tells the receiver to clear any stored value).
type AttrValue struct {
	Present bool
	Clear   bool
	Value   float64
}

// Get returns the numeric value and whether it is actually set (present and
// not a clear marker).
func (a AttrValue) Get() (float64, bool) {
	return a.Value, a.Present && !a.Clear
}

// NotificationAttrs are the observation/write-attribute query parameters
// (§3.5, §4.1.6, §4.6.1): pmin/pmax/gt/lt/st/epmin/epmax/edge/con/hqmax.
type NotificationAttrs struct {
	Pmin  AttrValue
	Pmax  AttrValue
	Gt    AttrValue
	Lt    AttrValue
	St    AttrValue
	Epmin AttrValue
	Epmax AttrValue
	Edge  AttrValue
	Con   AttrValue
	Hqmax AttrValue
}

// DiscoverAttrs carries the Discover operation's depth parameter.
type DiscoverAttrs struct {
	Depth    int
	HasDepth bool
}

// RegisterAttrs are the Register/Update query parameters.
type RegisterAttrs struct {
	Endpoint      string
	HasEndpoint   bool
	Lifetime      int64
	HasLifetime   bool
	LwM2MVersion  string
	HasVersion    bool
	Binding       string
	HasBinding    bool
	SMS           bool
	Queue         bool
}

// BootstrapAttrs are the Bootstrap-Request query parameters.
type BootstrapAttrs struct {
	Endpoint              string
	HasEndpoint           bool
	PreferredContentFormat MediaType
	HasPreferredFormat    bool
}

// CreatedAttrs is the oid/iid a CREATE response echoes via Location-Path.
type CreatedAttrs struct {
	OID uint16
	IID uint16
}

// parseQueryItem splits a single Uri-Query string into name and value,
// reporting whether a "=" was present at all (its absence, or an empty
// value after it, both mean "present but cleared" per §4.1.6).
func parseQueryItem(item string) (name, value string, hasValue bool) {
	idx := strings.IndexByte(item, '=')
	if idx < 0 {
		return item, "", false
	}
	v := item[idx+1:]
	return item[:idx], v, v != ""
}

// setAttrFloat parses a query value into an AttrValue, rejecting any
// non-digit content (negative sign permitted) and overflow.
func setAttrFloat(dst *AttrValue, value string, hasValue bool) error {
	dst.Present = true
	if !hasValue {
		dst.Clear = true
		return nil
	}
	for i, ch := range value {
		if ch == '-' && i == 0 {
			continue
		}
		if ch != '.' && (ch < '0' || ch > '9') {
			return ErrMalformed
		}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return ErrMalformed
	}
	dst.Value = f
	return nil
}

func checkAttrStringLen(s string) error {
	if len(s) > MaxAttrStringLen {
		return ErrAttrBufTooSmall
	}
	return nil
}

// ParseNotificationAttrs decodes the subset of query items relevant to
// observation/write-attribute requests. Unknown items are ignored.
func ParseNotificationAttrs(query []string) (NotificationAttrs, error) {
	var a NotificationAttrs
	for _, item := range query {
		name, value, hasValue := parseQueryItem(item)
		var err error
		switch name {
		case "pmin":
			err = setAttrFloat(&a.Pmin, value, hasValue)
		case "pmax":
			err = setAttrFloat(&a.Pmax, value, hasValue)
		case "gt":
			err = setAttrFloat(&a.Gt, value, hasValue)
		case "lt":
			err = setAttrFloat(&a.Lt, value, hasValue)
		case "st":
			err = setAttrFloat(&a.St, value, hasValue)
		case "epmin":
			err = setAttrFloat(&a.Epmin, value, hasValue)
		case "epmax":
			err = setAttrFloat(&a.Epmax, value, hasValue)
		case "edge":
			err = setAttrFloat(&a.Edge, value, hasValue)
		case "con":
			err = setAttrFloat(&a.Con, value, hasValue)
		case "hqmax":
			err = setAttrFloat(&a.Hqmax, value, hasValue)
		}
		if err != nil {
			return NotificationAttrs{}, err
		}
	}
	return a, nil
}

// ParseDiscoverAttrs decodes the Discover operation's "depth=N" parameter.
func ParseDiscoverAttrs(query []string) (DiscoverAttrs, error) {
	var a DiscoverAttrs
	for _, item := range query {
		name, value, hasValue := parseQueryItem(item)
		if name != "depth" {
			continue
		}
		if !hasValue {
			return DiscoverAttrs{}, ErrMalformed
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return DiscoverAttrs{}, ErrMalformed
		}
		a.Depth = n
		a.HasDepth = true
	}
	return a, nil
}

// ParseRegisterAttrs decodes Register/Update query parameters
// (ep, lt, lwm2m, b, sms, Q).
func ParseRegisterAttrs(query []string) (RegisterAttrs, error) {
	var a RegisterAttrs
	for _, item := range query {
		name, value, hasValue := parseQueryItem(item)
		switch name {
		case "ep":
			if err := checkAttrStringLen(value); err != nil {
				return RegisterAttrs{}, err
			}
			a.Endpoint, a.HasEndpoint = value, true
		case "lt":
			if !hasValue {
				return RegisterAttrs{}, ErrMalformed
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return RegisterAttrs{}, ErrMalformed
			}
			a.Lifetime, a.HasLifetime = n, true
		case "lwm2m":
			if err := checkAttrStringLen(value); err != nil {
				return RegisterAttrs{}, err
			}
			a.LwM2MVersion, a.HasVersion = value, true
		case "b":
			if err := checkAttrStringLen(value); err != nil {
				return RegisterAttrs{}, err
			}
			a.Binding, a.HasBinding = value, true
		case "sms":
			a.SMS = true
		case "Q":
			a.Queue = true
		}
	}
	return a, nil
}

// ParseBootstrapAttrs decodes Bootstrap-Request query parameters (ep, pct).
func ParseBootstrapAttrs(query []string) (BootstrapAttrs, error) {
	var a BootstrapAttrs
	for _, item := range query {
		name, value, hasValue := parseQueryItem(item)
		switch name {
		case "ep":
			if err := checkAttrStringLen(value); err != nil {
				return BootstrapAttrs{}, err
			}
			a.Endpoint, a.HasEndpoint = value, true
		case "pct":
			if !hasValue {
				return BootstrapAttrs{}, ErrMalformed
			}
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return BootstrapAttrs{}, ErrMalformed
			}
			a.PreferredContentFormat, a.HasPreferredFormat = MediaType(n), true
		}
	}
	return a, nil
}

// EncodeRegisterQuery renders RegisterAttrs back into Uri-Query items, in
// the canonical order servers expect: ep, lt, lwm2m, b, sms, Q.
func EncodeRegisterQuery(a RegisterAttrs) []string {
	var q []string
	if a.HasEndpoint {
		q = append(q, "ep="+a.Endpoint)
	}
	if a.HasLifetime {
		q = append(q, "lt="+strconv.FormatInt(a.Lifetime, 10))
	}
	if a.HasVersion {
		q = append(q, "lwm2m="+a.LwM2MVersion)
	}
	if a.HasBinding {
		q = append(q, "b="+a.Binding)
	}
	if a.SMS {
		q = append(q, "sms")
	}
	if a.Queue {
		q = append(q, "Q")
	}
	return q
}

// EncodeBootstrapQuery renders BootstrapAttrs into Uri-Query items.
func EncodeBootstrapQuery(a BootstrapAttrs) []string {
	var q []string
	if a.HasEndpoint {
		q = append(q, "ep="+a.Endpoint)
	}
	if a.HasPreferredFormat {
		q = append(q, "pct="+strconv.FormatUint(uint64(a.PreferredContentFormat), 10))
	}
	return q
}

// EncodeNotificationQuery renders NotificationAttrs into Uri-Query items
// for a WRITE_ATTR request. A cleared attribute is encoded as a bare name.
func EncodeNotificationQuery(a NotificationAttrs) []string {
	var q []string
	encode := func(name string, v AttrValue) {
		if !v.Present {
			return
		}
		if v.Clear {
			q = append(q, name)
			return
		}
		q = append(q, name+"="+strconv.FormatFloat(v.Value, 'f', -1, 64))
	}
	encode("pmin", a.Pmin)
	encode("pmax", a.Pmax)
	encode("gt", a.Gt)
	encode("lt", a.Lt)
	encode("st", a.St)
	encode("epmin", a.Epmin)
	encode("epmax", a.Epmax)
	encode("edge", a.Edge)
	encode("con", a.Con)
	encode("hqmax", a.Hqmax)
	return q
}
