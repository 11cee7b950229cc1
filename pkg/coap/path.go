// Package coap implements a bit-exact CoAP-over-UDP (RFC 7252) and
// CoAP-over-TCP (RFC 8323) codec restricted to the option and format subset
// used by LwM2M.
package coap

import "fmt"

// IDSentinel is the reserved id value meaning "not set" at a given path
// depth. 0xFFFF is never a valid object/instance/resource/resource-instance
// id.
const IDSentinel uint16 = 0xFFFF

// MaxPathLen is the deepest a URI path can go: object, instance, resource,
// resource-instance.
const MaxPathLen = 4

// Path is a URI path of at most four 16-bit ids, addressing a node in the
// LwM2M data model tree at a depth between 0 (root) and 4
// (resource-instance).
type Path struct {
	ids [MaxPathLen]uint16
	len uint8
}

// NewPath builds a Path from 0 to 4 ids.
func NewPath(ids ...uint16) (Path, error) {
	var p Path
	if len(ids) > MaxPathLen {
		return p, fmt.Errorf("coap: path depth %d exceeds max %d", len(ids), MaxPathLen)
	}
	for i := range p.ids {
		p.ids[i] = IDSentinel
	}
	for i, id := range ids {
		if id == IDSentinel {
			return Path{}, fmt.Errorf("coap: id %d at depth %d is the reserved sentinel", id, i)
		}
		p.ids[i] = id
	}
	p.len = uint8(len(ids))
	return p, nil
}

// Len returns the path depth: 0 (root) through 4 (resource-instance).
func (p Path) Len() int { return int(p.len) }

// OID returns the object id and whether the path is at least depth 1.
func (p Path) OID() (uint16, bool) { return p.ids[0], p.len >= 1 }

// IID returns the instance id and whether the path is at least depth 2.
func (p Path) IID() (uint16, bool) { return p.ids[1], p.len >= 2 }

// RID returns the resource id and whether the path is at least depth 3.
func (p Path) RID() (uint16, bool) { return p.ids[2], p.len >= 3 }

// RIID returns the resource-instance id and whether the path is depth 4.
func (p Path) RIID() (uint16, bool) { return p.ids[3], p.len >= 4 }

// Is reports whether the path is exactly the given depth.
func (p Path) Is(depth int) bool { return int(p.len) == depth }

// IsRoot reports whether the path addresses the root ("/").
func (p Path) IsRoot() bool { return p.len == 0 }

// Segments returns the ids actually in use, in order.
func (p Path) Segments() []uint16 {
	return append([]uint16(nil), p.ids[:p.len]...)
}

// String renders the path in the usual slash form, e.g. "/3/0/1".
func (p Path) String() string {
	if p.len == 0 {
		return "/"
	}
	s := ""
	for i := 0; i < int(p.len); i++ {
		s += fmt.Sprintf("/%d", p.ids[i])
	}
	return s
}

// Equal reports whether two paths address the same node.
func (p Path) Equal(o Path) bool {
	if p.len != o.len {
		return false
	}
	for i := 0; i < int(p.len); i++ {
		if p.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is o or a descendant of o.
func (p Path) HasPrefix(o Path) bool {
	if p.len < o.len {
		return false
	}
	for i := 0; i < int(o.len); i++ {
		if p.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}

// Less orders paths for ascending oid -> iid -> rid -> riid traversal.
func (p Path) Less(o Path) bool {
	n := int(p.len)
	if int(o.len) < n {
		n = int(o.len)
	}
	for i := 0; i < n; i++ {
		if p.ids[i] != o.ids[i] {
			return p.ids[i] < o.ids[i]
		}
	}
	return p.len < o.len
}

// Token is an opaque client-chosen correlator, 0 to 8 bytes, echoed by the
// peer in its response.
type Token []byte

// MaxTokenLen is the largest legal CoAP token length.
const MaxTokenLen = 8

// Valid reports whether the token respects the length invariant.
func (t Token) Valid() bool { return len(t) <= MaxTokenLen }
