package dispatch

import (
	"fmt"
	"strings"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// AttrLookup resolves the effective write-attributes for a path, for
// annotating a Discover document (§4.4.7: "Discover produces a link-format
// document listing the paths under the target plus their attributes").
// The concrete resolution (inheritance along the path chain) lives in
// pkg/observe; dispatch only needs read access.
type AttrLookup interface {
	Attrs(ssid uint16, path coap.Path) (coap.NotificationAttrs, bool)
}

// Discover renders the link-format document for a Discover request
// (§4.4.7). depth bounds how far below t the listing descends, matching
// the "depth=N" query parameter (§4.1.6): 1 stops at instance links, 2
// adds resource links, 3 adds resource-instance links. A depth <= 0 is
// treated as 1, and a resource target always lists its own resource.
func (r *Registry) Discover(t Target, ssid uint16, depth int, attrs AttrLookup) string {
	if depth <= 0 {
		depth = 1
	}
	var links []string
	for _, obj := range r.objectsFor(t) {
		if t.Object == nil {
			links = append(links, formatLink(pathOf(obj.OID), "", ver(obj)))
		}
		for _, inst := range r.instancesFor(obj, t) {
			if t.Instance == nil {
				links = append(links, formatLink(pathOf(obj.OID, inst.IID), attrQuery(attrs, ssid, pathOf(obj.OID, inst.IID)), ""))
			}
			if depth < 2 && t.Resource == nil {
				continue
			}
			for _, res := range resourcesFor(inst, t) {
				p := pathOf(obj.OID, inst.IID, res.RID)
				links = append(links, formatLink(p, attrQuery(attrs, ssid, p), ""))
				if depth < 3 || len(res.Insts) == 0 {
					continue
				}
				for _, riid := range res.Insts {
					rp := pathOf(obj.OID, inst.IID, res.RID, riid)
					links = append(links, formatLink(rp, attrQuery(attrs, ssid, rp), ""))
				}
			}
		}
	}
	return strings.Join(links, ",")
}

func pathOf(ids ...uint16) coap.Path {
	p, _ := coap.NewPath(ids...)
	return p
}

func ver(obj *ObjectDescriptor) string {
	if obj.Version == "" {
		return ""
	}
	return fmt.Sprintf("ver=%s", obj.Version)
}

func attrQuery(attrs AttrLookup, ssid uint16, p coap.Path) string {
	if attrs == nil {
		return ""
	}
	a, ok := attrs.Attrs(ssid, p)
	if !ok {
		return ""
	}
	q := coap.EncodeNotificationQuery(a)
	return strings.Join(q, ";")
}

func formatLink(p coap.Path, params string, extra string) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(p.String())
	b.WriteByte('>')
	if extra != "" {
		b.WriteByte(';')
		b.WriteString(extra)
	}
	if params != "" {
		b.WriteByte(';')
		b.WriteString(params)
	}
	return b.String()
}
