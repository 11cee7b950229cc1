package dispatch

import (
	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
)

// CompositeReader drives READ_COMP/OBSERVE_COMP (§4.4.6): the request
// payload names a list of paths instead of one URI; the dispatcher
// resolves each in turn and concatenates their individual read plans into
// one ordered leaf list so the result streams through the same Reader
// machinery as a single-path READ.
func (r *Registry) CompositeReader(paths []coap.Path) (*Reader, error) {
	var leaves []ReadLeaf
	for _, p := range paths {
		t, err := r.Resolve(p)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, r.PlanRead(t)...)
	}
	return &Reader{registry: r, leaves: leaves}, nil
}

// CompositeWriteItem pairs one path from a WRITE_COMP request with the
// decoded value to store there.
type CompositeWriteItem struct {
	Path  coap.Path
	Value content.Value
}

// WriteComposite resolves and writes every item in a WRITE_COMP request
// inside one transaction spanning every affected object, rolling every
// write back if any fails (§4.4.3, §4.4.6).
func (r *Registry) WriteComposite(items []CompositeWriteItem, write func(t Target, v content.Value) error) error {
	oids := make(map[uint16]struct{})
	targets := make([]Target, len(items))
	for i, item := range items {
		t, err := r.Resolve(item.Path)
		if err != nil {
			return err
		}
		if t.Object == nil {
			return ErrNotAtomic
		}
		targets[i] = t
		oids[t.Object.OID] = struct{}{}
	}
	affected := make([]uint16, 0, len(oids))
	for oid := range oids {
		affected = append(affected, oid)
	}
	return r.RunMutation(affected, func() error {
		for i, item := range items {
			if err := write(targets[i], item.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelObserveComposite and ObserveComposite carry no dispatch-level
// behavior beyond path resolution: the observation bookkeeping itself
// lives in pkg/observe, keyed by the same []coap.Path list a composite
// request decodes to.
func (r *Registry) ResolveComposite(paths []coap.Path) ([]Target, error) {
	targets := make([]Target, len(paths))
	for i, p := range paths {
		t, err := r.Resolve(p)
		if err != nil {
			return nil, err
		}
		targets[i] = t
	}
	return targets, nil
}
