package dispatch

import (
	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
)

// ErrBlockTransferNeeded signals that a streaming read or a composite
// operation filled its output budget and must be resumed with another
// Step call once the buffered bytes have been drained onto the wire
// (§4.4.4). It is a control-flow signal, not a failure.
var ErrBlockTransferNeeded = dispatchControlError("dispatch: block transfer needed")

type dispatchControlError string

func (e dispatchControlError) Error() string { return string(e) }

// ReadLeaf identifies one resource (or resource instance) a streaming
// READ must visit.
type ReadLeaf struct {
	OID, IID, RID uint16
	RIID          uint16
	HasRIID       bool
}

// PlanRead expands a resolved Target into the ordered list of leaves a
// READ over it must visit, ascending oid -> iid -> rid -> riid
// (§4.4.4). Resources whose declared operation is not readable are
// skipped; an atomic READ of exactly one such resource should already
// have been rejected by CheckOperationCompat before PlanRead runs.
func (r *Registry) PlanRead(t Target) []ReadLeaf {
	var leaves []ReadLeaf
	for _, obj := range r.objectsFor(t) {
		for _, inst := range r.instancesFor(obj, t) {
			for _, res := range resourcesFor(inst, t) {
				if !res.Operation.Readable() {
					continue
				}
				switch {
				case t.Resource != nil && t.HasRIID:
					leaves = append(leaves, ReadLeaf{obj.OID, inst.IID, res.RID, t.RIID, true})
				case len(res.Insts) == 0:
					leaves = append(leaves, ReadLeaf{obj.OID, inst.IID, res.RID, 0, false})
				default:
					for _, riid := range res.Insts {
						leaves = append(leaves, ReadLeaf{obj.OID, inst.IID, res.RID, riid, true})
					}
				}
			}
		}
	}
	return leaves
}

// Reader drives a streaming READ (§4.4.4): it walks a precomputed leaf
// plan, calling each resource's ResRead handler and pushing the result
// into a content.Encoder, yielding ErrBlockTransferNeeded when the
// encoder's buffered output reaches budget so the caller can flush a
// Block2 chunk and resume.
type Reader struct {
	registry *Registry
	leaves   []ReadLeaf
	pos      int
}

// NewReader plans a read over t and returns a Reader positioned at the
// first leaf.
func (r *Registry) NewReader(t Target) *Reader {
	return &Reader{registry: r, leaves: r.PlanRead(t)}
}

// Done reports whether every leaf has been read.
func (rd *Reader) Done() bool { return rd.pos >= len(rd.leaves) }

// Step reads leaves into enc until either every leaf has been consumed or
// enc's buffered output reaches budget bytes. In the latter case it
// returns ErrBlockTransferNeeded; the caller drains enc.Bytes() onto the
// wire, calls enc.Reset, and calls Step again to resume (§4.4.4).
func (rd *Reader) Step(enc content.Encoder, budget int) error {
	for !rd.Done() {
		leaf := rd.leaves[rd.pos]
		obj, ok := rd.registry.Object(leaf.OID)
		if !ok || obj.Handlers.ResRead == nil {
			return ErrMethodNotAllowed
		}
		v, err := obj.Handlers.ResRead(leaf.OID, leaf.IID, leaf.RID, leaf.RIID, leaf.HasRIID)
		if err != nil {
			return err
		}
		if p, perr := leafPath(leaf); perr == nil {
			v.Path = p
		}
		if err := enc.PutValue(v); err != nil {
			return err
		}
		rd.pos++
		if len(enc.Bytes()) >= budget && !rd.Done() {
			return ErrBlockTransferNeeded
		}
	}
	return nil
}

func leafPath(l ReadLeaf) (coap.Path, error) {
	if l.HasRIID {
		return coap.NewPath(l.OID, l.IID, l.RID, l.RIID)
	}
	return coap.NewPath(l.OID, l.IID, l.RID)
}
