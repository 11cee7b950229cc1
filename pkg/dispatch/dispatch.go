package dispatch

import (
	"errors"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
)

// Target is the resolved (object_ptr, instance_ptr?, resource_ptr?, riid?)
// tuple a path maps to (§4.4.2).
type Target struct {
	Object   *ObjectDescriptor
	Instance *InstanceDescriptor
	Resource *ResourceDescriptor
	RIID     uint16
	HasRIID  bool
}

// Resolve maps a path to a Target by looking up oid, then iid, then rid,
// then checking riid against the resource's populated instances.
// Unknown ids yield ErrObjectNotFound / ErrInstanceNotFound /
// ErrResourceNotFound / ErrResourceInstanceNotFound.
func (r *Registry) Resolve(path coap.Path) (Target, error) {
	var t Target

	oid, hasOID := path.OID()
	if !hasOID {
		return t, nil // root: addresses every registered object
	}
	obj, ok := r.Object(oid)
	if !ok {
		return Target{}, ErrObjectNotFound
	}
	t.Object = obj

	iid, hasIID := path.IID()
	if !hasIID {
		return t, nil
	}
	inst, ok := r.Instance(oid, iid)
	if !ok {
		return Target{}, ErrInstanceNotFound
	}
	t.Instance = inst

	rid, hasRID := path.RID()
	if !hasRID {
		return t, nil
	}
	res := inst.Resource(rid)
	if res == nil {
		return Target{}, ErrResourceNotFound
	}
	t.Resource = res

	riid, hasRIID := path.RIID()
	if !hasRIID {
		return t, nil
	}
	if len(res.Insts) > 0 && !res.HasInstance(riid) {
		return Target{}, ErrResourceInstanceNotFound
	}
	t.RIID = riid
	t.HasRIID = true
	return t, nil
}

// CheckOperationCompat enforces that the target resource's declared
// operation permits the attempted access, before any handler is called
// (§4.4.2). Operations addressing a non-leaf path (no Resource) are
// always compatible here; leaf-level restrictions for those are enforced
// by the read/write/execute drivers instead.
func CheckOperationCompat(op coap.Operation, res *ResourceDescriptor) error {
	if res == nil {
		return nil
	}
	switch op {
	case coap.OpRead, coap.OpReadComposite, coap.OpObserve, coap.OpObserveComposite,
		coap.OpCancelObserve, coap.OpCancelObserveComposite:
		if !res.Operation.Readable() {
			return ErrMethodNotAllowed
		}
	case coap.OpWriteReplace, coap.OpWritePartial, coap.OpWriteComposite:
		if !res.Operation.Writable() {
			return ErrMethodNotAllowed
		}
	case coap.OpExecute:
		if !res.Operation.Executable() {
			return ErrMethodNotAllowed
		}
	}
	return nil
}

// ResponseCode maps a dispatch (or handler) error to the CoAP response
// code the session should send (§6.4: handlers return the negated CoAP
// response code; this is the Go-idiomatic inverse of that contract).
func ResponseCode(err error) coap.Code {
	switch {
	case err == nil:
		return coap.CodeChanged
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrInstanceNotFound),
		errors.Is(err, ErrResourceNotFound), errors.Is(err, ErrResourceInstanceNotFound):
		return coap.CodeNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return coap.CodeMethodNotAllowed
	case errors.Is(err, ErrObjectExists), errors.Is(err, ErrInstanceExists),
		errors.Is(err, ErrMaxInstancesReached):
		return coap.CodeBadRequest
	case errors.Is(err, ErrBootstrapProtected):
		return coap.CodeUnauthorized
	case errors.Is(err, ErrTransactionFailed):
		return coap.CodeBadRequest
	case errors.Is(err, ErrChunkOverflow):
		return coap.CodeRequestEntityTooLarge
	case errors.Is(err, ErrNotAtomic):
		return coap.CodeBadRequest
	default:
		return coap.CodeInternalServerError
	}
}

// AffectedObjects returns the set of object ids a mutation at path
// touches, for transaction boundary purposes (§4.4.3): just the one
// object the path resolves under, or every registered object for a
// root-level composite mutation.
func (r *Registry) AffectedObjects(path coap.Path) []uint16 {
	if oid, ok := path.OID(); ok {
		return []uint16{oid}
	}
	return r.OIDs()
}

// AttrStore resolves and stores write-attributes keyed by (ssid, path)
// (§4.4.7, §4.6.1). The concrete store lives in pkg/observe; dispatch
// only depends on this interface to avoid a package import cycle.
type AttrStore interface {
	SetAttrs(ssid uint16, path coap.Path, attrs coap.NotificationAttrs)
	Attrs(ssid uint16, path coap.Path) (coap.NotificationAttrs, bool)
}

// targetPath reconstructs the coap.Path a resolved Target was built from.
func targetPath(t Target) coap.Path {
	var ids []uint16
	if t.Object == nil {
		p, _ := coap.NewPath()
		return p
	}
	ids = append(ids, t.Object.OID)
	if t.Instance == nil {
		p, _ := coap.NewPath(ids...)
		return p
	}
	ids = append(ids, t.Instance.IID)
	if t.Resource == nil {
		p, _ := coap.NewPath(ids...)
		return p
	}
	ids = append(ids, t.Resource.RID)
	if t.HasRIID {
		ids = append(ids, t.RIID)
	}
	p, _ := coap.NewPath(ids...)
	return p
}

// objectsFor returns the object(s) a plan must walk: just t.Object if set,
// else every registered object (a root-level operation).
func (r *Registry) objectsFor(t Target) []*ObjectDescriptor {
	if t.Object != nil {
		return []*ObjectDescriptor{t.Object}
	}
	var objs []*ObjectDescriptor
	for _, oid := range r.OIDs() {
		if obj, ok := r.Object(oid); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// instancesFor returns the instance(s) of obj a plan must walk: just
// t.Instance if set, else every live instance of obj.
func (r *Registry) instancesFor(obj *ObjectDescriptor, t Target) []*InstanceDescriptor {
	if t.Instance != nil {
		return []*InstanceDescriptor{t.Instance}
	}
	var insts []*InstanceDescriptor
	for _, iid := range r.InstanceIDs(obj.OID) {
		if inst, ok := r.Instance(obj.OID, iid); ok {
			insts = append(insts, inst)
		}
	}
	return insts
}

// resourcesFor returns the resource(s) of inst a plan must walk: just
// t.Resource if set, else every resource declared on inst.
func resourcesFor(inst *InstanceDescriptor, t Target) []*ResourceDescriptor {
	if t.Resource != nil {
		return []*ResourceDescriptor{t.Resource}
	}
	res := make([]*ResourceDescriptor, len(inst.Resources))
	for i := range inst.Resources {
		res[i] = &inst.Resources[i]
	}
	return res
}
