package dispatch

import (
	"sort"
	"sync"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
)

// ResourceOperation is the access mode declared for a resource (§4.4.1):
// R, W, RW, E, or one of the multi-instance variants RM/RWM.
type ResourceOperation uint8

const (
	OpR ResourceOperation = iota
	OpW
	OpRW
	OpE
	OpRM
	OpRWM
)

func (o ResourceOperation) String() string {
	switch o {
	case OpR:
		return "R"
	case OpW:
		return "W"
	case OpRW:
		return "RW"
	case OpE:
		return "E"
	case OpRM:
		return "RM"
	case OpRWM:
		return "RWM"
	default:
		return "unknown"
	}
}

// Readable reports whether the operation permits READ/OBSERVE.
func (o ResourceOperation) Readable() bool {
	return o == OpR || o == OpRW || o == OpRM || o == OpRWM
}

// Writable reports whether the operation permits WRITE.
func (o ResourceOperation) Writable() bool {
	return o == OpW || o == OpRW || o == OpRWM
}

// Executable reports whether the operation permits EXECUTE.
func (o ResourceOperation) Executable() bool { return o == OpE }

// Multiple reports whether the resource carries resource instances (riid).
func (o ResourceOperation) Multiple() bool { return o == OpRM || o == OpRWM }

// ResourceDescriptor describes one resource slot on an object instance
// (§4.4.1): {rid, type, operation, insts?, max_inst_count?}.
type ResourceDescriptor struct {
	RID       uint16
	Type      content.Kind
	Operation ResourceOperation

	// Insts holds the populated resource-instance ids, ascending, for a
	// multi-instance resource. Nil for single-instance resources.
	Insts []uint16

	// MaxInstCount bounds resource-instance creation; 0 means unbounded.
	MaxInstCount int
}

// HasInstance reports whether riid is a populated resource instance.
func (r *ResourceDescriptor) HasInstance(riid uint16) bool {
	for _, id := range r.Insts {
		if id == riid {
			return true
		}
	}
	return false
}

// InstanceDescriptor describes one object instance (§4.4.1): {iid,
// res_count, resources[]}, resources sorted ascending by rid. IID ==
// coap.IDSentinel marks a free slot reserved for a dynamic object.
type InstanceDescriptor struct {
	IID       uint16
	Resources []ResourceDescriptor
}

// Resource looks up a resource descriptor by rid.
func (inst *InstanceDescriptor) Resource(rid uint16) *ResourceDescriptor {
	for i := range inst.Resources {
		if inst.Resources[i].RID == rid {
			return &inst.Resources[i]
		}
	}
	return nil
}

// ChunkedValue is the value descriptor passed to ResWriteFunc when a
// byte/string resource is written across multiple Block1 blocks (§4.4.5).
type ChunkedValue struct {
	Data           []byte
	Offset         int
	ChunkLength    int
	FullLengthHint int // 0 until the last chunk is known, then the total
}

// Handler function types. All are optional; absence of a handler required
// by an attempted operation yields ErrMethodNotAllowed (§4.4.1).
type (
	ResReadFunc             func(oid, iid, rid uint16, riid uint16, hasRIID bool) (content.Value, error)
	ResWriteFunc             func(oid, iid, rid uint16, riid uint16, hasRIID bool, chunk ChunkedValue) error
	ResExecuteFunc           func(oid, iid, rid uint16, payload []byte) error
	InstCreateFunc           func(oid uint16, iid uint16, hasIID bool) (chosenIID uint16, err error)
	InstDeleteFunc           func(oid, iid uint16) error
	InstResetFunc            func(oid, iid uint16) error
	ResInstCreateFunc        func(oid, iid, rid, riid uint16) error
	ResInstDeleteFunc        func(oid, iid, rid, riid uint16) error
	TransactionBeginFunc     func(oid uint16) error
	TransactionValidateFunc  func(oid uint16) error
	TransactionEndFunc       func(oid uint16, result int)
)

// Handlers is the capability set an object registers (§4.4.1).
type Handlers struct {
	ResRead    ResReadFunc
	ResWrite   ResWriteFunc
	ResExecute ResExecuteFunc

	InstCreate InstCreateFunc
	InstDelete InstDeleteFunc
	InstReset  InstResetFunc

	ResInstCreate ResInstCreateFunc
	ResInstDelete ResInstDeleteFunc

	TransactionBegin    TransactionBeginFunc
	TransactionValidate TransactionValidateFunc
	TransactionEnd      TransactionEndFunc
}

// ObjectDescriptor is the immutable part of a registered object (§4.4.1):
// {oid, version?, max_inst_count, insts[], handlers}. Insts describes the
// instances present at registration time; dynamic objects grow/shrink
// their instance set through Registry.CreateInstance/RemoveInstance,
// which call back into Handlers.
type ObjectDescriptor struct {
	OID          uint16
	Version      string // empty if unspecified
	MaxInstCount int    // 0 means unbounded
	Insts        []InstanceDescriptor
	Handlers     Handlers
}

// object is the registry's mutable view of a registered descriptor: the
// descriptor's handlers and static metadata plus a live instance map that
// CREATE/DELETE mutate.
type object struct {
	desc  *ObjectDescriptor
	insts map[uint16]*InstanceDescriptor
}

// Registry is the object/instance/resource store the dispatcher resolves
// requests against (§4.4.1/§4.4.2).
type Registry struct {
	mu      sync.RWMutex
	objects map[uint16]*object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[uint16]*object)}
}

// Register adds an object descriptor. Insts slots with IID ==
// coap.IDSentinel are recorded as free slots only and are not added to
// the live instance map.
func (r *Registry) Register(desc *ObjectDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[desc.OID]; exists {
		return ErrObjectExists
	}

	obj := &object{desc: desc, insts: make(map[uint16]*InstanceDescriptor)}
	for i := range desc.Insts {
		inst := desc.Insts[i]
		if inst.IID == coap.IDSentinel {
			continue
		}
		sortResources(inst.Resources)
		obj.insts[inst.IID] = &desc.Insts[i]
	}
	r.objects[desc.OID] = obj
	return nil
}

// Unregister removes an object entirely.
func (r *Registry) Unregister(oid uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objects[oid]; !ok {
		return ErrObjectNotFound
	}
	delete(r.objects, oid)
	return nil
}

// Object returns the descriptor for oid.
func (r *Registry) Object(oid uint16) (*ObjectDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[oid]
	if !ok {
		return nil, false
	}
	return obj.desc, true
}

// Instance returns the instance descriptor for (oid, iid).
func (r *Registry) Instance(oid, iid uint16) (*InstanceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[oid]
	if !ok {
		return nil, false
	}
	inst, ok := obj.insts[iid]
	return inst, ok
}

// OIDs returns all registered object ids, ascending.
func (r *Registry) OIDs() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint16, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InstanceIDs returns the live instance ids for oid, ascending.
func (r *Registry) InstanceIDs(oid uint16) []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[oid]
	if !ok {
		return nil
	}
	ids := make([]uint16, 0, len(obj.insts))
	for id := range obj.insts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CreateInstance adds iid (or lets the object choose one, when hasIID is
// false) by calling the object's InstCreate handler, then records the
// chosen instance in the live map using resources from a template drawn
// from the descriptor's declared Insts (§4.4.7: CREATE with no iid lets
// the object choose).
func (r *Registry) CreateInstance(oid uint16, iid uint16, hasIID bool, resources []ResourceDescriptor) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[oid]
	if !ok {
		return 0, ErrObjectNotFound
	}
	if obj.desc.Handlers.InstCreate == nil {
		return 0, ErrMethodNotAllowed
	}
	if obj.desc.MaxInstCount > 0 && len(obj.insts) >= obj.desc.MaxInstCount {
		return 0, ErrMaxInstancesReached
	}
	if hasIID {
		if _, exists := obj.insts[iid]; exists {
			return 0, ErrInstanceExists
		}
	}

	chosen, err := obj.desc.Handlers.InstCreate(oid, iid, hasIID)
	if err != nil {
		return 0, err
	}
	sortResources(resources)
	obj.insts[chosen] = &InstanceDescriptor{IID: chosen, Resources: resources}
	return chosen, nil
}

// RemoveInstance deletes iid by calling the object's InstDelete handler,
// then removes it from the live map.
func (r *Registry) RemoveInstance(oid, iid uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[oid]
	if !ok {
		return ErrObjectNotFound
	}
	if _, ok := obj.insts[iid]; !ok {
		return ErrInstanceNotFound
	}
	if obj.desc.Handlers.InstDelete == nil {
		return ErrMethodNotAllowed
	}
	if err := obj.desc.Handlers.InstDelete(oid, iid); err != nil {
		return err
	}
	delete(obj.insts, iid)
	return nil
}

func sortResources(res []ResourceDescriptor) {
	sort.Slice(res, func(i, j int) bool { return res[i].RID < res[j].RID })
}
