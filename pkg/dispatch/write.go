package dispatch

import "github.com/lindqvist-iot/lwm2m/pkg/content"

// Writer drives a (possibly block-wise) WRITE against a single resolved
// leaf (§4.4.5). Non-chunked resources (int/uint/double/bool/objlnk/time)
// are written in one call with FullLengthHint already known; byte/string
// resources delivered across Block1 chunks are written incrementally, one
// ChunkedValue per block, with Offset tracking the position within the
// full value.
type Writer struct {
	registry *Registry
	leaf     ReadLeaf
	offset   int
}

// NewWriter prepares a Writer for the single leaf t resolves to. t must
// address a resource (or resource instance); composite/multi-leaf writes
// are driven by the composite.go plan instead.
func NewWriter(r *Registry, t Target) (*Writer, error) {
	if t.Resource == nil {
		return nil, ErrNotAtomic
	}
	riid, hasRIID := t.RIID, t.HasRIID
	return &Writer{
		registry: r,
		leaf:     ReadLeaf{OID: t.Object.OID, IID: t.Instance.IID, RID: t.Resource.RID, RIID: riid, HasRIID: hasRIID},
	}, nil
}

// WriteValue performs a single-shot, non-chunked write of a typed value
// (§4.4.5: everything but byte/string resources delivered via Block1).
func (w *Writer) WriteValue(v content.Value) error {
	obj, ok := w.registry.Object(w.leaf.OID)
	if !ok {
		return ErrObjectNotFound
	}
	if obj.Handlers.ResWrite == nil {
		return ErrMethodNotAllowed
	}
	chunk := ChunkedValue{Data: valueBytes(v), FullLengthHint: len(valueBytes(v))}
	return obj.Handlers.ResWrite(w.leaf.OID, w.leaf.IID, w.leaf.RID, w.leaf.RIID, w.leaf.HasRIID, chunk)
}

// WriteChunk feeds one Block1 chunk of a byte/string resource to the
// object's ResWrite handler, tagging it with this Writer's running offset
// (§4.4.5). fullLengthHint is 0 until the final chunk, at which point the
// caller passes the now-known total length.
func (w *Writer) WriteChunk(data []byte, lastBlock bool, fullLengthHint int) error {
	obj, ok := w.registry.Object(w.leaf.OID)
	if !ok {
		return ErrObjectNotFound
	}
	if obj.Handlers.ResWrite == nil {
		return ErrMethodNotAllowed
	}
	hint := 0
	if lastBlock {
		hint = fullLengthHint
	}
	chunk := ChunkedValue{
		Data:           data,
		Offset:         w.offset,
		ChunkLength:    len(data),
		FullLengthHint: hint,
	}
	if err := obj.Handlers.ResWrite(w.leaf.OID, w.leaf.IID, w.leaf.RID, w.leaf.RIID, w.leaf.HasRIID, chunk); err != nil {
		return err
	}
	w.offset += len(data)
	return nil
}

// valueBytes renders the raw bytes carried by a typed Value's byte/string
// field, for resources where WriteValue is used directly instead of
// block-wise chunking (values small enough to never need Block1).
func valueBytes(v content.Value) []byte {
	switch v.Kind {
	case content.KindBytes:
		return v.Bytes
	case content.KindString:
		return []byte(v.Str)
	default:
		return nil
	}
}

// WriteBytesChunked copies a chunk's bytes into dst at chunk.Offset,
// rejecting overflow of dst's capacity (§4.4.5 helper). dst must already be
// sized to the full value once FullLengthHint is known; callers typically
// grow dst to FullLengthHint as soon as it is reported.
func WriteBytesChunked(dst []byte, chunk ChunkedValue) error {
	end := chunk.Offset + chunk.ChunkLength
	if end > len(dst) {
		return ErrChunkOverflow
	}
	copy(dst[chunk.Offset:end], chunk.Data)
	return nil
}

// WriteStringChunked copies a chunk's bytes into dst at chunk.Offset and,
// once the final chunk is known (chunk.FullLengthHint != 0), appends a NUL
// terminator — dst must be sized to FullLengthHint+1 in that case.
func WriteStringChunked(dst []byte, chunk ChunkedValue) error {
	end := chunk.Offset + chunk.ChunkLength
	limit := len(dst)
	if chunk.FullLengthHint != 0 {
		limit--
	}
	if end > limit {
		return ErrChunkOverflow
	}
	copy(dst[chunk.Offset:end], chunk.Data)
	if chunk.FullLengthHint != 0 {
		dst[chunk.FullLengthHint] = 0
	}
	return nil
}
