package lwm2m

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
	"github.com/lindqvist-iot/lwm2m/pkg/dispatch"
)

// lineRegistry is a content.Registry test double (testpair.go convention
// carried from pkg/session/testpair.go and pkg/exchange/testpair.go): it
// renders/parses one newline-terminated, comma-separated record per Value
// rather than a real TLV/SenML codec, since pkg/content ships no concrete
// implementation of its own. It answers every MediaType the same way; this
// module's tests only ever ask for MediaTypeText.
type lineRegistry struct{}

func (lineRegistry) NewEncoder(format coap.MediaType) (content.Encoder, error) {
	return &lineEncoder{format: format}, nil
}

func (lineRegistry) NewDecoder(format coap.MediaType) (content.Decoder, error) {
	return &lineDecoder{format: format}, nil
}

type lineEncoder struct {
	format coap.MediaType
	buf    []byte
}

func (e *lineEncoder) Format() coap.MediaType { return e.format }

func (e *lineEncoder) PutValue(v content.Value) error {
	e.buf = append(e.buf, encodeLine(v)...)
	return nil
}

func (e *lineEncoder) Bytes() []byte { return e.buf }

func (e *lineEncoder) Reset(n int) { e.buf = append([]byte(nil), e.buf[n:]...) }

func (e *lineEncoder) Finish() ([]byte, error) { return nil, nil }

type lineDecoder struct {
	format coap.MediaType
	buf    []byte
}

func (d *lineDecoder) Format() coap.MediaType { return d.format }

func (d *lineDecoder) Feed(data []byte) { d.buf = append(d.buf, data...) }

func (d *lineDecoder) Next() (content.Value, error) {
	idx := bytes.IndexByte(d.buf, '\n')
	if idx < 0 {
		return content.Value{}, content.ErrNeedMoreData
	}
	line := d.buf[:idx]
	d.buf = d.buf[idx+1:]
	return parseLine(string(line))
}

func (d *lineDecoder) Done() bool { return len(d.buf) == 0 }

// encodeLine renders "oid/iid/rid[/riid]|kind|value\n". Only the fields
// this module's tests exercise (string, int, path-only) are covered.
func encodeLine(v content.Value) []byte {
	var b strings.Builder
	b.WriteString(v.Path.String())
	b.WriteByte('|')
	switch v.Kind {
	case content.KindString:
		b.WriteString("s|")
		b.WriteString(v.Str)
	case content.KindInt:
		b.WriteString("i|")
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case content.KindUint:
		b.WriteString("u|")
		b.WriteString(strconv.FormatUint(v.Uint, 10))
	case content.KindBool:
		b.WriteString("b|")
		b.WriteString(strconv.FormatBool(v.Bool))
	default:
		b.WriteString("p|")
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func parseLine(line string) (content.Value, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return content.Value{}, fmt.Errorf("lwm2m: malformed test record %q", line)
	}
	p, err := parsePath(parts[0])
	if err != nil {
		return content.Value{}, err
	}
	v := content.Value{Path: p}
	switch parts[1] {
	case "s":
		v.Kind = content.KindString
		v.Str = parts[2]
	case "i":
		v.Kind = content.KindInt
		n, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return content.Value{}, err
		}
		v.Int = n
	case "u":
		v.Kind = content.KindUint
		n, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return content.Value{}, err
		}
		v.Uint = n
	case "b":
		v.Kind = content.KindBool
		n, err := strconv.ParseBool(parts[2])
		if err != nil {
			return content.Value{}, err
		}
		v.Bool = n
	default:
		v.Kind = content.KindUnknown
	}
	return v, nil
}

func parsePath(s string) (coap.Path, error) {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return coap.NewPath()
	}
	segs := strings.Split(s, "/")
	ids := make([]uint16, 0, len(segs))
	for _, seg := range segs {
		n, err := strconv.ParseUint(seg, 10, 16)
		if err != nil {
			return coap.Path{}, err
		}
		ids = append(ids, uint16(n))
	}
	return coap.NewPath(ids...)
}

// testDevice backs a minimal object 3 (Device) instance 0 used by
// client_test.go: rid 0 is a read-only "manufacturer" string, rid 1 a
// read-write int counter.
type testDevice struct {
	manufacturer string
	counter      int64
}

// newTestRegistry returns a *dispatch.Registry exposing one object-3
// instance backed by dev, enough to exercise a server-initiated READ and
// WRITE without a real application data model.
func newTestRegistry(dev *testDevice) *dispatch.Registry {
	reg := dispatch.NewRegistry()
	resources := []dispatch.ResourceDescriptor{
		{RID: 0, Type: content.KindString, Operation: dispatch.OpR},
		{RID: 1, Type: content.KindInt, Operation: dispatch.OpRW},
	}
	_ = reg.Register(&dispatch.ObjectDescriptor{
		OID:   3,
		Insts: []dispatch.InstanceDescriptor{{IID: 0, Resources: resources}},
		Handlers: dispatch.Handlers{
			ResRead: func(oid, iid, rid, riid uint16, hasRIID bool) (content.Value, error) {
				switch rid {
				case 0:
					return content.Value{Kind: content.KindString, Str: dev.manufacturer}, nil
				case 1:
					return content.Value{Kind: content.KindInt, Int: dev.counter}, nil
				default:
					return content.Value{}, dispatch.ErrResourceNotFound
				}
			},
			ResWrite: func(oid, iid, rid, riid uint16, hasRIID bool, chunk dispatch.ChunkedValue) error {
				return nil
			},
		},
	})
	return reg
}
