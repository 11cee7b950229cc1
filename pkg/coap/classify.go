package coap

import (
	"strconv"
)

// buildOptions folds a Message's typed fields back into the generic CoAP
// option list, selecting which query-style options to emit based on
// Operation (§4.1.5, the encoder side of the classification table).
func buildOptions(m *Message) ([]rawOption, error) {
	var opts []rawOption

	for _, seg := range requestPathSegments(m) {
		opts = append(opts, rawOption{Number: OptURIPath, Value: []byte(seg)})
	}

	for _, q := range buildQuery(m) {
		opts = append(opts, rawOption{Number: OptURIQuery, Value: []byte(q)})
	}

	for _, seg := range m.LocationPath {
		opts = append(opts, rawOption{Number: OptLocationPath, Value: []byte(seg)})
	}

	if m.ContentFormat != MediaTypeUndefined {
		opts = append(opts, rawOption{Number: OptContentFormat, Value: encodeUint(uint32(m.ContentFormat))})
	}
	if m.Accept != MediaTypeUndefined {
		opts = append(opts, rawOption{Number: OptAccept, Value: encodeUint(uint32(m.Accept))})
	}
	if len(m.ETag) > 0 {
		opts = append(opts, rawOption{Number: OptETag, Value: m.ETag})
	}
	if m.Observe != nil {
		opts = append(opts, rawOption{Number: OptObserve, Value: encodeUint(*m.Observe)})
	}
	if m.Block1 != nil {
		v, err := encodeBlockValue(*m.Block1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rawOption{Number: OptBlock1, Value: encodeUint(v)})
	}
	if m.Block2 != nil {
		v, err := encodeBlockValue(*m.Block2)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rawOption{Number: OptBlock2, Value: encodeUint(v)})
	}

	return opts, nil
}

// requestPathSegments renders the Uri-Path segments for an outgoing
// request, prefixing the well-known "rd"/"bs" literal for the registration
// and bootstrap interfaces, which are not representable in a numeric Path.
func requestPathSegments(m *Message) []string {
	switch m.Operation {
	case OpRegister:
		return []string{"rd"}
	case OpUpdate, OpDeregister:
		segs := []string{"rd"}
		return append(segs, m.LocationPath...)
	case OpBootstrapRequest:
		return []string{"bs"}
	case OpSendCon, OpSendNon:
		return []string{"dp"}
	default:
		ids := m.URI.Segments()
		segs := make([]string, len(ids))
		for i, id := range ids {
			segs[i] = strconv.FormatUint(uint64(id), 10)
		}
		return segs
	}
}

// buildQuery renders the operation-specific query attribute struct (exactly
// one of which is populated on an outgoing Message) back into Uri-Query
// items.
func buildQuery(m *Message) []string {
	switch {
	case m.Register != nil:
		return EncodeRegisterQuery(*m.Register)
	case m.Bootstrap != nil:
		return EncodeBootstrapQuery(*m.Bootstrap)
	case m.NotifyAttrs != nil:
		return EncodeNotificationQuery(*m.NotifyAttrs)
	case m.Discover != nil && m.Discover.HasDepth:
		return []string{"depth=" + strconv.Itoa(m.Discover.Depth)}
	default:
		return nil
	}
}

// applyOptions folds a decoded raw option list back into a Message's typed
// fields, then classifies its Operation from code + path shape + query +
// payload + observe (§4.1.5).
func applyOptions(m *Message, opts []rawOption, isRequest bool) error {
	var pathSegs, query, locSegs []string
	m.ContentFormat = MediaTypeUndefined
	m.Accept = MediaTypeUndefined

	for _, opt := range opts {
		switch opt.Number {
		case OptURIPath:
			pathSegs = append(pathSegs, string(opt.Value))
		case OptURIQuery:
			query = append(query, string(opt.Value))
		case OptLocationPath:
			locSegs = append(locSegs, string(opt.Value))
		case OptContentFormat:
			v, err := decodeUint(opt.Value)
			if err != nil {
				return err
			}
			m.ContentFormat = MediaType(v)
		case OptAccept:
			v, err := decodeUint(opt.Value)
			if err != nil {
				return err
			}
			m.Accept = MediaType(v)
		case OptETag:
			if len(opt.Value) == 0 || len(opt.Value) > 8 {
				return ErrMalformed
			}
			m.ETag = append([]byte(nil), opt.Value...)
		case OptObserve:
			v, err := decodeUint(opt.Value)
			if err != nil {
				return err
			}
			m.Observe = &v
		case OptBlock1:
			v, err := decodeUint(opt.Value)
			if err != nil {
				return err
			}
			b := decodeBlockValue(v)
			m.Block1 = &b
		case OptBlock2:
			v, err := decodeUint(opt.Value)
			if err != nil {
				return err
			}
			b := decodeBlockValue(v)
			m.Block2 = &b
		case OptURIHost, OptURIPort, OptMaxAge, OptIfMatch, OptIfNoneMatch, OptLocationQuery, OptSize1, OptSize2:
			// carried on the wire but not meaningful to the LwM2M layer.
		}
	}

	if len(locSegs) > MaxLocationPaths {
		return ErrTooManyLocationPaths
	}
	m.LocationPath = locSegs

	isRD := len(pathSegs) > 0 && pathSegs[0] == "rd"
	isBS := len(pathSegs) > 0 && pathSegs[0] == "bs"
	isDP := len(pathSegs) > 0 && pathSegs[0] == "dp"

	var path Path
	var err error
	if isRD || isBS || isDP {
		// "rd"/"bs"/"dp" is a literal well-known segment, not a numeric id;
		// the remaining segments (if any, e.g. rd's registration-location
		// echo) carry no further LwM2M path meaning for a request.
		path = Path{}
	} else {
		path, err = pathFromSegments(pathSegs)
		if err != nil {
			return err
		}
	}
	m.URI = path

	if isRequest {
		confirmable := m.UDP != nil && m.UDP.Type == TypeCON
		op, err := classifyRequest(m.Code, path, len(pathSegs), isRD, isBS, isDP, confirmable, query, m.Observe, len(m.Payload) > 0, m.Accept)
		if err != nil {
			return err
		}
		m.Operation = op
		if err := attachQueryAttrs(m, op, query); err != nil {
			return err
		}
	} else {
		m.Operation = classifyResponse(m.Code, m.Observe != nil, locSegs)
		if len(locSegs) >= 2 && m.Operation == OpResponse {
			oid, err1 := strconv.ParseUint(locSegs[0], 10, 16)
			iid, err2 := strconv.ParseUint(locSegs[1], 10, 16)
			if err1 == nil && err2 == nil {
				m.Created = &CreatedAttrs{OID: uint16(oid), IID: uint16(iid)}
			}
		}
	}

	return nil
}

func pathFromSegments(segs []string) (Path, error) {
	if len(segs) == 0 {
		return Path{}, nil
	}
	if len(segs) > MaxPathLen {
		return Path{}, ErrURITooLong
	}
	ids := make([]uint16, len(segs))
	for i, s := range segs {
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil || n == uint64(IDSentinel) {
			return Path{}, ErrMalformed
		}
		ids[i] = uint16(n)
	}
	return NewPath(ids...)
}

// classifyRequest derives the LwM2M Operation for an incoming request from
// its method code, URI shape, query parameters, the Observe option's value,
// and whether a payload was carried (§4.1.5). observe is nil when the
// option was absent, 0 to start observing, and 1 to cancel (any other
// decoded value is treated as "observe present" per the same start/cancel
// rule, since only 0 and 1 are defined on the wire). rawDepth is the number
// of raw path segments (including a leading "rd"/"bs" literal, which
// uri.Len() cannot see since Path only stores numeric ids).
func classifyRequest(code Code, uri Path, rawDepth int, isRD, isBS, isDP, confirmable bool, query []string, observe *uint32, hasPayload bool, accept MediaType) (Operation, error) {
	root := rawDepth == 0
	depth := uri.Len()
	cancel := observe != nil && *observe == 1

	switch code {
	case CodeGET:
		if root {
			return OpBootstrapPackRequest, nil
		}
		if observe != nil {
			if cancel {
				return OpCancelObserve, nil
			}
			return OpObserve, nil
		}
		if accept == MediaTypeLinkFormat {
			return OpDiscover, nil
		}
		return OpRead, nil

	case CodeFETCH:
		if observe != nil {
			if cancel {
				return OpCancelObserveComposite, nil
			}
			return OpObserveComposite, nil
		}
		return OpReadComposite, nil

	case CodeIPATCH:
		return OpWriteComposite, nil

	case CodePUT:
		if hasAttrQuery(query) {
			return OpWriteAttr, nil
		}
		if depth == 1 {
			return OpWritePartial, nil
		}
		if hasPayload {
			return OpWriteReplace, nil
		}
		return OpWritePartial, nil

	case CodePOST:
		if isDP {
			if confirmable {
				return OpSendCon, nil
			}
			return OpSendNon, nil
		}
		if root {
			return OpBootstrapFinish, nil
		}
		if isRD {
			if rawDepth == 1 {
				return OpRegister, nil
			}
			return OpUpdate, nil
		}
		if isBS {
			// the client's Bootstrap-Request always names its endpoint;
			// the server's Bootstrap-Finish is a bare POST /bs.
			for _, q := range query {
				if name, _, _ := parseQueryItem(q); name == "ep" {
					return OpBootstrapRequest, nil
				}
			}
			return OpBootstrapFinish, nil
		}
		switch depth {
		case 1:
			return OpCreate, nil
		case 2, 3:
			return OpExecute, nil
		default:
			return OpWritePartial, nil
		}

	case CodeDELETE:
		if isRD {
			return OpDeregister, nil
		}
		return OpDelete, nil

	default:
		return OpUnknown, ErrMalformed
	}
}

// attachQueryAttrs decodes the query-parameter struct relevant to the
// classified Operation, leaving the others nil.
func attachQueryAttrs(m *Message, op Operation, query []string) error {
	switch op {
	case OpRegister, OpUpdate:
		a, err := ParseRegisterAttrs(query)
		if err != nil {
			return err
		}
		m.Register = &a
	case OpBootstrapRequest:
		a, err := ParseBootstrapAttrs(query)
		if err != nil {
			return err
		}
		m.Bootstrap = &a
	case OpWriteAttr:
		a, err := ParseNotificationAttrs(query)
		if err != nil {
			return err
		}
		m.NotifyAttrs = &a
	case OpDiscover:
		a, err := ParseDiscoverAttrs(query)
		if err != nil {
			return err
		}
		m.Discover = &a
	}
	return nil
}

func hasAttrQuery(query []string) bool {
	for _, q := range query {
		name, _, _ := parseQueryItem(q)
		switch name {
		case "pmin", "pmax", "gt", "lt", "st", "epmin", "epmax", "edge", "con", "hqmax":
			return true
		}
	}
	return false
}

// classifyResponse derives the Operation for an incoming response from its
// response code and whether it carries an Observe option (a notification)
// or a two-segment Location-Path (a Create response, §4.1.5).
func classifyResponse(code Code, hasObserve bool, locSegs []string) Operation {
	switch code {
	case CodeEmpty:
		return OpEmpty
	}
	if code.Class() == 0 {
		return OpUnknown
	}
	if hasObserve {
		return OpNotifyCon
	}
	return OpResponse
}

