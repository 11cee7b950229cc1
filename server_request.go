package lwm2m

import (
	"fmt"
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
	"github.com/lindqvist-iot/lwm2m/pkg/dispatch"
	"github.com/lindqvist-iot/lwm2m/pkg/exchange"
	"github.com/lindqvist-iot/lwm2m/pkg/observe"
	"github.com/lindqvist-iot/lwm2m/pkg/session"
)

// securityOID and serverOID are the Security and Server object ids whose
// instances only a Bootstrap-Server (while Bootstrapping) may create or
// write; any other server doing so is rejected (§4.5.3, §4.4.7).
const (
	securityOID uint16 = 0
	serverOID   uint16 = 1
)

func isBootstrapProtectedOID(oid uint16) bool {
	return oid == securityOID || oid == serverOID
}

// defaultAccept is the content-format assumed for a READ/DISCOVER/OBSERVE
// request that carries no Accept option, and for notifications whose
// subscribing request didn't pin one either.
const defaultAccept = coap.MediaTypeTLV

// handleServerRequest dispatches one server-initiated request to the data
// model (§4.4, §6.4): resolve the path, check operation compatibility, then
// branch on the classified Operation. A resolution or compatibility failure
// short-circuits straight to an error response without touching any
// handler, matching §4.2.6's "new_server_request already carries an error
// response code" fast path.
func (c *Client) handleServerRequest(now time.Time, msg *coap.Message) {
	if err := c.checkBootstrapProtection(msg); err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}

	target, err := c.registry.Resolve(msg.URI)
	if err != nil {
		var ok bool
		target, ok = c.autoCreateForBootstrap(msg, err)
		if !ok {
			c.sendErrorResponse(msg, dispatch.ResponseCode(err))
			return
		}
	}
	if err := dispatch.CheckOperationCompat(msg.Operation, target.Resource); err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}

	switch msg.Operation {
	case coap.OpRead, coap.OpReadComposite:
		c.handleRead(msg, target)
	case coap.OpDiscover:
		c.handleDiscover(msg, target)
	case coap.OpWriteReplace, coap.OpWritePartial, coap.OpWriteComposite:
		c.handleWrite(msg, target)
	case coap.OpWriteAttr:
		c.handleWriteAttr(msg, target)
	case coap.OpExecute:
		c.handleExecute(msg, target)
	case coap.OpCreate:
		c.handleCreate(now, msg)
	case coap.OpDelete:
		c.handleDelete(now, msg, target)
	case coap.OpObserve, coap.OpObserveComposite:
		c.handleObserve(now, msg, target)
	case coap.OpCancelObserve, coap.OpCancelObserveComposite:
		c.handleCancelObserve(msg)
	case coap.OpBootstrapFinish:
		c.handleBootstrapFinish(now, msg)
	default:
		c.sendErrorResponse(msg, coap.CodeNotImplemented)
	}
}

// handleRead drives a (possibly streaming) READ/READ_COMP to completion,
// resuming a Block2 transfer already in flight for this token (§4.4.4).
func (c *Client) handleRead(msg *coap.Message, target dispatch.Target) {
	if c.content == nil {
		c.sendErrorResponse(msg, coap.CodeInternalServerError)
		return
	}
	key := string(msg.Token)
	pr, ok := c.pendingReads[key]
	if !ok {
		format := msg.Accept
		if format == coap.MediaTypeUndefined {
			format = defaultAccept
		}
		enc, err := c.content.NewEncoder(format)
		if err != nil {
			c.sendErrorResponse(msg, coap.CodeNotAcceptable)
			return
		}
		pr = &pendingRead{reader: c.registry.NewReader(target), enc: enc, size: c.defaultBlockSize()}
		c.pendingReads[key] = pr
	}

	stepErr := pr.reader.Step(pr.enc, c.readBudget)
	if stepErr != nil && stepErr != dispatch.ErrBlockTransferNeeded {
		delete(c.pendingReads, key)
		c.sendErrorResponse(msg, dispatch.ResponseCode(stepErr))
		return
	}

	if stepErr == dispatch.ErrBlockTransferNeeded {
		chunk := pr.enc.Bytes()
		block := coap.Block{Number: pr.blockNum, Size: c.negotiateBlockSize(pr, msg.Block2), More: true}
		c.sendResponse(msg, coap.CodeContent, pr.enc.Format(), chunk, &block)
		pr.enc.Reset(len(chunk))
		pr.blockNum++
		return
	}

	tail, err := pr.enc.Finish()
	delete(c.pendingReads, key)
	if err != nil {
		c.sendErrorResponse(msg, coap.CodeInternalServerError)
		return
	}
	payload := append(pr.enc.Bytes(), tail...)
	var block *coap.Block
	if pr.blockNum > 0 {
		b := coap.Block{Number: pr.blockNum, Size: c.negotiateBlockSize(pr, msg.Block2), More: false}
		block = &b
	}
	c.sendResponse(msg, coap.CodeContent, pr.enc.Format(), payload, block)
}

// handleDiscover renders and sends the link-format document for a
// DISCOVER request (§4.4.7); small enough in practice to never need
// Block2 chunking across the object counts this module targets.
func (c *Client) handleDiscover(msg *coap.Message, target dispatch.Target) {
	depth := 0
	if msg.Discover != nil && msg.Discover.HasDepth {
		depth = msg.Discover.Depth
	}
	doc := c.registry.Discover(target, c.ssid, depth, c.attrs)
	c.sendResponse(msg, coap.CodeContent, coap.MediaTypeLinkFormat, []byte(doc), nil)
}

// handleWrite drives a (possibly Block1 chunked) WRITE/WRITE_COMP
// (§4.4.5). Each chunk is fed to a fresh decoder and written through
// dispatch.Writer as it's decoded, buffering across Block1 continuations
// via pendingWrites keyed by token. This assumes each Block1 chunk aligns
// on a value boundary in the negotiated content format, true for the
// small, single-value writes this module's example objects use; a
// decoder that needs bytes spanning a block boundary is a known gap, see
// DESIGN.md.
func (c *Client) handleWrite(msg *coap.Message, target dispatch.Target) {
	if c.content == nil {
		c.sendErrorResponse(msg, coap.CodeInternalServerError)
		return
	}
	key := string(msg.Token)
	pw, ok := c.pendingWrites[key]
	if !ok {
		w, err := dispatch.NewWriter(c.registry, target)
		if err != nil {
			c.writeCompositeOrError(msg, target)
			return
		}
		pw = &pendingWrite{writer: w, format: msg.ContentFormat}
		if msg.Block1 != nil {
			c.pendingWrites[key] = pw
		}
	}

	dec, err := c.content.NewDecoder(pw.format)
	if err != nil {
		delete(c.pendingWrites, key)
		c.sendErrorResponse(msg, coap.CodeUnsupportedFormat)
		return
	}
	dec.Feed(msg.Payload)
	for {
		v, verr := dec.Next()
		if verr == content.ErrNeedMoreData {
			break
		}
		if verr != nil {
			delete(c.pendingWrites, key)
			c.sendErrorResponse(msg, coap.CodeBadRequest)
			return
		}
		if err := pw.writer.WriteValue(v); err != nil {
			delete(c.pendingWrites, key)
			c.sendErrorResponse(msg, dispatch.ResponseCode(err))
			return
		}
		if dec.Done() {
			break
		}
	}

	if msg.Block1 != nil && msg.Block1.More {
		c.sendResponse(msg, coap.CodeContinue, coap.MediaTypeUndefined, nil, msg.Block1)
		return
	}

	delete(c.pendingWrites, key)
	c.DataModelChanged(msg.URI, false, false)
	c.sendResponse(msg, coap.CodeChanged, coap.MediaTypeUndefined, nil, nil)
}

// writeCompositeOrError drives a WRITE_COMP over multiple paths decoded
// from the request payload (§4.4.6), or reports the atomic-write error a
// single-leaf Writer rejected for a non-composite request.
func (c *Client) writeCompositeOrError(msg *coap.Message, target dispatch.Target) {
	if msg.Operation != coap.OpWriteComposite || c.content == nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(dispatch.ErrNotAtomic))
		return
	}
	dec, err := c.content.NewDecoder(msg.ContentFormat)
	if err != nil {
		c.sendErrorResponse(msg, coap.CodeUnsupportedFormat)
		return
	}
	dec.Feed(msg.Payload)
	var items []dispatch.CompositeWriteItem
	for {
		v, verr := dec.Next()
		if verr == content.ErrNeedMoreData {
			break
		}
		if verr != nil {
			c.sendErrorResponse(msg, coap.CodeBadRequest)
			return
		}
		items = append(items, dispatch.CompositeWriteItem{Path: v.Path, Value: v})
		if dec.Done() {
			break
		}
	}
	err = c.registry.WriteComposite(items, func(t dispatch.Target, v content.Value) error {
		w, werr := dispatch.NewWriter(c.registry, t)
		if werr != nil {
			return werr
		}
		return w.WriteValue(v)
	})
	if err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}
	c.sendResponse(msg, coap.CodeChanged, coap.MediaTypeUndefined, nil, nil)
}

// handleWriteAttr stores the write-attributes a WRITE_ATTR request carries
// (§4.1.6, §4.4.7, §4.6.1).
func (c *Client) handleWriteAttr(msg *coap.Message, target dispatch.Target) {
	if msg.NotifyAttrs == nil {
		c.sendErrorResponse(msg, coap.CodeBadRequest)
		return
	}
	c.attrs.SetAttrs(c.ssid, msg.URI, *msg.NotifyAttrs)
	c.sendResponse(msg, coap.CodeChanged, coap.MediaTypeUndefined, nil, nil)
}

// handleExecute invokes a resource's EXECUTE handler (§4.4.1).
func (c *Client) handleExecute(msg *coap.Message, target dispatch.Target) {
	if target.Object == nil || target.Instance == nil || target.Resource == nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(dispatch.ErrNotAtomic))
		return
	}
	if target.Object.Handlers.ResExecute == nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(dispatch.ErrMethodNotAllowed))
		return
	}
	err := target.Object.Handlers.ResExecute(target.Object.OID, target.Instance.IID, target.Resource.RID, msg.Payload)
	if err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}
	c.sendResponse(msg, coap.CodeChanged, coap.MediaTypeUndefined, nil, nil)
}

// handleCreate decodes the payload's resource values into a freshly
// created instance (§4.4.7). The new instance's resource schema is copied
// from the object's first declared template instance, since the wire
// payload itself carries only values, not a schema.
func (c *Client) handleCreate(now time.Time, msg *coap.Message) {
	oid, ok := msg.URI.OID()
	if !ok {
		c.sendErrorResponse(msg, coap.CodeBadRequest)
		return
	}
	obj, ok := c.registry.Object(oid)
	if !ok {
		c.sendErrorResponse(msg, coap.CodeNotFound)
		return
	}
	var template []dispatch.ResourceDescriptor
	if len(obj.Insts) > 0 {
		template = append([]dispatch.ResourceDescriptor(nil), obj.Insts[0].Resources...)
	}
	iid, hasIID := msg.URI.IID()
	chosen, err := c.registry.CreateInstance(oid, iid, hasIID, template)
	if err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}

	if len(msg.Payload) > 0 && c.content != nil {
		if dec, derr := c.content.NewDecoder(msg.ContentFormat); derr == nil {
			dec.Feed(msg.Payload)
			for done := false; !done; {
				v, verr := dec.Next()
				if verr != nil {
					break
				}
				done = dec.Done()
				rid, hasRID := v.Path.RID()
				if !hasRID {
					continue
				}
				t, terr := c.registry.Resolve(mustPath(oid, chosen, rid))
				if terr != nil {
					continue
				}
				if w, werr := dispatch.NewWriter(c.registry, t); werr == nil {
					_ = w.WriteValue(v)
				}
			}
		}
	}

	path, _ := coap.NewPath(oid, chosen)
	c.DataModelChanged(path, true, false)
	resp := &coap.Message{
		Operation:    coap.OpResponse,
		Code:         coap.CodeCreated,
		Token:        msg.Token,
		LocationPath: []string{fmt.Sprint(oid), fmt.Sprint(chosen)},
	}
	c.sendRaw(msg, resp)
}

func mustPath(ids ...uint16) coap.Path {
	p, _ := coap.NewPath(ids...)
	return p
}

// handleDelete removes an instance via the transactional RunMutation path
// (§4.4.3, §4.4.7) and drops any observations tied to it.
func (c *Client) handleDelete(now time.Time, msg *coap.Message, target dispatch.Target) {
	oid, hasOID := msg.URI.OID()
	iid, hasIID := msg.URI.IID()
	if !hasOID || !hasIID {
		c.sendErrorResponse(msg, dispatch.ResponseCode(dispatch.ErrNotAtomic))
		return
	}
	err := c.registry.RunMutation([]uint16{oid}, func() error {
		return c.registry.RemoveInstance(oid, iid)
	})
	if err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}
	c.DataModelChanged(msg.URI, false, true)
	c.sendResponse(msg, coap.CodeDeleted, coap.MediaTypeUndefined, nil, nil)
}

// handleObserve begins tracking an observation and sends its initial
// notify, immediately, as the OBSERVE request's own response (§4.6.1,
// §4.6.2: "the first notification is the GET response itself, Observe
// option value 0").
func (c *Client) handleObserve(now time.Time, msg *coap.Message, target dispatch.Target) {
	if c.content == nil {
		c.sendErrorResponse(msg, coap.CodeInternalServerError)
		return
	}
	format := msg.Accept
	if format == coap.MediaTypeUndefined {
		format = defaultAccept
	}

	var paths []coap.Path
	if msg.Operation == coap.OpObserveComposite {
		p, err := decodeCompositePaths(c.content, msg)
		if err != nil {
			c.sendErrorResponse(msg, coap.CodeBadRequest)
			return
		}
		paths = p
	} else {
		paths = []coap.Path{msg.URI}
	}

	values := make([]content.Value, 0, len(paths))
	for _, p := range paths {
		v, err := c.readPathValue(p)
		if err != nil {
			c.sendErrorResponse(msg, dispatch.ResponseCode(err))
			return
		}
		values = append(values, v)
		rec := &observe.Record{
			SSID:           c.ssid,
			Path:           p,
			Token:          msg.Token,
			AttrsEffective: c.attrs.Effective(c.ssid, p),
			ObserveActive:  true,
			Accept:         format,
		}
		_ = c.observations.Add(rec)
		rec.MarkSent(now, v)
	}
	if len(paths) > 1 {
		c.composites.Add(&observe.Composite{SSID: c.ssid, Token: msg.Token, Paths: paths})
	}

	payload, err := c.encodeValues(format, values)
	if err != nil {
		c.sendErrorResponse(msg, coap.CodeInternalServerError)
		return
	}
	zero := uint32(0)
	resp := &coap.Message{
		Operation:     coap.OpResponse,
		Code:          coap.CodeContent,
		Token:         msg.Token,
		ContentFormat: format,
		Payload:       payload,
		Observe:       &zero,
	}
	c.sendRaw(msg, resp)
}

// handleCancelObserve drops the observation(s) sharing the request's token
// and responds with the resource's current value, as a plain READ would
// (§4.6.1: cancel-observe is a GET with the Observe option set to 1,
// answered exactly like a READ).
func (c *Client) handleCancelObserve(msg *coap.Message) {
	c.observations.Cancel(c.ssid, msg.Token)
	c.composites.Remove(c.ssid, msg.Token)
	target, err := c.registry.Resolve(msg.URI)
	if err != nil {
		c.sendErrorResponse(msg, dispatch.ResponseCode(err))
		return
	}
	c.handleRead(msg, target)
}

// handleBootstrapFinish validates that a usable Security/Server pair now
// exists and transitions the session out of Bootstrapping (§4.5.1,
// §4.3.4). This is the device's only hook into bootstrap validity; the
// bootstrap server's own behavior (which instances it wrote) is outside
// this module.
func (c *Client) handleBootstrapFinish(now time.Time, msg *coap.Message) {
	valid := c.hasUsableServerInstance()
	c.sendResponse(msg, coap.CodeChanged, coap.MediaTypeUndefined, nil, nil)
	c.session.OnBootstrapFinish(valid)
}

// checkBootstrapProtection rejects a mutating request against the
// Security/Server objects unless the session is currently Bootstrapping
// (§4.5.3): those objects are the Bootstrap-Server's exclusive territory,
// never a normal server's.
func (c *Client) checkBootstrapProtection(msg *coap.Message) error {
	if c.session.Status() == session.StatusBootstrapping {
		return nil
	}
	oid, ok := msg.URI.OID()
	if !ok || !isBootstrapProtectedOID(oid) {
		return nil
	}
	switch msg.Operation {
	case coap.OpWriteReplace, coap.OpWritePartial, coap.OpWriteComposite, coap.OpCreate, coap.OpDelete:
		return dispatch.ErrBootstrapProtected
	default:
		return nil
	}
}

// autoCreateForBootstrap creates the Security/Server instance a
// Bootstrap-Server's WRITE addresses when it doesn't exist yet, copying
// the resource schema from the object's registered template instance
// (§4.5.3, scenario S5: the bootstrap interface populates these objects
// from nothing). It reports whether it created (and resolved) a target;
// any other resolve failure is left to the caller to report as-is.
func (c *Client) autoCreateForBootstrap(msg *coap.Message, resolveErr error) (dispatch.Target, bool) {
	if c.session.Status() != session.StatusBootstrapping || resolveErr != dispatch.ErrInstanceNotFound {
		return dispatch.Target{}, false
	}
	switch msg.Operation {
	case coap.OpWriteReplace, coap.OpWritePartial, coap.OpWriteComposite:
	default:
		return dispatch.Target{}, false
	}
	oid, hasOID := msg.URI.OID()
	iid, hasIID := msg.URI.IID()
	if !hasOID || !hasIID || !isBootstrapProtectedOID(oid) {
		return dispatch.Target{}, false
	}
	obj, ok := c.registry.Object(oid)
	if !ok {
		return dispatch.Target{}, false
	}
	var template []dispatch.ResourceDescriptor
	if len(obj.Insts) > 0 {
		template = append([]dispatch.ResourceDescriptor(nil), obj.Insts[0].Resources...)
	}
	if _, err := c.registry.CreateInstance(oid, iid, true, template); err != nil {
		return dispatch.Target{}, false
	}
	target, err := c.registry.Resolve(msg.URI)
	if err != nil {
		return dispatch.Target{}, false
	}
	c.DataModelChanged(msg.URI, true, false)
	return target, true
}

func (c *Client) hasUsableServerInstance() bool {
	_, securityOK := c.registry.Object(0)
	_, serverOK := c.registry.Object(1)
	if !securityOK || !serverOK {
		return false
	}
	return len(c.registry.InstanceIDs(1)) > 0
}

func (c *Client) readPathValue(p coap.Path) (content.Value, error) {
	t, err := c.registry.Resolve(p)
	if err != nil {
		return content.Value{}, err
	}
	if t.Object == nil || t.Instance == nil || t.Resource == nil {
		return content.Value{}, dispatch.ErrNotAtomic
	}
	if t.Object.Handlers.ResRead == nil {
		return content.Value{}, dispatch.ErrMethodNotAllowed
	}
	v, err := t.Object.Handlers.ResRead(t.Object.OID, t.Instance.IID, t.Resource.RID, t.RIID, t.HasRIID)
	if err != nil {
		return content.Value{}, err
	}
	v.Path = p
	return v, nil
}

func (c *Client) encodeValues(format coap.MediaType, values []content.Value) ([]byte, error) {
	enc, err := c.content.NewEncoder(format)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := enc.PutValue(v); err != nil {
			return nil, err
		}
	}
	tail, err := enc.Finish()
	if err != nil {
		return nil, err
	}
	return append(enc.Bytes(), tail...), nil
}

// decodeCompositePaths extracts the list of observed paths from an
// OBSERVE_COMP request body (§4.6.3): the payload names paths, carrying no
// values, so only Value.Path out of each decoded entry is meaningful.
func decodeCompositePaths(reg content.Registry, msg *coap.Message) ([]coap.Path, error) {
	dec, err := reg.NewDecoder(msg.ContentFormat)
	if err != nil {
		return nil, err
	}
	dec.Feed(msg.Payload)
	var paths []coap.Path
	for {
		v, verr := dec.Next()
		if verr != nil {
			break
		}
		paths = append(paths, v.Path)
		if dec.Done() {
			break
		}
	}
	if len(paths) == 0 {
		return nil, coap.ErrMalformed
	}
	return paths, nil
}

// defaultBlockSize is the largest Block2 chunk this client offers when the
// peer's GET doesn't propose one.
func (c *Client) defaultBlockSize() coap.BlockSize { return coap.BlockSize(1024) }

// negotiateBlockSize resolves the Block2 size for the next chunk of pr's
// transfer, clamping to min(the size already in use for this transfer,
// the peer's newly proposed size): like Assembler.Append on the Block1
// side, a size may only shrink across a transfer, never grow back up once
// a smaller one was accepted (RFC 7959 Section 2.5).
func (c *Client) negotiateBlockSize(pr *pendingRead, proposed *coap.Block) coap.BlockSize {
	if proposed == nil {
		return pr.size
	}
	pr.size = exchange.NegotiateSize(proposed.Size, pr.size)
	return pr.size
}

// sendResponse builds and sends a piggybacked (or separate, for a NON
// request) response to msg.
func (c *Client) sendResponse(req *coap.Message, code coap.Code, format coap.MediaType, payload []byte, block2 *coap.Block) {
	resp := &coap.Message{
		Operation: coap.OpResponse,
		Code:      code,
		Token:     req.Token,
	}
	if len(payload) > 0 {
		resp.ContentFormat = format
		resp.Payload = payload
	}
	resp.Block2 = block2
	c.sendRaw(req, resp)
}

func (c *Client) sendErrorResponse(req *coap.Message, code coap.Code) {
	c.sendResponse(req, code, coap.MediaTypeUndefined, nil, nil)
}

// sendRaw encodes resp as the UDP-bound reply to req (piggybacked ACK for
// a CON request, a fresh NON message otherwise) and hands it to the
// transport once, with no retransmission: the requester retransmits its
// own request if this reply is lost, and handleServerRequest/handleRead's
// pendingReads/pendingWrites state lets that retransmission be answered
// again from the same point (§4.2.4, §4.2.6).
func (c *Client) sendRaw(req *coap.Message, resp *coap.Message) {
	if req.UDP != nil {
		if req.UDP.Type == coap.TypeCON {
			resp.UDP = &coap.UDPBinding{MessageID: req.UDP.MessageID, Type: coap.TypeACK}
		} else {
			resp.UDP = &coap.UDPBinding{MessageID: c.nextMessageID(), Type: coap.TypeNON}
		}
	}
	raw, err := coap.EncodeUDP(resp)
	if err != nil {
		c.log.Warnf("lwm2m: failed to encode response to %v: %v", req.Operation, err)
		return
	}
	if _, err := c.sender.Send(raw); err != nil {
		c.log.Warnf("lwm2m: failed to send response to %v: %v", req.Operation, err)
	}
}
