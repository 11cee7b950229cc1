package lwm2m

import (
	"time"

	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
	"github.com/lindqvist-iot/lwm2m/pkg/exchange"
	"github.com/lindqvist-iot/lwm2m/pkg/observe"
)

// runNotifications evaluates every active observation and, at most, starts
// one due notify exchange (§4.6.2): only one exchange is ever in flight at
// a time (enforced by Step only calling this when c.current == nil), so a
// second observation due on the same tick waits for the next Step call.
func (c *Client) runNotifications(now time.Time) {
	if c.content == nil {
		return
	}
	for _, rec := range c.observations.All() {
		if !rec.ObserveActive {
			continue
		}
		v, err := c.readPathValue(rec.Path)
		if err != nil {
			continue
		}
		eval := observe.Evaluate(now, rec, v)
		if !eval.Due {
			continue
		}
		if c.startNotify(now, rec, v) {
			return
		}
	}
}

// startNotify builds and begins sending the notify for rec, consolidating
// every member path's current value when rec belongs to a composite
// observation (§4.6.3). It reports whether an exchange was actually
// started.
func (c *Client) startNotify(now time.Time, rec *observe.Record, primary content.Value) bool {
	format := rec.Accept
	if format == coap.MediaTypeUndefined {
		format = defaultAccept
	}

	values := []content.Value{primary}
	if comp, ok := c.composites.Get(rec.SSID, rec.Token); ok {
		values = values[:0]
		for _, p := range comp.Paths {
			v, err := c.readPathValue(p)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
	}

	payload, err := c.encodeValues(format, values)
	if err != nil {
		c.log.Warnf("lwm2m: failed to encode notify for %s: %v", rec.Path.String(), err)
		return false
	}

	con := false
	if v, ok := rec.AttrsEffective.Con.Get(); ok && v != 0 {
		con = true
	}
	num := rec.ObserveNumber + 1
	op := coap.OpNotifyNon
	typ := coap.TypeNON
	if con {
		op = coap.OpNotifyCon
		typ = coap.TypeCON
	}

	msg := &coap.Message{
		Operation:     op,
		Code:          coap.CodeContent,
		Token:         rec.Token,
		ContentFormat: format,
		Payload:       payload,
		Observe:       &num,
		UDP:           &coap.UDPBinding{MessageID: c.nextMessageID(), Type: typ},
	}

	ctx := exchange.NewContext(msg, exchange.RoleInitiator, c.sender, c.exParams, c.backoff)
	c.current = ctx
	c.currentKind = actionNotify
	c.notifyRec = rec
	c.notifyValue = primary
	if err := ctx.Tick(now.UnixMilli()); err != nil {
		c.finishCurrent(now, err)
	}
	return true
}
