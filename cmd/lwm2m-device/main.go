// lwm2m-device is a minimal example client: it registers a single Device
// object (oid 3) exposing a manufacturer string and a reboot counter, then
// runs the core Step loop against a real UDP transport until interrupted.
//
// This binary exists only to demonstrate wiring the protocol/exchange core
// (pkg/coap, pkg/exchange, pkg/dispatch, pkg/observe, pkg/session, the
// top-level Client) to a concrete transport and a toy plaintext content
// format; it is explicitly out of scope of the protocol core itself
// (spec.md §1: "the thin example programs" are an external collaborator).
//
// Usage:
//
//	lwm2m-device -server 127.0.0.1:5683 -ep my-device
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pion/logging"

	"github.com/lindqvist-iot/lwm2m"
	"github.com/lindqvist-iot/lwm2m/pkg/coap"
	"github.com/lindqvist-iot/lwm2m/pkg/content"
	"github.com/lindqvist-iot/lwm2m/pkg/dispatch"
	"github.com/lindqvist-iot/lwm2m/pkg/session"
	"github.com/lindqvist-iot/lwm2m/pkg/transport"
)

func main() {
	endpoint := flag.String("ep", "go-lwm2m-device", "registration endpoint name")
	server := flag.String("server", "127.0.0.1:5683", "LwM2M server host:port")
	lifetime := flag.Uint("lifetime", 120, "registration lifetime, seconds")
	flag.Parse()

	host, portStr, err := splitHostPort(*server)
	if err != nil {
		log.Fatalf("lwm2m-device: -server: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("lwm2m-device: -server port: %v", err)
	}

	logger := logging.NewDefaultLoggerFactory().NewLogger("lwm2m-device")

	xport := transport.NewUDPContext(transport.Config{Kind: transport.KindUDP}, logger)
	for {
		err := xport.Connect(host, port)
		if err == nil {
			break
		}
		if err != transport.ErrWouldBlock {
			log.Fatalf("lwm2m-device: connect: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	dev := newDevice()
	cfg := lwm2m.Config{
		Endpoint: *endpoint,
		Session: session.Config{
			Server: session.ServerInstance{SSID: 1, LifetimeS: uint32(*lifetime)},
		},
		Registry:  dev.registry(),
		Transport: xport,
		Content:   textRegistry{},
		Log:       logger,
	}
	client, err := lwm2m.NewClient(cfg)
	if err != nil {
		log.Fatalf("lwm2m-device: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			client.Shutdown(time.Now())
			for client.OngoingOperation() {
				if err := client.Step(time.Now()); err != nil {
					logger.Warnf("lwm2m-device: step during shutdown: %v", err)
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			xport.Shutdown()
			xport.Cleanup()
			return
		case <-ticker.C:
			if err := client.Step(time.Now()); err != nil {
				logger.Errorf("lwm2m-device: step: %v", err)
			}
		}
	}
}

func splitHostPort(s string) (host, port string, err error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", os.ErrInvalid
	}
	return s[:i], s[i+1:], nil
}

// device backs one object-3 (Device) instance: rid 0 is a read-only
// manufacturer string, rid 4 an executable resource that bumps a reboot
// counter, used to demonstrate EXECUTE without a real hardware reboot.
type device struct {
	manufacturer string
	rebootCount  int64
}

func newDevice() *device {
	return &device{manufacturer: "example-lwm2m-co"}
}

func (d *device) registry() *dispatch.Registry {
	reg := dispatch.NewRegistry()
	resources := []dispatch.ResourceDescriptor{
		{RID: 0, Type: content.KindString, Operation: dispatch.OpR},
		{RID: 4, Type: content.KindInt, Operation: dispatch.OpE},
	}
	_ = reg.Register(&dispatch.ObjectDescriptor{
		OID:   3,
		Insts: []dispatch.InstanceDescriptor{{IID: 0, Resources: resources}},
		Handlers: dispatch.Handlers{
			ResRead: func(oid, iid, rid, riid uint16, hasRIID bool) (content.Value, error) {
				switch rid {
				case 0:
					return content.Value{Kind: content.KindString, Str: d.manufacturer}, nil
				default:
					return content.Value{}, dispatch.ErrResourceNotFound
				}
			},
			ResExecute: func(oid, iid, rid uint16, payload []byte) error {
				if rid == 4 {
					d.rebootCount++
				}
				return nil
			},
		},
	})
	return reg
}

// textRegistry is a toy plaintext content format good enough to exercise
// this example's single string resource; it is not a conformant LwM2M
// content format and is never exported from pkg/content (§6.3: concrete
// content formats are an external collaborator's job).
type textRegistry struct{}

func (textRegistry) NewEncoder(format coap.MediaType) (content.Encoder, error) {
	return &textEncoder{}, nil
}

func (textRegistry) NewDecoder(format coap.MediaType) (content.Decoder, error) {
	return &textDecoder{}, nil
}

type textEncoder struct{ buf []byte }

func (e *textEncoder) Format() coap.MediaType        { return coap.MediaTypeText }
func (e *textEncoder) PutValue(v content.Value) error { e.buf = append(e.buf, v.Str...); return nil }
func (e *textEncoder) Bytes() []byte                  { return e.buf }
func (e *textEncoder) Reset(n int)                    { e.buf = append([]byte(nil), e.buf[n:]...) }
func (e *textEncoder) Finish() ([]byte, error)        { return nil, nil }

type textDecoder struct {
	buf  []byte
	done bool
}

func (d *textDecoder) Format() coap.MediaType { return coap.MediaTypeText }
func (d *textDecoder) Feed(data []byte)       { d.buf = append(d.buf, data...) }
func (d *textDecoder) Next() (content.Value, error) {
	v := content.Value{Kind: content.KindString, Str: string(d.buf)}
	d.buf = nil
	d.done = true
	return v, nil
}
func (d *textDecoder) Done() bool { return d.done }
