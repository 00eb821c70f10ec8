package notify

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/ridehail"
)

type fakeConn struct {
	sent    []Envelope
	sendErr error
}

func (c *fakeConn) Send(v any) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, v.(Envelope))
	return nil
}
func (c *fakeConn) Close() error { return nil }

func newNotifier() (*SocketNotifier, *registry.Registry, *registry.Registry) {
	riders, drivers := registry.New(), registry.New()
	return NewSocketNotifier(riders, drivers, slog.New(slog.NewTextHandler(io.Discard, nil))), riders, drivers
}

func TestNotifyWrapsEnvelope(t *testing.T) {
	n, riders, _ := newNotifier()
	c := &fakeConn{}
	riders.Register("rider1", c)

	if err := n.NotifyRider("rider1", EventRideAccepted, map[string]any{"ride_id": "r1"}); err != nil {
		t.Fatal(err)
	}
	if len(c.sent) != 1 || c.sent[0].Event != EventRideAccepted {
		t.Fatalf("sent = %+v", c.sent)
	}
}

func TestNotifyMissingConnection(t *testing.T) {
	n, _, _ := newNotifier()
	if err := n.NotifyDriver("ghost", EventNewRideRequest, nil); !errors.Is(err, ridehail.ErrNoConnection) {
		t.Fatalf("expected no-connection, got %v", err)
	}
}

func TestNotifyRolesAreSeparate(t *testing.T) {
	n, riders, drivers := newNotifier()
	rc, dc := &fakeConn{}, &fakeConn{}
	riders.Register("u1", rc)
	drivers.Register("u1", dc)

	_ = n.NotifyDriver("u1", EventRemoveRideRequest, nil)
	if len(rc.sent) != 0 {
		t.Fatal("rider channel must not see driver events")
	}
	if len(dc.sent) != 1 {
		t.Fatalf("driver sent = %+v", dc.sent)
	}
}

func TestNotifySendErrorSurfaces(t *testing.T) {
	n, riders, _ := newNotifier()
	riders.Register("rider1", &fakeConn{sendErr: errors.New("broken pipe")})
	if err := n.NotifyRider("rider1", EventRideCompleted, nil); err == nil {
		t.Fatal("expected send error")
	}
}
