package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"usb-epaper-go/bus"
	"usb-epaper-go/errcode"
	"usb-epaper-go/services/heartbeat"
	"usb-epaper-go/types"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) (map[string]any, bool) {
		if device != "bench" {
			return nil, false
		}
		return map[string]any{"mode": "dev", "debug": true, "region": map[string]any{"code": "eu"}}, true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	defer conn.Disconnect()
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "bench")
	if err := NewConfigService().publishConfig(ctx, conn); err != nil {
		t.Fatal(err)
	}

	// Retained messages arrive on subscribe.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	got := map[string]any{}
	for len(got) < 3 {
		select {
		case m := <-sub.Channel():
			if !m.Retained {
				t.Fatalf("%v not retained", m.Topic)
			}
			key := m.Topic.At(1).(string)
			got[key] = m.Payload
		case <-time.After(time.Second):
			t.Fatalf("got %d of 3 keys", len(got))
		}
	}
	want := map[string]any{"mode": "dev", "debug": true, "region": map[string]any{"code": "eu"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payloads (-want +got):\n%s", diff)
	}
}

func TestConfig_BoardDefaults(t *testing.T) {
	m, ok := EmbeddedConfigLookup("usb_epaper")
	if !ok {
		t.Fatal("no embedded config for usb_epaper")
	}
	hal, ok := m["hal"].(types.HALConfig)
	if !ok || len(hal.Devices) == 0 {
		t.Fatalf("hal = %T", m["hal"])
	}
	if hb, ok := m["heartbeat"].(heartbeat.Config); !ok || hb.IntervalMs == 0 {
		t.Fatalf("heartbeat = %#v", m["heartbeat"])
	}
}

func TestConfig_Errors(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("c")
	defer conn.Disconnect()
	svc := NewConfigService()

	if err := svc.publishConfig(context.Background(), conn); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("missing device: %v", err)
	}
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "nope")
	if err := svc.publishConfig(ctx, conn); errcode.Of(err) != errcode.NotReady {
		t.Fatalf("unknown device: %v", err)
	}
}

func TestConfig_StartPublishesAsync(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("c")
	defer conn.Disconnect()
	sub := conn.Subscribe(bus.T(configPrefix, "heartbeat"))

	NewConfigService().Start(context.WithValue(context.Background(), CtxDeviceKey, "usb_epaper"), conn)
	select {
	case m := <-sub.Channel():
		if _, ok := m.Payload.(heartbeat.Config); !ok {
			t.Fatalf("payload %T", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat config not published")
	}
}
