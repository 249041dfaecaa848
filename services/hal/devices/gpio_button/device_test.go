package gpio_button

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"usb-epaper-go/board"
	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/services/hal/internal/devtest"
	"usb-epaper-go/services/hal/internal/provider"
	"usb-epaper-go/types"
)

const wait = time.Second

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

func newButton(t *testing.T, p types.ButtonParams) (*Device, *provider.SimRegistry, *devtest.Recorder) {
	t.Helper()
	reg := provider.NewResourceRegistry(provider.ResourcePlan{})
	rec := devtest.NewRecorder()
	dev, err := devtest.Build(t, builder{}, "btn", p, reg, rec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := dev.Init(t.Context()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	return dev.(*Device), reg, rec
}

func pressed(t *testing.T, ev core.Event) bool {
	t.Helper()
	v, ok := ev.Payload.(types.ButtonValue)
	if !ok {
		t.Fatalf("payload %T", ev.Payload)
	}
	return v.Pressed
}

func TestButtonActiveLowEdges(t *testing.T) {
	// Pulled up, pressed shorts to ground.
	_, reg, rec := newButton(t, types.ButtonParams{Pin: board.BUTTON0_PIN, Pull: types.PullUp, Invert: true, Name: "button0"})

	if ev := rec.Next(t, wait); pressed(t, ev) {
		t.Fatal("idle button reported pressed")
	}

	reg.SetLevel(board.BUTTON0_PIN, false)
	ev := rec.Next(t, wait)
	if ev.EventTag != "pressed" || !pressed(t, ev) {
		t.Fatalf("press event = %+v", ev)
	}
	if ev := rec.Next(t, wait); ev.EventTag != "" || !pressed(t, ev) {
		t.Fatalf("press value = %+v", ev)
	}
	if ev.Addr != (core.CapAddr{Domain: "io", Kind: types.KindButton, Name: "button0"}) {
		t.Fatalf("addr = %+v", ev.Addr)
	}

	reg.SetLevel(board.BUTTON0_PIN, true)
	if ev := rec.Await(t, wait, devtest.Tagged("released")); pressed(t, ev) {
		t.Fatal("release reported pressed")
	}
}

func TestButtonActiveHigh(t *testing.T) {
	_, reg, rec := newButton(t, types.ButtonParams{Pin: board.BUTTON3_PIN, Pull: types.PullDown})
	_ = rec.Next(t, wait)

	reg.SetLevel(board.BUTTON3_PIN, true)
	rec.Await(t, wait, devtest.Tagged("pressed"))
}

func TestButtonRead(t *testing.T) {
	d, reg, rec := newButton(t, types.ButtonParams{Pin: board.BUTTON1_PIN, Pull: types.PullUp, Invert: true})
	_ = rec.Next(t, wait)

	reg.SetLevel(board.BUTTON1_PIN, false)
	rec.Await(t, wait, devtest.Tagged("pressed"))
	_ = rec.Next(t, wait)

	res, err := d.Control(d.a, "read", nil)
	if err != nil || !res.OK {
		t.Fatalf("read: %+v %v", res, err)
	}
	if ev := rec.Next(t, wait); !pressed(t, ev) {
		t.Fatal("read should report pressed")
	}

	res, _ = d.Control(d.a, "toggle", nil)
	if res.Error != errcode.Unsupported {
		t.Fatalf("toggle: %+v", res)
	}
}

func TestButtonCloseReleasesPin(t *testing.T) {
	reg := provider.NewResourceRegistry(provider.ResourcePlan{})
	rec := devtest.NewRecorder()
	dev, err := devtest.Build(t, builder{}, "b2", types.ButtonParams{Pin: board.BUTTON2_PIN}, reg, rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Init(t.Context()); err != nil {
		t.Fatal(err)
	}
	if reg.Owner(board.BUTTON2_PIN) != "b2" {
		t.Fatal("pin not claimed")
	}
	_ = dev.Close()
	if reg.Owner(board.BUTTON2_PIN) != "" {
		t.Fatal("pin not released")
	}
}

func TestButtonBadPull(t *testing.T) {
	reg := provider.NewResourceRegistry(provider.ResourcePlan{})
	_, err := devtest.Build(t, builder{}, "b", types.ButtonParams{Pin: board.BUTTON0_PIN, Pull: "sideways"}, reg, devtest.NewRecorder())
	if err != errcode.InvalidParams {
		t.Fatalf("err = %v", err)
	}
	if reg.Owner(board.BUTTON0_PIN) != "" {
		t.Fatal("failed build must not hold the pin")
	}
}
