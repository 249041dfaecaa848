package epaper

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"usb-epaper-go/board"
	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/services/hal/internal/devtest"
	"usb-epaper-go/services/hal/internal/provider"
	"usb-epaper-go/types"
)

const wait = 2 * time.Second

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

var plan = provider.ResourcePlan{SPI: []provider.SPIPlan{{ID: "spi0", Hz: 4_000_000, SCK: board.PA5, SDO: board.PA7}}}

func params() types.DisplayParams {
	return types.DisplayParams{
		Bus:  "spi0",
		CS:   board.CSN_PIN,
		DC:   board.DC_PIN,
		RST:  board.RESN_PIN,
		Busy: board.BUSY_PIN,
		Name: "panel",
	}
}

func newDisplay(t *testing.T) (*Device, *provider.SimRegistry, *devtest.Recorder) {
	t.Helper()
	reg := provider.NewResourceRegistry(plan)
	rec := devtest.NewRecorder()
	dev, err := devtest.Build(t, builder{}, "epd", params(), reg, rec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := dev.Init(t.Context()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	d := dev.(*Device)
	expectValue(t, rec, types.DisplayValue{State: types.DisplayIdle})
	return d, reg, rec
}

func expectValue(t *testing.T, rec *devtest.Recorder, want types.DisplayValue) {
	t.Helper()
	ev := rec.Next(t, wait)
	if diff := cmp.Diff(want, ev.Payload); diff != "" {
		t.Fatalf("value (-want +got):\n%s", diff)
	}
}

func TestDisplayInfo(t *testing.T) {
	d, reg, _ := newDisplay(t)
	caps := d.Capabilities()
	want := types.DisplayInfo{Bus: "spi0", Width: 128, Height: 250, CS: "PA3", DC: "PA4", RST: "PA6", Busy: "PB0"}
	if diff := cmp.Diff(want, caps[0].Info.Detail); diff != "" {
		t.Fatalf("info (-want +got):\n%s", diff)
	}
	for _, p := range []board.Pin{board.CSN_PIN, board.DC_PIN, board.RESN_PIN, board.BUSY_PIN} {
		if reg.Owner(p) != "epd" {
			t.Fatalf("%s not claimed", p)
		}
	}
}

func TestDisplayFill(t *testing.T) {
	d, reg, rec := newDisplay(t)

	if res, _ := d.Control(d.a, "fill", types.DisplayFill{Black: true}); !res.OK {
		t.Fatalf("fill: %+v", res)
	}
	expectValue(t, rec, types.DisplayValue{State: types.DisplayRefresh})
	expectValue(t, rec, types.DisplayValue{State: types.DisplayIdle, Refreshes: 1})

	if res, _ := d.Control(d.a, "clear", nil); !res.OK {
		t.Fatalf("clear: %+v", res)
	}
	expectValue(t, rec, types.DisplayValue{State: types.DisplayRefresh, Refreshes: 1})
	expectValue(t, rec, types.DisplayValue{State: types.DisplayIdle, Refreshes: 2})

	panel := reg.Panel("spi0")
	fills, _, black := panel.Stats()
	if fills != 2 || black {
		t.Fatalf("fills=%d black=%v", fills, black)
	}
	if got := panel.SPI().Written(); got != 2*128/8*250 {
		t.Fatalf("spi bytes = %d", got)
	}
	// Chip select idles high and is asserted once per frame.
	if diff := cmp.Diff([]bool{true, false, true, false, true}, reg.Writes(board.CSN_PIN)); diff != "" {
		t.Fatalf("cs writes (-want +got):\n%s", diff)
	}
}

func TestDisplaySleepWake(t *testing.T) {
	d, reg, rec := newDisplay(t)

	_, _ = d.Control(d.a, "sleep", nil)
	expectValue(t, rec, types.DisplayValue{State: types.DisplaySleeping})
	if !reg.Panel("spi0").Asleep() {
		t.Fatal("panel not asleep")
	}

	_, _ = d.Control(d.a, "read", nil)
	expectValue(t, rec, types.DisplayValue{State: types.DisplaySleeping})

	_, _ = d.Control(d.a, "fill", types.DisplayFill{})
	expectValue(t, rec, types.DisplayValue{State: types.DisplayRefresh})
	expectValue(t, rec, types.DisplayValue{State: types.DisplayIdle, Refreshes: 1})
	if reg.Panel("spi0").Asleep() {
		t.Fatal("fill should wake the panel")
	}
}

func TestDisplayBusyWhenQueueFull(t *testing.T) {
	d, reg, _ := newDisplay(t)
	reg.Panel("spi0").SetRefreshDelay(200 * time.Millisecond)

	accepted := 0
	for i := 0; i < queueLen+2; i++ {
		res, _ := d.Control(d.a, "clear", nil)
		if !res.OK {
			if res.Error != errcode.Busy {
				t.Fatalf("refusal = %q", res.Error)
			}
			break
		}
		accepted++
	}
	if accepted < queueLen || accepted > queueLen+1 {
		t.Fatalf("accepted %d requests", accepted)
	}
}

func TestDisplayFailure(t *testing.T) {
	d, reg, rec := newDisplay(t)
	reg.Panel("spi0").FailNext(errcode.Timeout)

	_, _ = d.Control(d.a, "clear", nil)
	expectValue(t, rec, types.DisplayValue{State: types.DisplayRefresh})
	if ev := rec.Next(t, wait); ev.Err != string(errcode.Timeout) {
		t.Fatalf("event = %+v", ev)
	}
	_, _ = d.Control(d.a, "read", nil)
	expectValue(t, rec, types.DisplayValue{State: types.DisplayIdle})
}

func TestDisplayRejects(t *testing.T) {
	d, _, _ := newDisplay(t)
	if res, _ := d.Control(d.a, "fill", "black"); res.Error != errcode.InvalidPayload {
		t.Fatalf("fill: %+v", res)
	}
	if res, _ := d.Control(d.a, "draw", nil); res.Error != errcode.Unsupported {
		t.Fatalf("draw: %+v", res)
	}
}

func TestDisplayBuildErrors(t *testing.T) {
	reg := provider.NewResourceRegistry(plan)
	rec := devtest.NewRecorder()

	p := params()
	p.Bus = "spi1"
	if _, err := devtest.Build(t, builder{}, "a", p, reg, rec); err != errcode.UnknownBus {
		t.Fatalf("unknown bus: %v", err)
	}

	dev, err := devtest.Build(t, builder{}, "a", params(), reg, rec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := devtest.Build(t, builder{}, "b", params(), reg, rec); err != errcode.BusInUse {
		t.Fatalf("second panel: %v", err)
	}
	_ = dev.Close()
	if reg.Owner(board.CSN_PIN) != "" || reg.Panel("spi0") != nil {
		t.Fatal("close should release the panel")
	}

	// A control pin held elsewhere fails the open and leaves nothing claimed.
	if _, err := reg.ClaimPin("led", board.BUSY_PIN, core.FuncGPIOIn); err != nil {
		t.Fatal(err)
	}
	if _, err := devtest.Build(t, builder{}, "c", params(), reg, rec); err != errcode.PinInUse {
		t.Fatalf("busy pin taken: %v", err)
	}
	if reg.Owner(board.CSN_PIN) != "" {
		t.Fatal("partial claim left behind")
	}
}
