package gpio_button

import (
	"context"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

// Device reports a push button from raw pin edges. Contacts are not
// debounced; every observed edge that changes the logical state is
// published.
type Device struct {
	id     string
	gpio   core.GPIOHandle
	invert bool

	pub core.EventEmitter
	reg core.ResourceRegistry
	a   core.CapAddr

	es   core.GPIOEdgeStream
	done chan struct{}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindButton,
		Name:   d.a.Name,
		Info:   types.Info{SchemaVersion: 1, Driver: "gpio_button", Detail: types.ButtonInfo{Pin: d.gpio.Pin().String()}},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	pressed := d.logicalPressed(d.gpio.Get())
	d.pub.Emit(core.Event{Addr: d.a, Payload: types.ButtonValue{Pressed: pressed}})

	es, err := d.reg.SubscribeGPIOEdges(d.id, d.gpio.Pin(), core.EdgeBoth, 8)
	if err != nil {
		// Still readable by polling.
		d.pub.Emit(core.Event{Addr: d.a, Err: string(errcode.Of(err))})
		return nil
	}
	d.es = es
	d.done = make(chan struct{})
	go d.edgeLoop(pressed)
	return nil
}

func (d *Device) Close() error {
	if d.es != nil {
		d.es.Close()
		d.reg.UnsubscribeGPIOEdges(d.id, d.gpio.Pin())
		<-d.done
		d.es = nil
	}
	d.reg.ReleasePin(d.id, d.gpio.Pin())
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		pressed := d.logicalPressed(d.gpio.Get())
		_ = d.pub.Emit(core.Event{Addr: d.a, Payload: types.ButtonValue{Pressed: pressed}})
		return core.EnqueueResult{OK: true}, nil
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) edgeLoop(last bool) {
	defer close(d.done)
	for ev := range d.es.Events() {
		pressed := d.logicalPressed(ev.Level)
		if pressed == last {
			continue
		}
		last = pressed
		tag := "released"
		if pressed {
			tag = "pressed"
		}
		v := types.ButtonValue{Pressed: pressed}
		_ = d.pub.Emit(core.Event{Addr: d.a, EventTag: tag, Payload: v, TSms: ev.TSms})
		_ = d.pub.Emit(core.Event{Addr: d.a, Payload: v, TSms: ev.TSms})
	}
}

func (d *Device) logicalPressed(level bool) bool {
	if d.invert {
		return !level
	}
	return level
}
