package led

import (
	"context"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

// Device drives one LED on a GPIO output. Control runs on the HAL
// goroutine and never blocks, so no worker is needed.
type Device struct {
	id        string
	pin       core.GPIOHandle
	initial   bool
	activeLow bool

	pub core.EventEmitter
	reg core.ResourceRegistry
	a   core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindLED,
		Name:   d.a.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "gpio_led",
			Detail:        types.LEDInfo{Pin: d.pin.Pin().String(), ActiveLow: d.activeLow},
		},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if err := d.pin.ConfigureOutput(d.initial != d.activeLow); err != nil {
		return err
	}
	d.emit()
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "set":
		v, code := core.As[types.LEDSet](payload)
		if code != "" {
			return core.EnqueueResult{Error: code}, nil
		}
		d.pin.Set(v.Level != d.activeLow)
	case "toggle":
		d.pin.Toggle()
	case "read":
	default:
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
	d.emit()
	return core.EnqueueResult{OK: true}, nil
}

func (d *Device) Close() error {
	d.reg.ReleasePin(d.id, d.pin.Pin())
	return nil
}

func (d *Device) level() uint8 {
	if d.pin.Get() != d.activeLow {
		return 1
	}
	return 0
}

func (d *Device) emit() {
	_ = d.pub.Emit(core.Event{Addr: d.a, Payload: types.LEDValue{Level: d.level()}})
}
