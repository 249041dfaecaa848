// Package vbus_sense reports whether USB bus power is present.
package vbus_sense

import (
	"context"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

func init() { core.RegisterBuilder("vbus_sense", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.Params[types.VBusParams](in.Params)
	if err != nil {
		return nil, err
	}
	pull, err := core.PullOf(p.Pull)
	if err != nil {
		return nil, err
	}
	ph, err := in.Res.Reg.ClaimPin(in.ID, p.Pin, core.FuncGPIOIn)
	if err != nil {
		return nil, err
	}
	gpio := ph.AsGPIO()
	if err := gpio.ConfigureInput(pull); err != nil {
		in.Res.Reg.ReleasePin(in.ID, p.Pin)
		return nil, err
	}
	name := p.Name
	if name == "" {
		name = in.ID
	}
	return &Device{
		id:     in.ID,
		gpio:   gpio,
		invert: p.Invert,
		res:    in.Res,
		a:      core.CapAddr{Domain: "power", Kind: types.KindVBus, Name: name},
	}, nil
}

type Device struct {
	id     string
	gpio   core.GPIOHandle
	invert bool
	res    core.Resources
	a      core.CapAddr

	es   core.GPIOEdgeStream
	done chan struct{}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindVBus,
		Name:   d.a.Name,
		Info:   types.Info{SchemaVersion: 1, Driver: "vbus_sense", Detail: types.VBusInfo{Pin: d.gpio.Pin().String()}},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	present := d.present(d.gpio.Get())
	d.emitValue(present, 0)

	es, err := d.res.Reg.SubscribeGPIOEdges(d.id, d.gpio.Pin(), core.EdgeBoth, 4)
	if err != nil {
		return err
	}
	d.es = es
	d.done = make(chan struct{})
	go d.watch(present)
	return nil
}

func (d *Device) Close() error {
	if d.es != nil {
		d.es.Close()
		<-d.done
		d.es = nil
	}
	d.res.Reg.ReleasePin(d.id, d.gpio.Pin())
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	if verb != "read" {
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
	d.emitValue(d.present(d.gpio.Get()), 0)
	return core.EnqueueResult{OK: true}, nil
}

func (d *Device) watch(last bool) {
	defer close(d.done)
	for ev := range d.es.Events() {
		present := d.present(ev.Level)
		if present == last {
			continue
		}
		last = present
		tag := "detached"
		if present {
			tag = "attached"
		}
		_ = d.res.Pub.Emit(core.Event{Addr: d.a, EventTag: tag, Payload: types.VBusValue{Present: present}, TSms: ev.TSms})
		d.emitValue(present, ev.TSms)
	}
}

func (d *Device) emitValue(present bool, ts int64) {
	_ = d.res.Pub.Emit(core.Event{Addr: d.a, Payload: types.VBusValue{Present: present}, TSms: ts})
}

func (d *Device) present(level bool) bool { return level != d.invert }
