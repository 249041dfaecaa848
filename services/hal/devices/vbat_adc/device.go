package vbat_adc

import (
	"context"
	"sync/atomic"
	"time"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
	"usb-epaper-go/x/mathx"
	"usb-epaper-go/x/timex"
)

const adcFullScale = 0xFFFF

// Device measures the battery through a switched divider. The divider
// is only powered while a sample is taken.
type Device struct {
	id     string
	adc    core.ADCHandle
	en     core.GPIOHandle
	params types.VBatParams
	res    core.Resources
	a      core.CapAddr

	// One measurement at a time; set by Control, cleared by the worker.
	inFlight atomic.Bool

	reqCh chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindVoltage,
		Name:   d.a.Name,
		Info: types.Info{SchemaVersion: 1, Driver: "vbat_adc", Detail: types.VoltageInfo{
			Sense:      d.adc.Pin().String(),
			Enable:     d.en.Pin().String(),
			RefMilliV:  d.params.RefMilliV,
			DividerNum: d.params.DividerNum,
			DividerDen: d.params.DividerDen,
		}},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if err := d.en.ConfigureOutput(d.enableLevel(false)); err != nil {
		return err
	}
	d.reqCh = make(chan struct{}, 1)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.worker(ctx)
	return nil
}

func (d *Device) Close() error {
	if d.done != nil {
		close(d.stop)
		<-d.done
		d.done = nil
	}
	d.res.Reg.ReleasePin(d.id, d.en.Pin())
	d.res.Reg.ReleasePin(d.id, d.adc.Pin())
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	if verb != "read" {
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
	if d.reqCh == nil {
		return core.EnqueueResult{Error: errcode.NotReady}, nil
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		return core.EnqueueResult{Error: errcode.Busy}, nil
	}
	select {
	case d.reqCh <- struct{}{}:
		return core.EnqueueResult{OK: true}, nil
	default:
		d.inFlight.Store(false)
		return core.EnqueueResult{Error: errcode.Busy}, nil
	}
}

func (d *Device) worker(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-d.reqCh:
			d.measure(ctx)
			d.inFlight.Store(false)
		}
	}
}

func (d *Device) measure(ctx context.Context) {
	d.en.Set(d.enableLevel(true))
	defer d.en.Set(d.enableLevel(false))

	settle := time.NewTimer(time.Duration(d.params.SettleUs) * time.Microsecond)
	select {
	case <-ctx.Done():
		settle.Stop()
		return
	case <-d.stop:
		settle.Stop()
		return
	case <-settle.C:
	}

	raw, err := d.adc.Read()
	ts := timex.NowMs()
	if err != nil {
		_ = d.res.Pub.Emit(core.Event{Addr: d.a, Err: string(errcode.Of(err)), TSms: ts})
		return
	}
	_ = d.res.Pub.Emit(core.Event{Addr: d.a, Payload: d.value(raw), TSms: ts})
}

func (d *Device) value(raw uint16) types.VoltageValue {
	sense := mathx.Scale(raw, d.params.RefMilliV, adcFullScale)
	return types.VoltageValue{
		MilliV: mathx.Scale(sense, d.params.DividerNum, d.params.DividerDen),
		Raw:    raw,
	}
}

func (d *Device) enableLevel(on bool) bool { return on != d.params.EnableActiveLow }
