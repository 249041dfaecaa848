package epaper

import (
	"context"
	"sync/atomic"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

type opCode uint8

const (
	opFill opCode = iota
	opSleep
)

type request struct {
	op    opCode
	black bool
}

// Device owns an e-paper panel. Refreshes take seconds, so every verb
// that touches the glass is queued to a single worker; Control only
// enqueues.
type Device struct {
	id     string
	bus    core.ResourceID
	params types.DisplayParams
	panel  core.Panel
	res    core.Resources
	a      core.CapAddr

	// Written by the worker, read by Control for "read".
	state     atomic.Value // types.DisplayState
	refreshes atomic.Uint32

	reqCh chan request
	stop  chan struct{}
	done  chan struct{}
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	w, h := d.panel.Size()
	return []core.CapabilitySpec{{
		Domain: d.a.Domain,
		Kind:   types.KindDisplay,
		Name:   d.a.Name,
		Info: types.Info{SchemaVersion: 1, Driver: "epaper", Detail: types.DisplayInfo{
			Bus:    d.params.Bus,
			Width:  w,
			Height: h,
			CS:     d.params.CS.String(),
			DC:     d.params.DC.String(),
			RST:    d.params.RST.String(),
			Busy:   d.params.Busy.String(),
		}},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	d.state.Store(types.DisplayIdle)
	d.emit()

	d.reqCh = make(chan request, queueLen)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.worker(ctx)
	return nil
}

// Close waits for a refresh in progress to finish.
func (d *Device) Close() error {
	if d.done != nil {
		close(d.stop)
		<-d.done
		d.done = nil
	}
	d.res.Reg.ClosePanel(d.id, d.bus)
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		d.emit()
		return core.EnqueueResult{OK: true}, nil
	case "clear":
		return d.send(request{op: opFill})
	case "fill":
		v, code := core.As[types.DisplayFill](payload)
		if code != "" {
			return core.EnqueueResult{Error: code}, nil
		}
		return d.send(request{op: opFill, black: v.Black})
	case "sleep":
		return d.send(request{op: opSleep})
	default:
		return core.EnqueueResult{Error: errcode.Unsupported}, nil
	}
}

func (d *Device) send(req request) (core.EnqueueResult, error) {
	if d.reqCh == nil {
		return core.EnqueueResult{Error: errcode.NotReady}, nil
	}
	select {
	case d.reqCh <- req:
		return core.EnqueueResult{OK: true}, nil
	default:
		return core.EnqueueResult{Error: errcode.Busy}, nil
	}
}

func (d *Device) worker(ctx context.Context) {
	defer close(d.done)
	for {
		// Queued refreshes are abandoned once stop is closed.
		select {
		case <-d.stop:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case req := <-d.reqCh:
			d.handle(req)
		}
	}
}

func (d *Device) handle(req request) {
	switch req.op {
	case opFill:
		if d.current() == types.DisplaySleeping {
			if err := d.panel.Wake(); err != nil {
				d.fail(err)
				return
			}
		}
		d.setState(types.DisplayRefresh)
		if err := d.panel.Fill(req.black); err != nil {
			d.state.Store(types.DisplayIdle)
			d.fail(err)
			return
		}
		d.refreshes.Add(1)
		d.setState(types.DisplayIdle)
	case opSleep:
		if d.current() == types.DisplaySleeping {
			d.emit()
			return
		}
		if err := d.panel.Sleep(); err != nil {
			d.fail(err)
			return
		}
		d.setState(types.DisplaySleeping)
	}
}

func (d *Device) current() types.DisplayState { return d.state.Load().(types.DisplayState) }

func (d *Device) setState(s types.DisplayState) {
	d.state.Store(s)
	d.emit()
}

func (d *Device) emit() {
	_ = d.res.Pub.Emit(core.Event{Addr: d.a, Payload: types.DisplayValue{
		State:     d.current(),
		Refreshes: d.refreshes.Load(),
	}})
}

func (d *Device) fail(err error) {
	_ = d.res.Pub.Emit(core.Event{Addr: d.a, Err: string(errcode.Of(err))})
}
