package core

import (
	"context"
	"time"

	"usb-epaper-go/bus"
	"usb-epaper-go/errcode"
	"usb-epaper-go/types"
	"usb-epaper-go/x/mathx"
	"usb-epaper-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8

	minPollInterval = 100 * time.Millisecond
	maxPollInterval = time.Hour
)

type HAL struct {
	conn *bus.Connection
	res  Resources

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: address -> devID
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event

	pollCh chan PollReq
	poller *Poller
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	pollCh := make(chan PollReq, pollQueueLen)
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   pollCh,
		poller:   NewPoller(pollCh),
	}
	// HAL provides the emitter to devices.
	h.res.Pub = h
	// Subscribe before Run so requests sent right after construction
	// reach the loop.
	h.cfgSub = conn.Subscribe(topicConfigHAL())
	h.ctrlSub = conn.Subscribe(ctrlWildcard())
	return h
}

// Run serves until ctx is cancelled, then closes every device.
func (h *HAL) Run(ctx context.Context) {
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		h.poller.Run(ctx)
	}()
	defer func() { <-pollDone }()
	defer h.closeDevices()

	h.pubHALState("idle", "awaiting_config")

	ready := false
	for {
		select {
		case <-ctx.Done():
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			cfg, ok := msg.Payload.(types.HALConfig)
			if !ok {
				println("[hal] ignoring config of unexpected type")
				continue
			}
			// applyConfig is additive and idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "configured")
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}
		// Register before Init so initial values emitted by Init resolve.
		h.dev[dev.ID()] = dev
		addrs := h.registerCaps(dev)
		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID, "err:", err.Error())
			for _, a := range addrs {
				delete(h.capIndex, a)
				h.conn.Publish(h.conn.NewMessage(
					capStatus(a.Domain, string(a.Kind), a.Name),
					types.CapabilityStatus{Link: types.LinkDegraded, TSms: timex.NowMs(), Error: string(errcode.Of(err))},
					true,
				))
			}
			_ = dev.Close()
			delete(h.dev, dev.ID())
			continue
		}
	}

	for _, ps := range cfg.Pollers {
		verb := ps.Verb
		if verb == "" {
			verb = "read"
		}
		a := CapAddr{Domain: ps.Domain, Kind: ps.Kind, Name: ps.Name}
		if _, ok := h.capIndex[a]; !ok {
			println("[hal] poller for unknown capability:", ps.Name)
			continue
		}
		h.poller.Upsert(a, verb, clampInterval(ps.IntervalMs), timex.Ms(ps.JitterMs))
	}
}

// registerCaps indexes the device's capabilities and publishes retained
// info plus an initial status of down.
func (h *HAL) registerCaps(dev Device) []CapAddr {
	var out []CapAddr
	for _, cs := range dev.Capabilities() {
		a := CapAddr{Domain: cs.Domain, Kind: cs.Kind, Name: cs.Name}
		if a.Domain == "" {
			a.Domain = defaultDomainFor(cs.Kind)
		}
		if a.Name == "" {
			a.Name = dev.ID()
		}
		h.capIndex[a] = dev.ID()
		out = append(out, a)

		k := string(a.Kind)
		h.conn.Publish(h.conn.NewMessage(capInfo(a.Domain, k, a.Name), cs.Info, true))
		h.conn.Publish(h.conn.NewMessage(
			capStatus(a.Domain, k, a.Name),
			types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()},
			true,
		))
	}
	return out
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() != 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	if domain == "" || kind == "" || name == "" || verb == "" {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	addr := CapAddr{Domain: domain, Kind: types.Kind(kind), Name: name}

	ownerID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case verbPollStart:
		ps, code := As[types.PollStart](msg.Payload)
		if code != "" || ps.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if ps.Verb == "" {
			ps.Verb = "read"
		}
		h.poller.Upsert(addr, ps.Verb, clampInterval(ps.IntervalMs), timex.Ms(ps.JitterMs))
		h.replyOK(msg)
		return
	case verbPollStop:
		ps, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if ps.Verb == "" {
			ps.Verb = "read"
		}
		h.poller.Stop(addr, ps.Verb)
		h.replyOK(msg)
		return
	}

	res, err := h.dev[ownerID].Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyErr(msg, errcode.Of(err))
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

// handlePoll drives a scheduled verb through the normal control path.
// Refusals (busy) are dropped; the next tick retries.
func (h *HAL) handlePoll(req PollReq) {
	ownerID, ok := h.capIndex[req.Addr]
	if !ok {
		h.poller.Stop(req.Addr, req.Verb)
		return
	}
	_, _ = h.dev[ownerID].Control(req.Addr, req.Verb, nil)
}

func (h *HAL) handleEvent(ev Event) {
	// Events queued by a device that has since been removed are stale.
	if _, ok := h.capIndex[ev.Addr]; !ok {
		return
	}
	d, k, n := ev.Addr.Domain, string(ev.Addr.Kind), ev.Addr.Name
	ts := ev.TSms
	if ts == 0 {
		ts = timex.NowMs()
	}

	// Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ts, Error: ev.Err},
			true,
		))
		return
	}

	if ev.EventTag != "" {
		h.conn.Publish(h.conn.NewMessage(capEvent(d, k, n, ev.EventTag), ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(d, k, n), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(
		capStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ts},
		true,
	))
}

func (h *HAL) closeDevices() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			println("[hal] close failed for:", id, "err:", err.Error())
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()},
		true,
	))
}

func clampInterval(ms uint32) time.Duration {
	return mathx.Clamp(timex.Ms(ms), minPollInterval, maxPollInterval)
}

func defaultDomainFor(kind types.Kind) string {
	switch kind {
	case types.KindVBus, types.KindVoltage:
		return "power"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
