// Bring-up exerciser: drives every capability of the board once, then
// reports button and VBUS activity until reset.
package main

import (
	"context"
	"fmt"
	"time"

	"usb-epaper-go/bus"
	"usb-epaper-go/services/hal"
	"usb-epaper-go/types"
)

// ---------- Configuration ----------

const (
	halReadyTimeout = 5 * time.Second
	replyTimeout    = time.Second
	valueTimeout    = 3 * time.Second
	panelTimeout    = 15 * time.Second

	blinks     = 3
	blinkDelay = 250 * time.Millisecond
)

var leds = []string{"led0", "led1"}

// ---------- Topics ----------

func tCtl(domain string, kind types.Kind, name, verb string) bus.Topic {
	return bus.T("hal", "cap", domain, string(kind), name, "control", verb)
}
func tValue(domain string, kind types.Kind, name string) bus.Topic {
	return bus.T("hal", "cap", domain, string(kind), name, "value")
}
func tHalState() bus.Topic { return bus.T("hal", "state") }

var (
	tButtonEvents = bus.T("hal", "cap", "io", string(types.KindButton), "+", "event", "+")
	tVBusEvents   = bus.T("hal", "cap", "power", string(types.KindVBus), "+", "event", "+")
)

// ---------- Helpers ----------

func waitHALReady(c *bus.Connection, d time.Duration) bool {
	sub := c.Subscribe(tHalState())
	defer c.Unsubscribe(sub)

	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return true
			}
		case <-t.C:
			return false
		}
	}
}

// call issues a control and reports whether HAL accepted it.
func call(ui *bus.Connection, topic bus.Topic, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	m, err := ui.RequestWait(ctx, ui.NewMessage(topic, payload, false))
	if err != nil {
		return err
	}
	if e, ok := m.Payload.(types.ErrorReply); ok {
		return fmt.Errorf("%s: %s", topic, e.Error)
	}
	return nil
}

// await returns the first value on topic accepted by match.
func await(ui *bus.Connection, topic bus.Topic, d time.Duration, match func(any) bool) (any, bool) {
	sub := ui.Subscribe(topic)
	defer ui.Unsubscribe(sub)
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case m := <-sub.Channel():
			if match(m.Payload) {
				return m.Payload, true
			}
		case <-t.C:
			return nil, false
		}
	}
}

func setLEDs(ui *bus.Connection, on bool) {
	for _, name := range leds {
		_ = call(ui, tCtl("io", types.KindLED, name, "set"), types.LEDSet{Level: on})
	}
}

// ---------- Steps ----------

func blinkLEDs(ui *bus.Connection) bool {
	for i := 0; i < blinks; i++ {
		for _, name := range leds {
			if err := call(ui, tCtl("io", types.KindLED, name, "toggle"), nil); err != nil {
				println("[boardtest] led:", err.Error())
				return false
			}
		}
		time.Sleep(blinkDelay)
	}
	setLEDs(ui, false)
	return true
}

func readBattery(ui *bus.Connection) bool {
	sub := ui.Subscribe(tValue("power", types.KindVoltage, "battery"))
	defer ui.Unsubscribe(sub)
	if err := call(ui, tCtl("power", types.KindVoltage, "battery", "read"), nil); err != nil {
		println("[boardtest] battery:", err.Error())
		return false
	}
	select {
	case m := <-sub.Channel():
		v, ok := m.Payload.(types.VoltageValue)
		if !ok {
			return false
		}
		println("[boardtest] battery:", int(v.MilliV), "mV raw", int(v.Raw))
		return true
	case <-time.After(valueTimeout):
		println("[boardtest] battery: no sample")
		return false
	}
}

func clearPanel(ui *bus.Connection) bool {
	topic := tValue("io", types.KindDisplay, "display")
	before, _ := await(ui, topic, valueTimeout, func(p any) bool { _, ok := p.(types.DisplayValue); return ok })
	prev, _ := before.(types.DisplayValue)

	if err := call(ui, tCtl("io", types.KindDisplay, "display", "clear"), nil); err != nil {
		println("[boardtest] display:", err.Error())
		return false
	}
	_, ok := await(ui, topic, panelTimeout, func(p any) bool {
		v, ok := p.(types.DisplayValue)
		return ok && v.Refreshes > prev.Refreshes && v.State == types.DisplayIdle
	})
	if !ok {
		println("[boardtest] display: refresh not observed")
	}
	return ok
}

func flashResult(ui *bus.Connection, pass bool) {
	if pass {
		// Double short
		for i := 0; i < 2; i++ {
			setLEDs(ui, true)
			time.Sleep(120 * time.Millisecond)
			setLEDs(ui, false)
			time.Sleep(200 * time.Millisecond)
		}
		return
	}
	// Single long
	setLEDs(ui, true)
	time.Sleep(400 * time.Millisecond)
	setLEDs(ui, false)
}

// ---------- Main ----------

func main() {
	time.Sleep(2 * time.Second)
	ctx := context.Background()

	b := bus.NewBus(8)
	halConn := b.NewConnection("hal")
	ui := b.NewConnection("ui")

	go hal.Run(ctx, halConn)
	ui.Publish(ui.NewMessage(bus.T("config", "hal"), hal.DefaultConfig(), true))

	if !waitHALReady(ui, halReadyTimeout) {
		println("[boardtest] HAL not ready within timeout; continuing")
	}

	steps := []struct {
		name string
		run  func(*bus.Connection) bool
	}{
		{"leds", blinkLEDs},
		{"battery", readBattery},
		{"display", clearPanel},
	}
	pass := true
	for _, s := range steps {
		ok := s.run(ui)
		pass = pass && ok
		if ok {
			println("[PASS]", s.name)
		} else {
			println("[FAIL]", s.name)
		}
	}
	flashResult(ui, pass)

	println("[boardtest] press buttons or plug USB; events follow")
	buttons := ui.Subscribe(tButtonEvents)
	vbus := ui.Subscribe(tVBusEvents)
	for {
		select {
		case m := <-buttons.Channel():
			println("[button]", m.Topic.At(4).(string), m.Topic.At(6).(string))
		case m := <-vbus.Channel():
			println("[vbus]", m.Topic.At(6).(string))
		}
	}
}
