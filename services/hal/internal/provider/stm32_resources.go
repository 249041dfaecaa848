//go:build stm32

package provider

import (
	"image/color"
	"machine"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/waveshare-epd/epd2in13"

	"usb-epaper-go/board"
	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/x/timex"
)

var _ core.ResourceRegistry = (*Registry)(nil)

// Registry hands out the microcontroller's pins and SPI controller.
type Registry struct {
	mu sync.Mutex

	plan     ResourcePlan
	owners   map[board.Pin]string
	edges    map[board.Pin]*edgeStream
	busOwner map[core.ResourceID]string

	adcOnce sync.Once
}

func NewResourceRegistry(plan ResourcePlan) *Registry {
	return &Registry{
		plan:     plan,
		owners:   make(map[board.Pin]string),
		edges:    make(map[board.Pin]*edgeStream),
		busOwner: make(map[core.ResourceID]string),
	}
}

func (r *Registry) ClassOf(id core.ResourceID) (core.BusClass, bool) {
	if _, ok := r.plan.spi(id); ok {
		return core.BusTransactional, true
	}
	return 0, false
}

func (r *Registry) ClaimPin(devID string, n board.Pin, fn core.PinFunc) (core.PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimLocked(devID, n); err != nil {
		return nil, err
	}
	switch fn {
	case core.FuncGPIOIn, core.FuncGPIOOut:
		return pinHandle{gpio: &gpioPin{p: n.Machine()}}, nil
	case core.FuncADC:
		r.adcOnce.Do(machine.InitADC)
		a := machine.ADC{Pin: n.Machine()}
		a.Configure(machine.ADCConfig{})
		return pinHandle{adc: adcPin{n: n, a: a}}, nil
	}
	delete(r.owners, n)
	return nil, errcode.Unsupported
}

func (r *Registry) claimLocked(devID string, n board.Pin) error {
	if !board.Selected.Has(n) {
		return errcode.UnknownPin
	}
	if _, inUse := r.owners[n]; inUse {
		return errcode.PinInUse
	}
	r.owners[n] = devID
	return nil
}

func (r *Registry) ReleasePin(devID string, n board.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(devID, n)
}

func (r *Registry) releaseLocked(devID string, n board.Pin) {
	if r.owners[n] != devID {
		return
	}
	if es := r.edges[n]; es != nil {
		es.stop()
		delete(r.edges, n)
	}
	n.Machine().Configure(machine.PinConfig{Mode: machine.PinInput})
	delete(r.owners, n)
}

// Close detaches every pin interrupt.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, es := range r.edges {
		es.stop()
		delete(r.edges, n)
	}
}

// ---- GPIO ----

type gpioPin struct{ p machine.Pin }

func (g *gpioPin) Pin() board.Pin { return board.Pin(g.p) }

func (g *gpioPin) ConfigureInput(pull core.Pull) error {
	mode := machine.PinInput
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	}
	g.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (g *gpioPin) ConfigureOutput(initial bool) error {
	g.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	g.p.Set(initial)
	return nil
}

func (g *gpioPin) Set(b bool) { g.p.Set(b) }
func (g *gpioPin) Get() bool  { return g.p.Get() }
func (g *gpioPin) Toggle()    { g.p.Set(!g.p.Get()) }

// ---- ADC ----

// adcPin returns TinyGo's 16-bit left-aligned samples as is.
type adcPin struct {
	n board.Pin
	a machine.ADC
}

func (a adcPin) Pin() board.Pin        { return a.n }
func (a adcPin) Read() (uint16, error) { return a.a.Get(), nil }

type pinHandle struct {
	gpio *gpioPin
	adc  core.ADCHandle
}

func (h pinHandle) Pin() board.Pin {
	if h.gpio != nil {
		return h.gpio.Pin()
	}
	return h.adc.Pin()
}

func (h pinHandle) AsGPIO() core.GPIOHandle {
	if h.gpio == nil {
		return nil
	}
	return h.gpio
}

func (h pinHandle) AsADC() core.ADCHandle { return h.adc }

// ---- Edges ----

// edgeStream forwards pin interrupts. The callback runs in interrupt
// context: it only samples the pin and offers to the channel.
type edgeStream struct {
	r    *Registry
	pin  machine.Pin
	ch   chan core.GPIOEdgeEvent
	once sync.Once
}

func (r *Registry) SubscribeGPIOEdges(devID string, n board.Pin, edge core.Edge, buf int) (core.GPIOEdgeStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[n] != devID {
		return nil, errcode.Conflict
	}
	if _, exists := r.edges[n]; exists {
		return nil, errcode.Busy
	}
	var change machine.PinChange
	switch edge {
	case core.EdgeRising:
		change = machine.PinRising
	case core.EdgeFalling:
		change = machine.PinFalling
	case core.EdgeBoth:
		change = machine.PinToggle
	default:
		return nil, errcode.InvalidParams
	}
	if buf <= 0 {
		buf = 4
	}
	es := &edgeStream{r: r, pin: n.Machine(), ch: make(chan core.GPIOEdgeEvent, buf)}
	err := es.pin.SetInterrupt(change, func(p machine.Pin) {
		lvl := p.Get()
		e := core.EdgeFalling
		if lvl {
			e = core.EdgeRising
		}
		select {
		case es.ch <- core.GPIOEdgeEvent{Pin: board.Pin(p), Level: lvl, Edge: e, TSms: timex.NowMs()}:
		default:
		}
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "subscribe edges", err)
	}
	r.edges[n] = es
	return es, nil
}

func (r *Registry) UnsubscribeGPIOEdges(devID string, n board.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[n] != devID {
		return
	}
	if es := r.edges[n]; es != nil {
		es.stop()
		delete(r.edges, n)
	}
}

func (e *edgeStream) Events() <-chan core.GPIOEdgeEvent { return e.ch }

func (e *edgeStream) Close() {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.stop()
	n := board.Pin(e.pin)
	if e.r.edges[n] == e {
		delete(e.r.edges, n)
	}
}

// caller holds r.mu
func (e *edgeStream) stop() {
	e.once.Do(func() {
		_ = e.pin.SetInterrupt(0, nil)
		close(e.ch)
	})
}

// ---- SPI + e-paper ----

// spiFor maps plan IDs onto controllers. STM32 targets alias SPI0 to the
// first hardware controller.
func spiFor(id core.ResourceID) *machine.SPI {
	switch id {
	case "spi0", "spi1":
		return machine.SPI1
	}
	return nil
}

func (r *Registry) OpenPanel(devID string, id core.ResourceID, pins core.PanelPins) (core.Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sp, ok := r.plan.spi(id)
	spi := spiFor(id)
	if !ok || spi == nil {
		return nil, errcode.UnknownBus
	}
	if owner, taken := r.busOwner[id]; taken && owner != devID {
		return nil, errcode.BusInUse
	}
	claimed := []board.Pin{}
	for _, n := range []board.Pin{pins.CS, pins.DC, pins.RST, pins.Busy, sp.SCK, sp.SDO} {
		if err := r.claimLocked(devID, n); err != nil {
			for _, c := range claimed {
				delete(r.owners, c)
			}
			return nil, err
		}
		claimed = append(claimed, n)
	}

	// Controller first: the driver then reconfigures its own control pins.
	if err := spi.Configure(machine.SPIConfig{
		Frequency: sp.Hz,
		SCK:       sp.SCK.Machine(),
		SDO:       sp.SDO.Machine(),
		SDI:       machine.NoPin,
		Mode:      0,
	}); err != nil {
		for _, c := range claimed {
			delete(r.owners, c)
		}
		return nil, errcode.Wrap(errcode.Error, "configure spi", err)
	}

	p := newPanel(spi, pins)
	r.busOwner[id] = devID
	return p, nil
}

func (r *Registry) ClosePanel(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busOwner[id] != devID {
		return
	}
	for n, owner := range r.owners {
		if owner == devID {
			r.releaseLocked(devID, n)
		}
	}
	delete(r.busOwner, id)
}

// panel adapts the epd2in13 driver. The driver blocks on BUSY itself.
type panel struct {
	epd epd2in13.Device
}

func newPanel(bus drivers.SPI, pins core.PanelPins) *panel {
	p := &panel{epd: epd2in13.New(bus, pins.CS.Machine(), pins.DC.Machine(), pins.RST.Machine(), pins.Busy.Machine())}
	p.epd.Configure(epd2in13.Config{})
	return p
}

func (p *panel) Size() (int16, int16) { return p.epd.Size() }

func (p *panel) Fill(black bool) error {
	if !black {
		p.epd.ClearBuffer()
		p.epd.ClearDisplay()
		p.epd.WaitUntilIdle()
		return nil
	}
	ink := color.RGBA{A: 0xFF}
	w, h := p.epd.Size()
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			p.epd.SetPixel(x, y, ink)
		}
	}
	if err := p.epd.Display(); err != nil {
		return err
	}
	p.epd.WaitUntilIdle()
	return nil
}

func (p *panel) Sleep() error {
	p.epd.DeepSleep()
	return nil
}

// Wake leaves deep sleep; only a hardware reset and re-init do that.
func (p *panel) Wake() error {
	p.epd.Configure(epd2in13.Config{})
	return nil
}
