//go:build !stm32

package provider

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"periph.io/x/periph/devices/ssd1306/image1bit"
	"tinygo.org/x/drivers"

	"usb-epaper-go/board"
	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/x/timex"
)

// Ensure the provider satisfies the contracts at compile time.
var (
	_ core.ResourceRegistry = (*SimRegistry)(nil)
	_ drivers.SPI           = (*SimSPI)(nil)
	_ core.Panel            = (*SimPanel)(nil)
)

// Panel geometry of the 2.13" module fitted to the board.
const (
	simPanelWidth  = 128
	simPanelHeight = 250
)

// SimRegistry is the host-side registry. Pins, ADC inputs and the panel
// are simulated; the Set*/Fail* hooks stand in for the outside world.
type SimRegistry struct {
	mu sync.Mutex

	plan     ResourcePlan
	owners   map[board.Pin]pinOwner
	pins     map[board.Pin]*simPin
	edges    map[board.Pin]*simEdges
	buses    map[core.ResourceID]*SimSPI
	busOwner map[core.ResourceID]string
	panels   map[core.ResourceID]*SimPanel
}

type pinOwner struct {
	devID string
	fn    core.PinFunc
}

func NewResourceRegistry(plan ResourcePlan) *SimRegistry {
	r := &SimRegistry{
		plan:     plan,
		owners:   make(map[board.Pin]pinOwner),
		pins:     make(map[board.Pin]*simPin),
		edges:    make(map[board.Pin]*simEdges),
		buses:    make(map[core.ResourceID]*SimSPI),
		busOwner: make(map[core.ResourceID]string),
		panels:   make(map[core.ResourceID]*SimPanel),
	}
	for _, s := range plan.SPI {
		r.buses[core.ResourceID(s.ID)] = &SimSPI{hz: s.Hz}
	}
	return r
}

func (r *SimRegistry) ClassOf(id core.ResourceID) (core.BusClass, bool) {
	if _, ok := r.plan.spi(id); ok {
		return core.BusTransactional, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------
// Pins
// -----------------------------------------------------------------------------

// caller holds r.mu
func (r *SimRegistry) lookupPin(n board.Pin) *simPin {
	if p, ok := r.pins[n]; ok {
		return p
	}
	p := &simPin{n: n}
	r.pins[n] = p
	return p
}

func (r *SimRegistry) ClaimPin(devID string, n board.Pin, fn core.PinFunc) (core.PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimLocked(devID, n, fn)
}

func (r *SimRegistry) claimLocked(devID string, n board.Pin, fn core.PinFunc) (core.PinHandle, error) {
	if !board.Selected.Has(n) {
		return nil, errcode.UnknownPin
	}
	if _, inUse := r.owners[n]; inUse {
		return nil, errcode.PinInUse
	}
	switch fn {
	case core.FuncGPIOIn, core.FuncGPIOOut, core.FuncADC:
	default:
		return nil, errcode.Unsupported
	}
	r.owners[n] = pinOwner{devID: devID, fn: fn}
	return &simPinHandle{p: r.lookupPin(n), fn: fn}, nil
}

func (r *SimRegistry) ReleasePin(devID string, n board.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(devID, n)
}

func (r *SimRegistry) releaseLocked(devID string, n board.Pin) {
	owner, ok := r.owners[n]
	if !ok || owner.devID != devID {
		return
	}
	if es := r.edges[n]; es != nil {
		es.closeLocked()
		delete(r.edges, n)
	}
	// Released pins fall back to input.
	r.lookupPin(n).setOutput(false)
	delete(r.owners, n)
}

func (r *SimRegistry) SubscribeGPIOEdges(devID string, n board.Pin, edge core.Edge, buf int) (core.GPIOEdgeStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[n]
	if !ok || owner.devID != devID || owner.fn != core.FuncGPIOIn {
		return nil, errcode.Conflict
	}
	if _, exists := r.edges[n]; exists {
		return nil, errcode.Busy
	}
	if buf <= 0 {
		buf = 4
	}
	es := &simEdges{r: r, pin: n, edge: edge, ch: make(chan core.GPIOEdgeEvent, buf)}
	r.edges[n] = es
	return es, nil
}

func (r *SimRegistry) UnsubscribeGPIOEdges(devID string, n board.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[n]; !ok || owner.devID != devID {
		return
	}
	if es := r.edges[n]; es != nil {
		es.closeLocked()
		delete(r.edges, n)
	}
}

// Close ends every edge stream.
func (r *SimRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, es := range r.edges {
		es.closeLocked()
		delete(r.edges, n)
	}
}

// -----------------------------------------------------------------------------
// Simulation hooks
// -----------------------------------------------------------------------------

// SetLevel drives an input from outside and delivers the resulting edge.
func (r *SimRegistry) SetLevel(n board.Pin, level bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.lookupPin(n)
	prev, changed := p.drive(level)
	if !changed {
		return
	}
	es := r.edges[n]
	if es == nil {
		return
	}
	e := core.EdgeRising
	if prev {
		e = core.EdgeFalling
	}
	if es.edge != core.EdgeBoth && es.edge != e {
		return
	}
	select {
	case es.ch <- core.GPIOEdgeEvent{Pin: n, Level: level, Edge: e, TSms: timex.NowMs()}:
	default:
	}
}

// Level reports the current level of a pin.
func (r *SimRegistry) Level(n board.Pin) bool {
	r.mu.Lock()
	p := r.lookupPin(n)
	r.mu.Unlock()
	return p.Get()
}

// Writes returns every level the firmware wrote to an output pin.
func (r *SimRegistry) Writes(n board.Pin) []bool {
	r.mu.Lock()
	p := r.lookupPin(n)
	r.mu.Unlock()
	return p.writes()
}

// SetADC sets the raw 16-bit sample returned for an analogue input.
func (r *SimRegistry) SetADC(n board.Pin, raw uint16) {
	r.mu.Lock()
	p := r.lookupPin(n)
	r.mu.Unlock()
	p.mu.Lock()
	p.raw, p.adcErr = raw, nil
	p.mu.Unlock()
}

// FailADC makes the next samples on an analogue input fail with err.
func (r *SimRegistry) FailADC(n board.Pin, err error) {
	r.mu.Lock()
	p := r.lookupPin(n)
	r.mu.Unlock()
	p.mu.Lock()
	p.adcErr = err
	p.mu.Unlock()
}

// Owner returns the device owning a pin, or "".
func (r *SimRegistry) Owner(n board.Pin) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[n].devID
}

// Panel returns the panel opened on a bus, or nil.
func (r *SimRegistry) Panel(id core.ResourceID) *SimPanel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panels[id]
}

// -----------------------------------------------------------------------------
// Simulated pin
// -----------------------------------------------------------------------------

type simPin struct {
	n board.Pin

	mu     sync.Mutex
	level  bool
	output bool
	driven bool // level set from outside; pulls no longer apply
	log    []bool

	raw    uint16
	adcErr error
}

func (p *simPin) drive(level bool) (prev, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.level
	p.driven = true
	p.level = level
	return prev, prev != level
}

func (p *simPin) setOutput(out bool) {
	p.mu.Lock()
	p.output = out
	p.mu.Unlock()
}

func (p *simPin) write(b bool) {
	p.mu.Lock()
	p.level = b
	p.log = append(p.log, b)
	p.mu.Unlock()
}

func (p *simPin) writes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.log...)
}

func (p *simPin) Pin() board.Pin { return p.n }

func (p *simPin) ConfigureInput(pull core.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = false
	if !p.driven {
		switch pull {
		case core.PullUp:
			p.level = true
		case core.PullDown:
			p.level = false
		}
	}
	return nil
}

func (p *simPin) ConfigureOutput(initial bool) error {
	p.setOutput(true)
	p.write(initial)
	return nil
}

func (p *simPin) Set(b bool) { p.write(b) }

func (p *simPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *simPin) Toggle() { p.write(!p.Get()) }

type simADC struct{ p *simPin }

func (a simADC) Pin() board.Pin { return a.p.n }

func (a simADC) Read() (uint16, error) {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()
	if a.p.adcErr != nil {
		return 0, a.p.adcErr
	}
	return a.p.raw, nil
}

type simPinHandle struct {
	p  *simPin
	fn core.PinFunc
}

func (h *simPinHandle) Pin() board.Pin { return h.p.n }

func (h *simPinHandle) AsGPIO() core.GPIOHandle {
	if h.fn != core.FuncGPIOIn && h.fn != core.FuncGPIOOut {
		return nil
	}
	return h.p
}

func (h *simPinHandle) AsADC() core.ADCHandle {
	if h.fn != core.FuncADC {
		return nil
	}
	return simADC{p: h.p}
}

// simEdges is guarded by the registry mutex.
type simEdges struct {
	r      *SimRegistry
	pin    board.Pin
	edge   core.Edge
	ch     chan core.GPIOEdgeEvent
	closed bool
}

func (e *simEdges) Events() <-chan core.GPIOEdgeEvent { return e.ch }

func (e *simEdges) Close() {
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.closeLocked()
	if e.r.edges[e.pin] == e {
		delete(e.r.edges, e.pin)
	}
}

func (e *simEdges) closeLocked() {
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// -----------------------------------------------------------------------------
// SPI + panel
// -----------------------------------------------------------------------------

// SimSPI counts traffic on a simulated SPI controller.
type SimSPI struct {
	mu      sync.Mutex
	hz      uint32
	written int
}

func (s *SimSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	s.written += len(w)
	s.mu.Unlock()
	for i := range r {
		r[i] = 0
	}
	return nil
}

func (s *SimSPI) Transfer(b byte) (byte, error) {
	err := s.Tx([]byte{b}, nil)
	return 0, err
}

// Written reports the number of bytes clocked out so far.
func (s *SimSPI) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (r *SimRegistry) OpenPanel(devID string, id core.ResourceID, pins core.PanelPins) (core.Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spi := r.buses[id]
	if spi == nil {
		return nil, errcode.UnknownBus
	}
	if owner, taken := r.busOwner[id]; taken && owner != devID {
		return nil, errcode.BusInUse
	}

	sp, _ := r.plan.spi(id)
	claims := []struct {
		n  board.Pin
		fn core.PinFunc
	}{
		{pins.CS, core.FuncGPIOOut},
		{pins.DC, core.FuncGPIOOut},
		{pins.RST, core.FuncGPIOOut},
		{pins.Busy, core.FuncGPIOIn},
		{sp.SCK, core.FuncGPIOOut},
		{sp.SDO, core.FuncGPIOOut},
	}
	var got []core.GPIOHandle
	for i, c := range claims {
		ph, err := r.claimLocked(devID, c.n, c.fn)
		if err != nil {
			for _, prev := range claims[:i] {
				r.releaseLocked(devID, prev.n)
			}
			return nil, err
		}
		got = append(got, ph.AsGPIO())
	}
	_ = got[0].ConfigureOutput(true) // CS idle high
	_ = got[1].ConfigureOutput(false)
	_ = got[2].ConfigureOutput(true) // out of reset
	_ = got[3].ConfigureInput(core.PullNone)

	p := newSimPanel(spi, got[0], got[1], got[2], got[3])
	r.busOwner[id] = devID
	r.panels[id] = p
	return p, nil
}

func (r *SimRegistry) ClosePanel(devID string, id core.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busOwner[id] != devID {
		return
	}
	if p := r.panels[id]; p != nil {
		for _, h := range []core.GPIOHandle{p.cs, p.dc, p.rst, p.busy} {
			r.releaseLocked(devID, h.Pin())
		}
		sp, _ := r.plan.spi(id)
		r.releaseLocked(devID, sp.SCK)
		r.releaseLocked(devID, sp.SDO)
	}
	delete(r.panels, id)
	delete(r.busOwner, id)
}

// SimPanel stands in for the e-paper module. A fill renders into a 1-bit
// framebuffer and clocks the packed frame over SPI; set bits are white.
type SimPanel struct {
	spi               *SimSPI
	cs, dc, rst, busy core.GPIOHandle

	mu       sync.Mutex
	frame    *image1bit.VerticalLSB
	last     []byte
	delay    time.Duration
	asleep   bool
	fills    int
	sleeps   int
	black    bool
	failNext error
}

func newSimPanel(spi *SimSPI, cs, dc, rst, busy core.GPIOHandle) *SimPanel {
	return &SimPanel{
		spi: spi, cs: cs, dc: dc, rst: rst, busy: busy,
		frame: image1bit.NewVerticalLSB(image.Rect(0, 0, simPanelWidth, simPanelHeight)),
	}
}

func (p *SimPanel) Size() (int16, int16) { return simPanelWidth, simPanelHeight }

func (p *SimPanel) Fill(black bool) error {
	p.mu.Lock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		p.mu.Unlock()
		return err
	}
	if p.asleep {
		p.mu.Unlock()
		return errcode.NotReady
	}
	var src image.Image = image.White
	if black {
		src = image.Black
	}
	draw.Draw(p.frame, p.frame.Bounds(), src, image.Point{}, draw.Src)
	buf := packRows(p.frame)
	delay := p.delay
	p.mu.Unlock()

	p.cs.Set(false)
	p.dc.Set(true)
	err := p.spi.Tx(buf, nil)
	p.cs.Set(true)
	if err != nil {
		return err
	}
	time.Sleep(delay)

	p.mu.Lock()
	p.fills++
	p.black = black
	p.last = buf
	p.mu.Unlock()
	return nil
}

// packRows serialises the frame row by row, eight pixels per byte, MSB
// first, the order the controller's RAM expects.
func packRows(img *image1bit.VerticalLSB) []byte {
	r := img.Bounds()
	out := make([]byte, 0, r.Dx()/8*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		var b byte
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.BitAt(x, y) {
				b |= 0x80 >> uint(x%8)
			}
			if x%8 == 7 {
				out = append(out, b)
				b = 0
			}
		}
	}
	return out
}

// Frame returns a copy of the last frame sent to the panel.
func (p *SimPanel) Frame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.last...)
}

func (p *SimPanel) Sleep() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asleep = true
	p.sleeps++
	return nil
}

func (p *SimPanel) Wake() error {
	p.rst.Set(false)
	p.rst.Set(true)
	p.mu.Lock()
	p.asleep = false
	p.mu.Unlock()
	return nil
}

// SetRefreshDelay sets how long a fill keeps the panel busy.
func (p *SimPanel) SetRefreshDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// FailNext makes the next fill return err.
func (p *SimPanel) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// Stats reports completed fills, sleeps and the colour of the last fill.
func (p *SimPanel) Stats() (fills, sleeps int, black bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills, p.sleeps, p.black
}

func (p *SimPanel) Asleep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asleep
}

// SPI returns the simulated controller the panel sits on.
func (p *SimPanel) SPI() *SimSPI { return p.spi }
