package core

import (
	"usb-epaper-go/board"
	"usb-epaper-go/errcode"
	"usb-epaper-go/types"
)

// ---- Bus taxonomy ----

type BusClass uint8

const (
	BusTransactional BusClass = iota // SPI
	BusStream                        // USB CDC
)

type ResourceID string // e.g. "spi0"

// ---- Pins ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// PullOf maps a configured bias onto the registry's. Empty means none.
func PullOf(p types.Pull) (Pull, error) {
	switch p {
	case "", types.PullNone:
		return PullNone, nil
	case types.PullUp:
		return PullUp, nil
	case types.PullDown:
		return PullDown, nil
	}
	return PullNone, errcode.InvalidParams
}

type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// PinFunc is the role a pin is claimed for.
type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	FuncADC
)

type GPIOHandle interface {
	Pin() board.Pin
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	Toggle()
}

// ADCHandle samples one analogue input. Samples are 16-bit, left-aligned,
// whatever the converter's native resolution.
type ADCHandle interface {
	Pin() board.Pin
	Read() (uint16, error)
}

// PinHandle is the result of a claim; only the view matching the claimed
// function is valid, the others return nil.
type PinHandle interface {
	Pin() board.Pin
	AsGPIO() GPIOHandle
	AsADC() ADCHandle
}

// GPIOEdgeEvent is one observed transition. Level is the raw pin level
// after the edge.
type GPIOEdgeEvent struct {
	Pin   board.Pin
	Level bool
	Edge  Edge
	TSms  int64
}

type GPIOEdgeStream interface {
	Events() <-chan GPIOEdgeEvent
	Close()
}

// ---- e-paper panel ----

type PanelPins struct {
	CS, DC, RST, Busy board.Pin
}

// Panel is an opened e-paper panel. Every method that touches the glass
// blocks until the panel reports idle, which takes seconds.
type Panel interface {
	Size() (w, h int16)
	Fill(black bool) error
	Sleep() error
	Wake() error
}

// ---- Unified registry interface ----

type ResourceRegistry interface {
	ClassOf(id ResourceID) (BusClass, bool)

	// Exclusive pin claims. Claiming a pin outside the board fails with
	// errcode.UnknownPin, a pin owned by another device with PinInUse.
	ClaimPin(devID string, pin board.Pin, fn PinFunc) (PinHandle, error)
	ReleasePin(devID string, pin board.Pin)

	// Edge notification for an input pin already claimed by devID.
	SubscribeGPIOEdges(devID string, pin board.Pin, edge Edge, buf int) (GPIOEdgeStream, error)
	UnsubscribeGPIOEdges(devID string, pin board.Pin)

	// OpenPanel claims the SPI controller and the panel's control pins.
	OpenPanel(devID string, bus ResourceID, pins PanelPins) (Panel, error)
	ClosePanel(devID string, bus ResourceID)
}
