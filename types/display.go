package types

import "usb-epaper-go/board"

// DisplayParams wires an e-paper panel to its SPI controller and
// control lines.
type DisplayParams struct {
	Bus  string    `json:"bus"` // e.g. "spi0"
	CS   board.Pin `json:"cs"`
	DC   board.Pin `json:"dc"`
	RST  board.Pin `json:"rst"`
	Busy board.Pin `json:"busy"`

	Name string `json:"name"`
}

type DisplayInfo struct {
	Bus    string `json:"bus"`
	Width  int16  `json:"width"`
	Height int16  `json:"height"`
	CS     string `json:"cs"`
	DC     string `json:"dc"`
	RST    string `json:"rst"`
	Busy   string `json:"busy"`
}

type DisplayState string

const (
	DisplayIdle     DisplayState = "idle"
	DisplayRefresh  DisplayState = "refreshing"
	DisplaySleeping DisplayState = "sleeping"
)

// Retained value published at hal/cap/io/display/<name>/value
type DisplayValue struct {
	State     DisplayState `json:"state"`
	Refreshes uint32       `json:"refreshes"`
}

// Controls
type DisplayFill struct {
	Black bool `json:"black"` // verb: "fill"
}
