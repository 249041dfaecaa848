package provider

import (
	"usb-epaper-go/board"
	"usb-epaper-go/services/hal/internal/core"
)

// ResourcePlan wires controllers and sets their operating parameters.
type ResourcePlan struct {
	SPI []SPIPlan
}

// SPIPlan describes one SPI controller. Only the transmit direction is
// wired; the panel never drives data back.
type SPIPlan struct {
	ID  string // "spi0"
	Hz  uint32
	SCK board.Pin
	SDO board.Pin
}

func (p ResourcePlan) spi(id core.ResourceID) (SPIPlan, bool) {
	for _, s := range p.SPI {
		if core.ResourceID(s.ID) == id {
			return s, true
		}
	}
	return SPIPlan{}, false
}
