package board

// Descriptor describes what the board can do (ports present, panel bus).
// It must not include operating parameters such as clock rates.
type Descriptor struct {
	Name  string
	Ports []Port

	// SPI controller wired to the e-paper panel.
	PanelSPI string
}

var Selected = Descriptor{
	Name:     "usb_epaper",
	Ports:    []Port{PortA, PortB},
	PanelSPI: "spi0",
}

// Has reports whether p lies on a port present on the board.
func (d Descriptor) Has(p Pin) bool {
	for _, port := range d.Ports {
		if p.Port() == port {
			return true
		}
	}
	return false
}
