// Package board holds the pin assignment of the USB e-paper board.
//
// Pins use the STM32 encoding that TinyGo's machine package uses
// (port*16 + number), so a board.Pin converts to machine.Pin unchanged.
package board

import "strconv"

// Port is a GPIO port of the microcontroller.
type Port uint8

const (
	PortA Port = iota
	PortB
)

// PinsPerPort is the width of one STM32 GPIO port.
const PinsPerPort = 16

func (p Port) String() string {
	return string(rune('A' + p))
}

// Pin identifies a physical microcontroller pin.
type Pin uint8

// P builds a pin from a port and a pin number within that port.
func P(port Port, n uint8) Pin { return Pin(uint8(port)*PinsPerPort + n) }

func (p Pin) Port() Port     { return Port(p / PinsPerPort) }
func (p Pin) Number() uint8  { return uint8(p % PinsPerPort) }
func (p Pin) String() string { return "P" + p.Port().String() + strconv.Itoa(int(p.Number())) }

const (
	portA = Pin(PortA) * PinsPerPort
	portB = Pin(PortB) * PinsPerPort
)

const (
	PA0  = portA + 0
	PA1  = portA + 1
	PA2  = portA + 2
	PA3  = portA + 3
	PA4  = portA + 4
	PA5  = portA + 5
	PA6  = portA + 6
	PA7  = portA + 7
	PA8  = portA + 8
	PA9  = portA + 9
	PA10 = portA + 10
	PA11 = portA + 11
	PA12 = portA + 12
	PA13 = portA + 13
	PA14 = portA + 14
	PA15 = portA + 15

	PB0  = portB + 0
	PB1  = portB + 1
	PB2  = portB + 2
	PB3  = portB + 3
	PB4  = portB + 4
	PB5  = portB + 5
	PB6  = portB + 6
	PB7  = portB + 7
	PB8  = portB + 8
	PB9  = portB + 9
	PB10 = portB + 10
	PB11 = portB + 11
	PB12 = portB + 12
	PB13 = portB + 13
	PB14 = portB + 14
	PB15 = portB + 15
)

// Battery voltage measurement
const (
	VBAT_MEAS_PIN    = PA1
	VBAT_MEAS_EN_PIN = PA2
)

// e-paper panel
const (
	CSN_PIN  = PA3
	DC_PIN   = PA4
	RESN_PIN = PA6
	BUSY_PIN = PB0
)

// LEDs
const (
	LED0_PIN = PB1
	LED1_PIN = PB2
)

// USB bus presence sense
const (
	VBUS_PRESENT_PIN = PB3
)

// Buttons. Numbering follows the silkscreen, not the pin order.
const (
	BUTTON2_PIN = PB12
	BUTTON0_PIN = PB13
	BUTTON3_PIN = PB14
	BUTTON1_PIN = PB15
)
