//go:build stm32

package board

import "machine"

// Machine returns the TinyGo pin for p.
func (p Pin) Machine() machine.Pin { return machine.Pin(p) }

// Compile-time check that the encoding matches the target's machine package.
var (
	_ = [1]struct{}{}[machine.PB0-machine.Pin(BUSY_PIN)]
	_ = [1]struct{}{}[machine.PA1-machine.Pin(VBAT_MEAS_PIN)]
)
