// Package setups holds the HAL wiring of the board: the resource plan
// the provider instantiates and the device list HAL is configured with.
package setups

import (
	"usb-epaper-go/board"
	"usb-epaper-go/services/hal/internal/provider"
	"usb-epaper-go/types"

	// Device builders referenced by SelectedSetup.
	_ "usb-epaper-go/services/hal/devices/epaper"
	_ "usb-epaper-go/services/hal/devices/gpio_button"
	_ "usb-epaper-go/services/hal/devices/led"
	_ "usb-epaper-go/services/hal/devices/vbat_adc"
	_ "usb-epaper-go/services/hal/devices/vbus_sense"
)

// Panel controller. SCK and SDO follow the SPI1 default mapping; PA6,
// the controller's SDI, is the panel reset line.
var SelectedPlan = provider.ResourcePlan{
	SPI: []provider.SPIPlan{
		{ID: board.Selected.PanelSPI, Hz: 4_000_000, SCK: board.PA5, SDO: board.PA7},
	},
}

const vbatPollMs = 30_000

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "led0", Type: "gpio_led", Params: types.LEDParams{Pin: board.LED0_PIN, Name: "led0"}},
		{ID: "led1", Type: "gpio_led", Params: types.LEDParams{Pin: board.LED1_PIN, Name: "led1"}},

		// Buttons short to ground.
		{ID: "button0", Type: "gpio_button", Params: button(board.BUTTON0_PIN, "button0")},
		{ID: "button1", Type: "gpio_button", Params: button(board.BUTTON1_PIN, "button1")},
		{ID: "button2", Type: "gpio_button", Params: button(board.BUTTON2_PIN, "button2")},
		{ID: "button3", Type: "gpio_button", Params: button(board.BUTTON3_PIN, "button3")},

		{ID: "vbus", Type: "vbus_sense", Params: types.VBusParams{
			Pin: board.VBUS_PRESENT_PIN, Pull: types.PullDown, Name: "usb",
		}},

		// 1:2 divider against the 3.3 V reference.
		{ID: "vbat", Type: "vbat_adc", Params: types.VBatParams{
			Sense:      board.VBAT_MEAS_PIN,
			Enable:     board.VBAT_MEAS_EN_PIN,
			RefMilliV:  3300,
			DividerNum: 2,
			DividerDen: 1,
			SettleUs:   1000,
			Name:       "battery",
		}},

		{ID: "display", Type: "epaper", Params: types.DisplayParams{
			Bus:  board.Selected.PanelSPI,
			CS:   board.CSN_PIN,
			DC:   board.DC_PIN,
			RST:  board.RESN_PIN,
			Busy: board.BUSY_PIN,
			Name: "display",
		}},
	},
	Pollers: []types.PollSpec{
		{Domain: "power", Kind: types.KindVoltage, Name: "battery", Verb: "read", IntervalMs: vbatPollMs, JitterMs: 500},
	},
}

func button(pin board.Pin, name string) types.ButtonParams {
	return types.ButtonParams{Pin: pin, Pull: types.PullUp, Invert: true, Domain: "io", Name: name}
}
