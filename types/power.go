package types

import "usb-epaper-go/board"

// ---- USB bus presence ----

type VBusParams struct {
	Pin    board.Pin `json:"pin"`
	Pull   Pull      `json:"pull,omitempty"`
	Invert bool      `json:"invert,omitempty"`
	Name   string    `json:"name"`
}

type VBusInfo struct {
	Pin string `json:"pin"`
}

// Retained value published at hal/cap/power/vbus/<name>/value
type VBusValue struct {
	Present bool `json:"present"`
}

// ---- Battery voltage ----

type VBatParams struct {
	Sense  board.Pin `json:"sense"`  // ADC input
	Enable board.Pin `json:"enable"` // divider enable output
	// EnableActiveLow inverts the enable drive.
	EnableActiveLow bool `json:"enable_active_low,omitempty"`

	RefMilliV  uint32 `json:"ref_mv"`      // ADC full-scale voltage
	DividerNum uint32 `json:"divider_num"` // Vbat = Vsense * Num / Den
	DividerDen uint32 `json:"divider_den"`
	SettleUs   uint32 `json:"settle_us,omitempty"`

	Name string `json:"name"`
}

type VoltageInfo struct {
	Sense      string `json:"sense"`
	Enable     string `json:"enable"`
	RefMilliV  uint32 `json:"ref_mv"`
	DividerNum uint32 `json:"divider_num"`
	DividerDen uint32 `json:"divider_den"`
}

// Retained value published at hal/cap/power/voltage/<name>/value
type VoltageValue struct {
	MilliV uint32 `json:"mv"`
	Raw    uint16 `json:"raw"` // 16-bit left-aligned ADC sample
}
