package types

import "usb-epaper-go/board"

// Pull selects the input bias of a GPIO.
type Pull string

const (
	PullNone Pull = "none"
	PullUp   Pull = "up"
	PullDown Pull = "down"
)

// ---- LED ----

type LEDParams struct {
	Pin       board.Pin `json:"pin"`
	Initial   bool      `json:"initial,omitempty"`
	ActiveLow bool      `json:"active_low,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Name      string    `json:"name,omitempty"`
}

type LEDInfo struct {
	Pin       string `json:"pin"` // e.g. "PB1"
	ActiveLow bool   `json:"active_low,omitempty"`
}

type LEDValue struct {
	Level uint8 `json:"level"` // 0 or 1, logical
}

type LEDSet struct {
	Level bool `json:"level"`
}

// ---- Buttons ----

type ButtonParams struct {
	Pin    board.Pin `json:"pin"`
	Pull   Pull      `json:"pull,omitempty"`
	Invert bool      `json:"invert,omitempty"` // pressed == low
	Domain string    `json:"domain,omitempty"`
	Name   string    `json:"name"`
}

type ButtonInfo struct {
	Pin string `json:"pin"`
}

type ButtonValue struct {
	Pressed bool `json:"pressed"`
}
