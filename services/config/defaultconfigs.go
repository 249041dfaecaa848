package config

import (
	"usb-epaper-go/services/hal"
	"usb-epaper-go/services/heartbeat"
)

// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: top-level config keys for that device
var embeddedConfigs = map[string]func() map[string]any{
	"usb_epaper": func() map[string]any {
		return map[string]any{
			"hal":       hal.DefaultConfig(),
			"heartbeat": heartbeat.Config{IntervalMs: 2000},
		}
	},
}
