// Package hal runs the hardware abstraction service for the board. All
// pin, ADC and panel access goes through it; clients talk to it over
// the bus under hal/cap/...
package hal

import (
	"context"

	"usb-epaper-go/bus"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/services/hal/internal/provider"
	"usb-epaper-go/services/hal/internal/provider/setups"
	"usb-epaper-go/types"
)

// Run serves HAL on conn until ctx is cancelled. Devices are built from
// the HALConfig retained at config/hal.
func Run(ctx context.Context, conn *bus.Connection) {
	serve(ctx, conn, provider.NewResourceRegistry(setups.SelectedPlan))
}

// DefaultConfig is the board's device list, published by the config
// service under config/hal.
func DefaultConfig() types.HALConfig { return setups.SelectedSetup }

func serve(ctx context.Context, conn *bus.Connection, reg core.ResourceRegistry) {
	core.NewHAL(conn, core.Resources{Reg: reg}).Run(ctx)
	if c, ok := reg.(interface{ Close() }); ok {
		c.Close()
	}
}
