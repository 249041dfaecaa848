// Firmware entry point for the USB e-paper board.
package main

import (
	"context"
	"time"

	"usb-epaper-go/board"
	"usb-epaper-go/bus"
	"usb-epaper-go/services/config"
	"usb-epaper-go/services/hal"
	"usb-epaper-go/services/heartbeat"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, board.Selected.Name)

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)

	println("[main] subscribing to hal/# for diagnostics …")
	mon := b.NewConnection("monitor").Subscribe(bus.T("hal", "#"))
	go func() {
		for m := range mon.Channel() {
			println("[monitor] <-", m.Topic.String())
		}
	}()

	println("[main] starting hal …")
	go hal.Run(ctx, b.NewConnection("hal"))

	println("[main] starting heartbeat …")
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	println("[main] publishing config for", board.Selected.Name)
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	select {}
}
