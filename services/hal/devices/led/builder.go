package led

import (
	"context"

	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

func init() { core.RegisterBuilder("gpio_led", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.Params[types.LEDParams](in.Params)
	if err != nil {
		return nil, err
	}
	ph, err := in.Res.Reg.ClaimPin(in.ID, p.Pin, core.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	dom, name := p.Domain, p.Name
	if dom == "" {
		dom = "io"
	}
	if name == "" {
		name = in.ID
	}
	return &Device{
		id:        in.ID,
		pin:       ph.AsGPIO(),
		initial:   p.Initial,
		activeLow: p.ActiveLow,
		pub:       in.Res.Pub,
		reg:       in.Res.Reg,
		a:         core.CapAddr{Domain: dom, Kind: types.KindLED, Name: name},
	}, nil
}
