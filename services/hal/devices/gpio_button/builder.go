package gpio_button

import (
	"context"

	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

func init() { core.RegisterBuilder("gpio_button", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.Params[types.ButtonParams](in.Params)
	if err != nil {
		return nil, err
	}
	pull, err := core.PullOf(p.Pull)
	if err != nil {
		return nil, err
	}
	ph, err := in.Res.Reg.ClaimPin(in.ID, p.Pin, core.FuncGPIOIn)
	if err != nil {
		return nil, err
	}
	gpio := ph.AsGPIO()
	if err := gpio.ConfigureInput(pull); err != nil {
		in.Res.Reg.ReleasePin(in.ID, p.Pin)
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
		id:     in.ID,
		gpio:   gpio,
		invert: p.Invert,
		pub:    in.Res.Pub,
		reg:    in.Res.Reg,
		a:      core.CapAddr{Domain: dom, Kind: types.KindButton, Name: name},
	}, nil
}
