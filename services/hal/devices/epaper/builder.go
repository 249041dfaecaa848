package epaper

import (
	"context"

	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

func init() { core.RegisterBuilder("epaper", builder{}) }

const queueLen = 4

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.Params[types.DisplayParams](in.Params)
	if err != nil {
		return nil, err
	}
	bus := core.ResourceID(p.Bus)
	panel, err := in.Res.Reg.OpenPanel(in.ID, bus, core.PanelPins{CS: p.CS, DC: p.DC, RST: p.RST, Busy: p.Busy})
	if err != nil {
		return nil, err
	}
	name := p.Name
	if name == "" {
		name = in.ID
	}
	return &Device{
		id:     in.ID,
		bus:    bus,
		params: p,
		panel:  panel,
		res:    in.Res,
		a:      core.CapAddr{Domain: "io", Kind: types.KindDisplay, Name: name},
	}, nil
}
