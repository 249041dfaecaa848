package vbat_adc

import (
	"context"

	"usb-epaper-go/errcode"
	"usb-epaper-go/services/hal/internal/core"
	"usb-epaper-go/types"
)

func init() { core.RegisterBuilder("vbat_adc", builder{}) }

// 3.3 V supply, 1:2 divider unless configured otherwise.
const (
	defaultRefMilliV = 3300
	defaultSettleUs  = 1000
)

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.Params[types.VBatParams](in.Params)
	if err != nil {
		return nil, err
	}
	if p.Sense == p.Enable {
		return nil, errcode.InvalidParams
	}
	if p.RefMilliV == 0 {
		p.RefMilliV = defaultRefMilliV
	}
	if p.DividerNum == 0 || p.DividerDen == 0 {
		p.DividerNum, p.DividerDen = 2, 1
	}
	if p.SettleUs == 0 {
		p.SettleUs = defaultSettleUs
	}

	reg := in.Res.Reg
	sph, err := reg.ClaimPin(in.ID, p.Sense, core.FuncADC)
	if err != nil {
		return nil, err
	}
	eph, err := reg.ClaimPin(in.ID, p.Enable, core.FuncGPIOOut)
	if err != nil {
		reg.ReleasePin(in.ID, p.Sense)
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = in.ID
	}
	return &Device{
		id:     in.ID,
		adc:    sph.AsADC(),
		en:     eph.AsGPIO(),
		params: p,
		res:    in.Res,
		a:      core.CapAddr{Domain: "power", Kind: types.KindVoltage, Name: name},
	}, nil
}
