package core

import (
	"context"

	"usb-epaper-go/errcode"
	"usb-epaper-go/types"
)

// ---- Capability & device model ----

type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string // empty => inferred from Kind
	Kind   types.Kind
	Name   string // empty => device ID
	Info   types.Info
}

// EnqueueResult is a device's answer to a control verb. OK only means the
// request was accepted; results arrive later as events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Control must not block.
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device → HAL telemetry ----
// An Event with an empty EventTag is a value update, published retained to
// .../value. A tagged Event is published non-retained to .../event/<tag>.
// A non-empty Err publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TSms     int64 // zero => HAL stamps on publication
	Err      string
	EventTag string
}

type EventEmitter interface {
	// Emit must not block; false reports a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // set by HAL
}

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
