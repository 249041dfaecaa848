package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindLED     Kind = "led"
	KindButton  Kind = "button"
	KindVBus    Kind = "vbus"
	KindVoltage Kind = "voltage"
	KindDisplay Kind = "display"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // "io" or "power"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}
