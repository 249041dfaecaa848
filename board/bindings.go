package board

// Mode is the direction the firmware drives a bound signal in.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeAnalog
)

func (m Mode) String() string {
	switch m {
	case ModeOutput:
		return "output"
	case ModeAnalog:
		return "analog"
	default:
		return "input"
	}
}

// Binding associates a symbolic signal name with a physical pin.
type Binding struct {
	Name string
	Pin  Pin
	Mode Mode
}

// Kept in declaration order of the original board header.
var bindings = [...]Binding{
	{"VBAT_MEAS_PIN", VBAT_MEAS_PIN, ModeAnalog},
	{"VBAT_MEAS_EN_PIN", VBAT_MEAS_EN_PIN, ModeOutput},
	{"CSN_PIN", CSN_PIN, ModeOutput},
	{"DC_PIN", DC_PIN, ModeOutput},
	{"RESN_PIN", RESN_PIN, ModeOutput},
	{"BUSY_PIN", BUSY_PIN, ModeInput},
	{"LED0_PIN", LED0_PIN, ModeOutput},
	{"LED1_PIN", LED1_PIN, ModeOutput},
	{"VBUS_PRESENT_PIN", VBUS_PRESENT_PIN, ModeInput},
	{"BUTTON2_PIN", BUTTON2_PIN, ModeInput},
	{"BUTTON0_PIN", BUTTON0_PIN, ModeInput},
	{"BUTTON3_PIN", BUTTON3_PIN, ModeInput},
	{"BUTTON1_PIN", BUTTON1_PIN, ModeInput},
}

// Bindings returns a copy of the binding table.
func Bindings() []Binding {
	out := make([]Binding, len(bindings))
	copy(out, bindings[:])
	return out
}

// Lookup resolves a symbolic name to its pin.
func Lookup(name string) (Pin, bool) {
	for i := range bindings {
		if bindings[i].Name == name {
			return bindings[i].Pin, true
		}
	}
	return 0, false
}

// NameOf returns the symbolic name bound to p, if any.
func NameOf(p Pin) (string, bool) {
	for i := range bindings {
		if bindings[i].Pin == p {
			return bindings[i].Name, true
		}
	}
	return "", false
}
