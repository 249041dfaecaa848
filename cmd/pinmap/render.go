package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"usb-epaper-go/board"
)

// Entry is the machine-readable form of one binding.
type Entry struct {
	Name   string `json:"name" yaml:"name"`
	Pin    string `json:"pin" yaml:"pin"`
	Port   string `json:"port" yaml:"port"`
	Number uint8  `json:"number" yaml:"number"`
	Mode   string `json:"mode" yaml:"mode"`
}

// Listing is the document written by the yaml and json renderers.
type Listing struct {
	Board    string  `json:"board" yaml:"board"`
	PanelSPI string  `json:"panel_spi" yaml:"panel_spi"`
	Pins     []Entry `json:"pins" yaml:"pins"`
}

func listing(d board.Descriptor, bs []board.Binding) Listing {
	l := Listing{Board: d.Name, PanelSPI: d.PanelSPI, Pins: make([]Entry, 0, len(bs))}
	for _, b := range bs {
		l.Pins = append(l.Pins, Entry{
			Name:   b.Name,
			Pin:    b.Pin.String(),
			Port:   b.Pin.Port().String(),
			Number: b.Pin.Number(),
			Mode:   b.Mode.String(),
		})
	}
	return l
}

// Guard is the include guard of the generated header.
const Guard = "USB_EPAPER_BOARD_H"

// WriteHeader writes the bindings as the board's Arduino header, one
// define per pin.
func WriteHeader(w io.Writer, bs []board.Binding) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", Guard, Guard)
	sb.WriteString("#include <Arduino.h>\n\n")
	for _, b := range bs {
		fmt.Fprintf(&sb, "#define %s %s\n", b.Name, b.Pin)
	}
	sb.WriteString("\n#endif\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteTable writes the bindings as a Markdown table.
func WriteTable(w io.Writer, bs []board.Binding) error {
	var sb strings.Builder
	sb.WriteString("| Name | Pin | Mode |\n|---|---|---|\n")
	for _, b := range bs {
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", b.Name, b.Pin, b.Mode)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func WriteYAML(w io.Writer, d board.Descriptor, bs []board.Binding) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(listing(d, bs)); err != nil {
		return err
	}
	return enc.Close()
}

func WriteJSON(w io.Writer, d board.Descriptor, bs []board.Binding) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(listing(d, bs))
}
