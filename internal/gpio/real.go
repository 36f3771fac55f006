//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/bakeout/internal/config"
)

// Board owns every GPIO line the controller drives.
type Board struct {
	chip    *gpiocdev.Chip
	relays  []*gpiocdev.Line
	inputs  []*gpiocdev.Line // data lines
	outputs []*gpiocdev.Line // chip select and clock lines

	sensors  []Sensor
	switches []Switch
}

// OpenBoard requests the lines for every zone on the named chip.
// Relays start OFF, chip selects idle high and clocks idle low.
func OpenBoard(chipName string, zones []config.ZoneConfig) (*Board, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	b := &Board{chip: chip}

	for i, z := range zones {
		relay, err := chip.RequestLine(z.Relay, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request relay pin %d for tape %d: %w", z.Relay, i+1, err)
		}
		b.relays = append(b.relays, relay)

		cs, err := chip.RequestLine(z.ChipSelect, gpiocdev.AsOutput(1))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request chip select pin %d for tape %d: %w", z.ChipSelect, i+1, err)
		}
		b.outputs = append(b.outputs, cs)

		clk, err := chip.RequestLine(z.Clock, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request clock pin %d for tape %d: %w", z.Clock, i+1, err)
		}
		b.outputs = append(b.outputs, clk)

		so, err := chip.RequestLine(z.Data, gpiocdev.AsInput)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request data pin %d for tape %d: %w", z.Data, i+1, err)
		}
		b.inputs = append(b.inputs, so)

		b.sensors = append(b.sensors, NewThermocouple(cs, clk, so))
		b.switches = append(b.switches, NewRelay(relay))
	}
	return b, nil
}

// Sensors returns one thermocouple per zone, index aligned with the config.
func (b *Board) Sensors() []Sensor { return b.sensors }

// Switches returns one relay per zone, index aligned with the config.
func (b *Board) Switches() []Switch { return b.switches }

// Close drives every relay low and releases all lines.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so nothing is left energised across a reboot.
func (b *Board) Close() error {
	var errs []error

	for i, l := range b.relays {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("relay %d off: %w", i+1, err))
		}
	}
	for _, group := range [][]*gpiocdev.Line{b.relays, b.outputs, b.inputs} {
		for _, l := range group {
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
			}
			if err := l.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close pin: %w", err))
			}
		}
	}
	b.relays, b.outputs, b.inputs = nil, nil, nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}
	return errors.Join(errs...)
}
