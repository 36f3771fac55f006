package gpio

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpenThermocouple is returned when the amplifier reports no
// thermocouple on its inputs.
var ErrOpenThermocouple = errors.New("thermocouple not connected")

// settleDelay gives the amplifier time to latch a conversion after chip
// select is pulled low.
const settleDelay = 50 * time.Millisecond

// Thermocouple reads a MAX6675 over bit-banged SPI.
type Thermocouple struct {
	cs, clk, so Line
	// Sleep blocks for the settle delay. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// NewThermocouple wraps chip-select and clock output lines and a data
// input line.
func NewThermocouple(cs, clk, so Line) *Thermocouple {
	return &Thermocouple{cs: cs, clk: clk, so: so}
}

// Read clocks out one 16-bit frame and converts it to degrees C.
func (t *Thermocouple) Read() (float64, error) {
	raw, err := t.frame()
	if err != nil {
		return 0, err
	}
	return decode(raw)
}

func (t *Thermocouple) frame() (raw uint16, err error) {
	sleep := t.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	if err := t.cs.SetValue(0); err != nil {
		return 0, fmt.Errorf("select max6675: %w", err)
	}
	defer func() {
		if cerr := t.cs.SetValue(1); cerr != nil && err == nil {
			err = fmt.Errorf("deselect max6675: %w", cerr)
		}
	}()
	sleep(settleDelay)

	// MSB first; data is valid while the clock is high.
	for i := 0; i < 16; i++ {
		if err := t.clk.SetValue(1); err != nil {
			return 0, fmt.Errorf("clock max6675: %w", err)
		}
		bit, err := t.so.Value()
		if err != nil {
			return 0, fmt.Errorf("read max6675: %w", err)
		}
		raw <<= 1
		if bit != 0 {
			raw |= 1
		}
		if err := t.clk.SetValue(0); err != nil {
			return 0, fmt.Errorf("clock max6675: %w", err)
		}
	}
	return raw, nil
}

// decode converts a MAX6675 frame. Bits 14..3 hold the temperature in
// quarter degrees; bit 2 is set when the thermocouple input is open.
func decode(raw uint16) (float64, error) {
	if raw&0x4 != 0 {
		return 0, ErrOpenThermocouple
	}
	return float64((raw>>3)&0xFFF) * 0.25, nil
}
