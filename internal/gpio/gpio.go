// Package gpio connects zones to hardware: a MAX6675 thermocouple amplifier
// per zone, bit-banged over three GPIO lines, and a solid-state relay on a
// fourth. The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

// Sensor reads a temperature in degrees C.
type Sensor interface {
	Read() (float64, error)
}

// Switch drives a relay.
type Switch interface {
	SetOn() error
	SetOff() error
}

// Line is the subset of a requested GPIO line the adapters use.
// *gpiocdev.Line satisfies it.
type Line interface {
	SetValue(value int) error
	Value() (int, error)
}

// Relay switches a solid-state relay. Active high.
type Relay struct {
	line Line
}

// NewRelay wraps an output line.
func NewRelay(l Line) *Relay {
	return &Relay{line: l}
}

// SetOn energises the relay.
func (r *Relay) SetOn() error {
	return r.line.SetValue(1)
}

// SetOff releases the relay.
func (r *Relay) SetOff() error {
	return r.line.SetValue(0)
}
