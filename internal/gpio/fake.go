package gpio

import (
	"errors"
	"sync"
)

// FakeSensor is a test double that returns scripted temperatures.
type FakeSensor struct {
	mu sync.Mutex

	// Readings are returned in order; the last one repeats.
	Readings []float64
	index    int

	// Err, if set, is returned by Read instead of a reading.
	Err error

	// Reads counts calls to Read.
	Reads int
}

// NewFakeSensor creates a FakeSensor with the given readings.
func NewFakeSensor(readings ...float64) *FakeSensor {
	return &FakeSensor{Readings: readings}
}

// Read returns the next scripted reading.
func (f *FakeSensor) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++

	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script with a single repeating reading.
func (f *FakeSensor) Set(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings = []float64{v}
	f.index = 0
}

// Fail makes every following Read return err. Nil clears it.
func (f *FakeSensor) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// FakeRelay records relay transitions.
type FakeRelay struct {
	mu sync.Mutex

	on      bool
	onCount int
	offs    int

	// Err, if set, is returned by SetOn and SetOff.
	Err error
}

// SetOn records an ON transition.
func (f *FakeRelay) SetOn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.on = true
	f.onCount++
	return nil
}

// SetOff records an OFF transition.
func (f *FakeRelay) SetOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.on = false
	f.offs++
	return nil
}

// On reports the current relay state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// OnCount is the number of times the relay was switched ON.
func (f *FakeRelay) OnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onCount
}

// OffCount is the number of times the relay was switched OFF.
func (f *FakeRelay) OffCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offs
}
