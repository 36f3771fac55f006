// Package actuator time-proportions a duty fraction onto an on/off output.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/bakeout/internal/pid"
)

// Output is a two-state switch, normally a solid-state relay.
type Output interface {
	SetOn() error
	SetOff() error
}

// DutyCycle drives an Output for one period at a time.
type DutyCycle struct {
	Period time.Duration
	// Sleep blocks for the given duration. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// New returns a DutyCycle with the given period that sleeps in real time.
func New(period time.Duration) DutyCycle {
	return DutyCycle{Period: period}
}

// Run holds out ON for duty*Period and then OFF for the rest of the period.
// An inoperable zone is held OFF for the whole period and never switched ON.
// The output is always left OFF when Run returns without error.
func (d DutyCycle) Run(out Output, duty float64, inoperable bool) error {
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	if inoperable {
		if err := out.SetOff(); err != nil {
			return fmt.Errorf("set output off: %w", err)
		}
		sleep(d.Period)
		return nil
	}

	on := time.Duration(pid.Duty(duty) * float64(d.Period))
	off := d.Period - on

	if on > 0 {
		if err := out.SetOn(); err != nil {
			return fmt.Errorf("set output on: %w", err)
		}
		sleep(on)
	}
	if err := out.SetOff(); err != nil {
		return fmt.Errorf("set output off: %w", err)
	}
	if off > 0 {
		sleep(off)
	}
	return nil
}

// ForceOff drives every output OFF, attempting all of them even when some
// fail, and returns the joined errors.
func ForceOff(outs []Output) error {
	var errs []error
	for i, o := range outs {
		if o == nil {
			continue
		}
		if err := o.SetOff(); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
