// Package zone contains the per-zone control logic: ramp state machine,
// safety watchdog, PID duty computation and setpoint staging.
// This package does no I/O. Time arrives as durations in Input; the sensor
// reading is taken by the caller and handed in.
package zone

import (
	"fmt"
	"time"

	"github.com/sweeney/bakeout/internal/config"
	"github.com/sweeney/bakeout/internal/pid"
)

// Status is the safety classification of a zone.
type Status string

const (
	// StatusOperable zones may drive their relay.
	StatusOperable Status = "OPERABLE"
	// StatusOnHold zones read out of range but have not yet exceeded the
	// allowed time; they keep driving their relay.
	StatusOnHold Status = "ON_HOLD"
	// StatusInoperable zones never drive their relay again.
	StatusInoperable Status = "INOPERABLE"
)

// Phase is the ramp state of a zone.
type Phase string

const (
	PhaseStartup Phase = "STARTUP"
	PhaseRamping Phase = "RAMPING"
	PhaseHolding Phase = "HOLDING"
)

// Kind tags a Fault.
type Kind int

const (
	// SensorUnreliable means the zone's temperature could not be read.
	// Fatal for the whole process once the scheduler sees it.
	SensorUnreliable Kind = iota + 1
	// ActuatorInoperable means the zone read out of range for too long,
	// most likely a failed relay. Only that zone is affected.
	ActuatorInoperable
)

func (k Kind) String() string {
	switch k {
	case SensorUnreliable:
		return "unreliable"
	case ActuatorInoperable:
		return "inoperable"
	default:
		return "unknown"
	}
}

// Fault is the error record a zone tick can produce.
type Fault struct {
	Kind    Kind
	Zone    int
	Elapsed time.Duration
	Cause   string
	Err     error // underlying sensor error, if any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("tape %d became %s at elapsed time %.2fs due to %s", f.Zone+1, f.Kind, f.Elapsed.Seconds(), f.Cause)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// SharedSetpoint is the per-tick view the synchronizer hands each zone.
// Zones read it and never modify it.
type SharedSetpoint struct {
	// AllSteppedToSame gates step advances. Always true for uncoupled zones.
	AllSteppedToSame bool
	// Coupled is set when the zone belongs to a group; the values below
	// then replace the zone's staged setpoint at the start of the tick.
	Coupled          bool
	SetTemp          float64
	SetRate          float64
	SetKi            float64
	PendingCommit    bool
	WriteEveryMinute bool
}

// Input is everything a zone needs for one tick.
type Input struct {
	Tick     uint64
	Elapsed  time.Duration // since the run started
	LastTick time.Duration // duration of the previous tick
	Reading  float64
	ReadErr  error
	Shared   SharedSetpoint
}

// Limits bound operator-staged setpoints.
type Limits struct {
	MinTemp, MaxTemp float64
	MinRate, MaxRate float64
	MinKi, MaxKi     float64
}

// Params are the configuration values the zone logic depends on.
type Params struct {
	Gains               pid.Gains // Ki is replaced by the zone's own Ki
	StartupDelay        time.Duration
	LargeTempDifference float64
	MaxUnacceptableTime time.Duration
	OvershootMargin     float64
	MinAcceptableTemp   float64
	Limits              Limits
}

// NewParams extracts zone parameters from the controller configuration.
func NewParams(cfg config.Config) Params {
	return Params{
		Gains:               pid.Gains{Kp: cfg.Kp, Ki: cfg.Ki, Kd: cfg.Kd, Scale: cfg.IntegralScale},
		StartupDelay:        cfg.StartupDelay(),
		LargeTempDifference: cfg.LargeTempDifference,
		MaxUnacceptableTime: cfg.MaxUnacceptableTime(),
		OvershootMargin:     cfg.UnacceptableOvershootMargin,
		MinAcceptableTemp:   cfg.MinAcceptableTemp,
		Limits: Limits{
			MinTemp: cfg.MinSetTemp, MaxTemp: cfg.MaxSetTemp,
			MinRate: cfg.MinSetRate, MaxRate: cfg.MaxSetRate,
			MinKi: cfg.MinSetKi, MaxKi: cfg.MaxSetKi,
		},
	}
}

// Setpoint is a temperature target, ramp rate (degrees per minute) and
// integral gain.
type Setpoint struct {
	Temp float64
	Rate float64
	Ki   float64
}
