package zone

import (
	"math"
	"time"

	"github.com/sweeney/bakeout/internal/pid"
)

// writeInterval is the sample cadence when WriteEveryMinute is set.
const writeInterval = time.Minute

// Zone is the full control and safety state of one heater tape.
// It is a value type; Clone gives a copy that shares no memory, which is
// what each concurrent tick operates on.
type Zone struct {
	ID int

	// Samples holds stored readings indexed by tick.
	Samples    Ring
	LastStored float64
	HasStored  bool

	LastReading float64

	// PID state.
	PrevError float64
	ErrorSum  float64
	Duty      float64

	// Ramp state.
	StepTarget          float64
	StepsTaken          int
	SteppingUp          bool
	HasSteppedToDesired bool
	HasReachedDesired   bool
	SinceLastStep       time.Duration
	// StepComplete is set when the last reading was at or past StepTarget
	// in the ramp direction. Coupled zones compare it before stepping.
	StepComplete bool

	// Committed setpoint.
	DesiredTemp float64
	DesiredRate float64 // always positive
	Ki          float64

	// Staged setpoint, applied by Commit.
	StagedTemp    float64
	StagedRate    float64 // sign follows the ramp direction after Commit
	StagedKi      float64
	PendingCommit bool

	// Safety state.
	Status            Status
	MaxAcceptableTemp float64
	OutOfRange        time.Duration

	WriteEveryMinute bool
	SinceLastWrite   time.Duration
}

// New creates a zone at rest with the given initial setpoint.
func New(id int, set Setpoint, capacity int, p Params) Zone {
	rate := math.Abs(set.Rate)
	return Zone{
		ID:                id,
		Samples:           NewRing(capacity),
		StepTarget:        set.Temp,
		SteppingUp:        true,
		DesiredTemp:       set.Temp,
		DesiredRate:       rate,
		Ki:                set.Ki,
		StagedTemp:        set.Temp,
		StagedRate:        rate,
		StagedKi:          set.Ki,
		Status:            StatusOperable,
		MaxAcceptableTemp: set.Temp + p.OvershootMargin,
	}
}

// Clone returns a deep copy of z.
func (z Zone) Clone() Zone {
	z.Samples = z.Samples.Clone()
	return z
}

// Phase reports where the zone is in its ramp.
func (z Zone) Phase() Phase {
	switch {
	case z.StepsTaken == 0:
		return PhaseStartup
	case z.HasSteppedToDesired:
		return PhaseHolding
	default:
		return PhaseRamping
	}
}

// StepInterval is the minimum time between one-degree steps.
func (z Zone) StepInterval() time.Duration {
	if z.DesiredRate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(60 / z.DesiredRate * float64(time.Second))
}

// Tick runs one control iteration on z and returns the fault it raised, if
// any. z must be a private copy: the scheduler clones canonical state
// before handing it to a tick.
//
// A failed sensor read leaves z untouched. Otherwise the reading is stored,
// the ramp target and safety status are updated and a new duty is computed.
// The duty is computed even for inoperable zones so the PID state stays
// primed; the caller decides whether to actuate.
func (z *Zone) Tick(in Input, p Params) *Fault {
	if in.ReadErr != nil {
		return &Fault{
			Kind:    SensorUnreliable,
			Zone:    z.ID,
			Elapsed: in.Elapsed,
			Cause:   in.ReadErr.Error(),
			Err:     in.ReadErr,
		}
	}

	if in.Shared.Coupled {
		z.StagedTemp = in.Shared.SetTemp
		z.StagedRate = in.Shared.SetRate
		z.StagedKi = in.Shared.SetKi
		z.PendingCommit = in.Shared.PendingCommit
		z.WriteEveryMinute = in.Shared.WriteEveryMinute
	}

	reading := in.Reading
	z.LastReading = reading
	z.store(in.Tick, reading, in.LastTick)

	if z.StepsTaken == 0 && in.Elapsed > p.StartupDelay {
		z.enterRamp(reading)
	}
	z.advanceStep(reading, in.Shared.AllSteppedToSame)
	if z.HasSteppedToDesired && !z.HasReachedDesired && z.reached(reading, z.DesiredTemp) {
		z.HasReachedDesired = true
	}
	z.antiWindup(reading)
	z.SinceLastStep += in.LastTick

	fault := z.watchdog(reading, in, p)
	z.restabilize(reading, p)
	z.StepComplete = z.StepsTaken > 0 && z.reached(reading, z.StepTarget)

	z.computeDuty(reading, p.Gains)
	return fault
}

// store writes the reading into the ring, every tick or once a minute.
func (z *Zone) store(tick uint64, reading float64, lastTick time.Duration) {
	if z.WriteEveryMinute {
		z.SinceLastWrite += lastTick
		if z.HasStored && z.SinceLastWrite < writeInterval {
			return
		}
		z.SinceLastWrite = 0
	}
	z.Samples.Put(tick, reading)
	z.LastStored = reading
	z.HasStored = true
}

// enterRamp starts a ramp from the current reading.
func (z *Zone) enterRamp(reading float64) {
	if z.SteppingUp {
		z.StepTarget = math.Min(math.Ceil(reading), z.DesiredTemp)
	} else {
		z.StepTarget = math.Max(math.Floor(reading), z.DesiredTemp)
	}
	z.ErrorSum = 0
	z.PrevError = 0
	z.SinceLastStep = 0
	z.StepsTaken = 1
}

// advanceStep moves StepTarget one degree toward DesiredTemp when the step
// interval has passed, the reading has reached the current step and the
// coupling gate is open. It reports whether a step was taken.
func (z *Zone) advanceStep(reading float64, gate bool) bool {
	if z.StepsTaken == 0 || !gate {
		return false
	}
	if z.SinceLastStep < z.StepInterval() || !z.reached(reading, z.StepTarget) {
		return false
	}

	switch {
	case z.SteppingUp && z.StepTarget < z.DesiredTemp:
		z.StepTarget = math.Min(z.StepTarget+1, z.DesiredTemp)
		z.StepsTaken++
	case !z.SteppingUp && z.StepTarget > z.DesiredTemp:
		z.StepTarget = math.Max(z.StepTarget-1, z.DesiredTemp)
		z.StepsTaken++
	case !z.HasSteppedToDesired:
		z.HasSteppedToDesired = true
	default:
		return false
	}

	z.ErrorSum = 0
	z.SinceLastStep = 0
	return true
}

// antiWindup clears the integral where it would otherwise build up error
// that only slow cooling (or heating) could unwind.
func (z *Zone) antiWindup(reading float64) {
	if z.SteppingUp {
		if reading >= z.DesiredTemp {
			z.ErrorSum = 0
		}
		return
	}
	if reading > z.StepTarget {
		z.ErrorSum = 0
	}
}

// watchdog classifies the zone's safety status from the reading.
// It returns a fault only on the tick the zone becomes inoperable.
func (z *Zone) watchdog(reading float64, in Input, p Params) *Fault {
	high := reading > z.MaxAcceptableTemp
	low := reading < p.MinAcceptableTemp
	if !high && !low {
		if z.Status != StatusInoperable {
			z.OutOfRange = 0
			z.Status = StatusOperable
		}
		return nil
	}

	z.OutOfRange += in.LastTick
	if z.OutOfRange < p.MaxUnacceptableTime {
		if z.Status != StatusInoperable {
			z.Status = StatusOnHold
		}
		return nil
	}

	if z.Status == StatusInoperable {
		return nil
	}
	z.Status = StatusInoperable
	cause := "reading too low"
	if high {
		cause = "reading too high"
	}
	return &Fault{Kind: ActuatorInoperable, Zone: z.ID, Elapsed: in.Elapsed, Cause: cause}
}

// restabilize restarts the ramp from the current reading when the zone has
// drifted too far from its step target.
func (z *Zone) restabilize(reading float64, p Params) {
	if math.Abs(z.StepTarget-reading) >= p.LargeTempDifference {
		z.StepsTaken = 0
		z.SteppingUp = z.DesiredTemp > reading
	}
}

func (z *Zone) computeDuty(reading float64, g pid.Gains) {
	g.Ki = z.Ki
	out, err := pid.Compute(reading, z.StepTarget, z.PrevError, z.ErrorSum, g)
	z.Duty = pid.Duty(out)
	z.PrevError = err
	z.ErrorSum += err
}

// reached reports whether reading is at or past target in the ramp direction.
func (z Zone) reached(reading, target float64) bool {
	if z.SteppingUp {
		return reading >= target
	}
	return reading <= target
}
