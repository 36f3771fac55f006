package zone

import "math"

// Commit makes the staged setpoint the committed one and restarts the ramp.
// The ramp direction is decided against the current step target, and the
// staged rate takes the sign of that direction.
func (z *Zone) Commit(overshootMargin float64) {
	if z.StagedTemp >= z.StepTarget {
		z.SteppingUp = true
		z.StagedRate = math.Abs(z.StagedRate)
	} else {
		z.SteppingUp = false
		z.StagedRate = -math.Abs(z.StagedRate)
	}

	z.HasSteppedToDesired = false
	z.HasReachedDesired = false
	z.StepsTaken = 0
	z.StepComplete = false

	z.DesiredTemp = z.StagedTemp
	z.DesiredRate = math.Abs(z.StagedRate)
	z.Ki = z.StagedKi
	z.MaxAcceptableTemp = z.DesiredTemp + overshootMargin
	z.PendingCommit = false
}

// Staged returns the staged setpoint.
func (z Zone) Staged() Setpoint {
	return Setpoint{Temp: z.StagedTemp, Rate: z.StagedRate, Ki: z.StagedKi}
}

// Desired returns the committed setpoint.
func (z Zone) Desired() Setpoint {
	return Setpoint{Temp: z.DesiredTemp, Rate: z.DesiredRate, Ki: z.Ki}
}

// SetStaged replaces the staged setpoint, clamped to lim.
func (z *Zone) SetStaged(s Setpoint, lim Limits) {
	s = lim.Clamp(s)
	z.StagedTemp, z.StagedRate, z.StagedKi = s.Temp, s.Rate, s.Ki
	z.PendingCommit = true
}

// Stage adjusts the staged setpoint by the given deltas. Results are
// rounded to two decimals and clamped to lim; the rate is adjusted by
// magnitude and keeps its sign.
func (z *Zone) Stage(d Setpoint, lim Limits) {
	z.SetStaged(Setpoint{
		Temp: round2(z.StagedTemp + d.Temp),
		Rate: signOf(z.StagedRate) * round2(math.Abs(z.StagedRate)+d.Rate),
		Ki:   round2(z.StagedKi + d.Ki),
	}, lim)
}

// Clamp bounds a setpoint. The rate is bounded by magnitude.
func (l Limits) Clamp(s Setpoint) Setpoint {
	s.Temp = clamp(s.Temp, l.MinTemp, l.MaxTemp)
	s.Rate = signOf(s.Rate) * clamp(math.Abs(s.Rate), l.MinRate, l.MaxRate)
	s.Ki = clamp(s.Ki, l.MinKi, l.MaxKi)
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
