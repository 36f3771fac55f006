// Package pid implements the discrete PID step used by the zone controller.
// It holds no state: callers own the previous error and the running error sum.
package pid

// Gains holds the PID constants. Scale multiplies the integral gain.
type Gains struct {
	Kp    float64
	Ki    float64
	Kd    float64
	Scale float64
}

// Compute returns the raw controller output and the current error for one step.
// The output is not clamped; use Clamp to turn it into a duty fraction.
//
//	err    = target - current
//	output = kp*err + ki*scale*(errorSum+err) + kd*(err-prevError)
func Compute(current, target, prevError, errorSum float64, g Gains) (output, err float64) {
	err = target - current

	proportional := g.Kp * err
	integral := g.Ki * g.Scale * (errorSum + err)
	derivative := g.Kd * (err - prevError)

	return proportional + integral + derivative, err
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Duty clamps a raw controller output into the [0, 1] duty range.
func Duty(output float64) float64 {
	return Clamp(output, 0, 1)
}
