package config

import (
	"fmt"
	"strconv"
)

// ArgsError reports unusable positional startup arguments. It is raised
// before any tick runs.
type ArgsError struct {
	Count  int
	Arg    string // offending argument, empty for a bad count
	Reason string
}

func (e *ArgsError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("startup arguments: %s (got %d)", e.Reason, e.Count)
	}
	return fmt.Sprintf("startup arguments: %q: %s", e.Arg, e.Reason)
}

// ApplyArgs overlays positional startup arguments onto the zone setpoints.
// Accepted forms, one value per zone in zone order:
//
//	(none)
//	temp×4
//	temp×4 rate×4
//	temp×4 rate×4 ki×4
//
// Any other count, a non-numeric value, or a value outside the configured
// set limits is an *ArgsError. The receiver is not modified.
func (c Config) ApplyArgs(args []string) (Config, error) {
	switch len(args) {
	case 0, MaxZones, 2 * MaxZones, 3 * MaxZones:
	default:
		return Config{}, &ArgsError{Count: len(args), Reason: fmt.Sprintf("want 0, %d, %d or %d values", MaxZones, 2*MaxZones, 3*MaxZones)}
	}
	if len(args) > 0 && len(c.Zones) != MaxZones {
		return Config{}, &ArgsError{Count: len(args), Reason: fmt.Sprintf("positional setpoints need all %d zones configured", MaxZones)}
	}

	out := c
	out.Zones = append([]ZoneConfig(nil), c.Zones...)

	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return Config{}, &ArgsError{Count: len(args), Arg: a, Reason: "not a number"}
		}
		values[i] = v
	}

	for i, v := range values {
		zi := i % MaxZones
		switch i / MaxZones {
		case 0:
			if v < c.MinSetTemp || v > c.MaxSetTemp {
				return Config{}, &ArgsError{Count: len(args), Arg: args[i], Reason: fmt.Sprintf("temperature outside [%v, %v]", c.MinSetTemp, c.MaxSetTemp)}
			}
			out.Zones[zi].Temp = v
		case 1:
			if v < c.MinSetRate || v > c.MaxSetRate {
				return Config{}, &ArgsError{Count: len(args), Arg: args[i], Reason: fmt.Sprintf("rate outside [%v, %v]", c.MinSetRate, c.MaxSetRate)}
			}
			out.Zones[zi].Rate = v
		case 2:
			if v < c.MinSetKi || v > c.MaxSetKi {
				return Config{}, &ArgsError{Count: len(args), Arg: args[i], Reason: fmt.Sprintf("ki outside [%v, %v]", c.MinSetKi, c.MaxSetKi)}
			}
			out.Zones[zi].Ki = v
		}
	}
	return out, nil
}
