// Package config builds the immutable controller configuration.
// Values come from Default, optionally overlaid by a TOML file (Load) and by
// positional startup arguments (ApplyArgs). A Config is passed by value to
// every component that needs it; nothing reads configuration from globals.
package config

import (
	"fmt"
	"math"
	"time"
)

// MaxZones is the number of heater tapes the controller box is wired for.
const MaxZones = 4

// Initial setpoints used when neither the config file nor the command line
// provides them.
const (
	DefaultSetTemp = 150.0 // degrees C
	DefaultSetRate = 1.0   // degrees C per minute
	DefaultSetKi   = 1.5
)

// Config holds every tunable recognised by the controller.
type Config struct {
	Kp            float64 `toml:"kp"`
	Ki            float64 `toml:"ki"` // default integral gain for zones that don't set one
	Kd            float64 `toml:"kd"`
	IntegralScale float64 `toml:"integral_scale"`

	TickPeriodMs     int     `toml:"tick_period_ms"`     // delay between the end of one tick and the next
	ActuationPeriodS float64 `toml:"actuation_period_s"` // duty-cycle period P
	StartupDelayS    float64 `toml:"startup_delay_s"`

	LargeTempDifference         float64 `toml:"large_temp_difference"`
	MaxUnacceptableTimeMinutes  float64 `toml:"max_unacceptable_time_minutes"`
	UnacceptableOvershootMargin float64 `toml:"unacceptable_overshoot_margin"`
	MinAcceptableTemp           float64 `toml:"min_acceptable_temp"`

	MinSetTemp float64 `toml:"min_set_temp"`
	MaxSetTemp float64 `toml:"max_set_temp"`
	MinSetRate float64 `toml:"min_set_rate"`
	MaxSetRate float64 `toml:"max_set_rate"`
	MinSetKi   float64 `toml:"min_set_ki"`
	MaxSetKi   float64 `toml:"max_set_ki"`

	RingBufferCapacity int `toml:"ring_buffer_capacity"`

	// OutputDir receives one CSV file per run.
	OutputDir string `toml:"output_dir"`
	// WriteEveryMinute stores a sample once a minute instead of every tick.
	WriteEveryMinute bool `toml:"write_every_minute"`
	// LockFile guards against two controllers driving the same relays.
	LockFile string `toml:"lock_file"`
	// Couple lists groups of zones (1-based, as printed on the box) that
	// heat one workpiece and must step together.
	Couple [][]int `toml:"couple"`

	Zones []ZoneConfig `toml:"zones"`
	MQTT  MQTTConfig   `toml:"mqtt"`
	HTTP  HTTPConfig   `toml:"http"`
}

// ZoneConfig assigns hardware and initial setpoints to one zone.
// Pins use BCM numbering.
type ZoneConfig struct {
	Relay      int     `toml:"relay"`
	ChipSelect int     `toml:"chip_select"`
	Clock      int     `toml:"clock"`
	Data       int     `toml:"data"`
	Temp       float64 `toml:"temp"`
	Rate       float64 `toml:"rate"`
	Ki         float64 `toml:"ki"`
}

// MQTTConfig configures telemetry publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `toml:"broker"`
	TopicPrefix string `toml:"topic_prefix"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default pin assignment for the four-tape box. GPIO 0, 1, 14 and 15 are
// avoided (i2c and uart); relays sit on GPIO >= 9 because lower lines are
// high at boot.
var defaultZones = [MaxZones]ZoneConfig{
	{Relay: 17, ChipSelect: 2, Clock: 9, Data: 10},
	{Relay: 18, ChipSelect: 3, Clock: 8, Data: 11},
	{Relay: 16, ChipSelect: 4, Clock: 7, Data: 12},
	{Relay: 19, ChipSelect: 5, Clock: 6, Data: 13},
}

// Default returns the configuration the controller box ships with.
func Default() Config {
	cfg := Config{
		Kp:            0,
		Ki:            DefaultSetKi,
		Kd:            0,
		IntegralScale: 1e-2,

		TickPeriodMs:     10,
		ActuationPeriodS: 1.0,
		StartupDelayS:    5,

		LargeTempDifference:         3,
		MaxUnacceptableTimeMinutes:  0.5,
		UnacceptableOvershootMargin: 10,
		MinAcceptableTemp:           15,

		MinSetTemp: 25,
		MaxSetTemp: 250,
		MinSetRate: 0.1,
		MaxSetRate: 5,
		MinSetKi:   1,
		MaxSetKi:   100,

		RingBufferCapacity: 1500,

		OutputDir: "./plots_data",
		LockFile:  "/tmp/bakeout.lock",
		MQTT:      MQTTConfig{TopicPrefix: "bakeout"},
		HTTP:      HTTPConfig{Addr: ":8080"},
	}
	cfg.Zones = make([]ZoneConfig, MaxZones)
	for i := range cfg.Zones {
		cfg.Zones[i] = defaultZones[i]
		cfg.Zones[i].Temp = DefaultSetTemp
		cfg.Zones[i].Rate = DefaultSetRate
		cfg.Zones[i].Ki = cfg.Ki
	}
	return cfg
}

// TickPeriod is the delay scheduled between ticks.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMs) * time.Millisecond
}

// ActuationPeriod is the duty-cycle period P.
func (c Config) ActuationPeriod() time.Duration {
	return seconds(c.ActuationPeriodS)
}

// StartupDelay is how long zones wait before entering the ramp.
func (c Config) StartupDelay() time.Duration {
	return seconds(c.StartupDelayS)
}

// MaxUnacceptableTime is how long a zone may read out of range before it is
// declared inoperable.
func (c Config) MaxUnacceptableTime() time.Duration {
	return seconds(c.MaxUnacceptableTimeMinutes * 60)
}

// CouplingGroups returns Couple converted to 0-based zone ids.
func (c Config) CouplingGroups() [][]int {
	groups := make([][]int, 0, len(c.Couple))
	for _, g := range c.Couple {
		ids := make([]int, len(g))
		for i, n := range g {
			ids[i] = n - 1
		}
		groups = append(groups, ids)
	}
	return groups
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration for values the controller cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		field string
		v     float64
	}{
		{"integral_scale", c.IntegralScale},
		{"actuation_period_s", c.ActuationPeriodS},
		{"large_temp_difference", c.LargeTempDifference},
		{"max_unacceptable_time_minutes", c.MaxUnacceptableTimeMinutes},
		{"min_set_rate", c.MinSetRate},
		{"ring_buffer_capacity", float64(c.RingBufferCapacity)},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return &ValidationError{Field: p.field, Reason: fmt.Sprintf("must be positive, got %v", p.v)}
		}
	}
	if c.TickPeriodMs < 0 {
		return &ValidationError{Field: "tick_period_ms", Reason: "must not be negative"}
	}
	if c.StartupDelayS < 0 {
		return &ValidationError{Field: "startup_delay_s", Reason: "must not be negative"}
	}
	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
		return &ValidationError{Field: "kp/ki/kd", Reason: "gains must not be negative"}
	}

	bounds := []struct {
		field    string
		min, max float64
	}{
		{"min_set_temp/max_set_temp", c.MinSetTemp, c.MaxSetTemp},
		{"min_set_rate/max_set_rate", c.MinSetRate, c.MaxSetRate},
		{"min_set_ki/max_set_ki", c.MinSetKi, c.MaxSetKi},
	}
	for _, b := range bounds {
		if b.min > b.max {
			return &ValidationError{Field: b.field, Reason: fmt.Sprintf("min %v above max %v", b.min, b.max)}
		}
	}

	if len(c.Zones) == 0 || len(c.Zones) > MaxZones {
		return &ValidationError{Field: "zones", Reason: fmt.Sprintf("need 1 to %d zones, got %d", MaxZones, len(c.Zones))}
	}
	for i, z := range c.Zones {
		field := fmt.Sprintf("zones[%d]", i)
		if z.Temp < c.MinSetTemp || z.Temp > c.MaxSetTemp {
			return &ValidationError{Field: field + ".temp", Reason: fmt.Sprintf("%v outside [%v, %v]", z.Temp, c.MinSetTemp, c.MaxSetTemp)}
		}
		if r := math.Abs(z.Rate); r < c.MinSetRate || r > c.MaxSetRate {
			return &ValidationError{Field: field + ".rate", Reason: fmt.Sprintf("%v outside [%v, %v]", z.Rate, c.MinSetRate, c.MaxSetRate)}
		}
		if z.Ki < c.MinSetKi || z.Ki > c.MaxSetKi {
			return &ValidationError{Field: field + ".ki", Reason: fmt.Sprintf("%v outside [%v, %v]", z.Ki, c.MinSetKi, c.MaxSetKi)}
		}
	}

	seen := make(map[int]bool)
	for gi, g := range c.Couple {
		field := fmt.Sprintf("couple[%d]", gi)
		if len(g) < 2 {
			return &ValidationError{Field: field, Reason: "a coupled group needs at least two zones"}
		}
		for _, n := range g {
			if n < 1 || n > len(c.Zones) {
				return &ValidationError{Field: field, Reason: fmt.Sprintf("zone %d does not exist", n)}
			}
			if seen[n] {
				return &ValidationError{Field: field, Reason: fmt.Sprintf("zone %d is in more than one group", n)}
			}
			seen[n] = true
		}
	}
	return nil
}
