package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML file over Default and validates the result.
// Unknown keys are rejected so a misspelt tunable never goes unnoticed.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("decode %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	// Without [[zones]] tables the default zones take the file's ki.
	if !md.IsDefined("zones") {
		for i := range cfg.Zones {
			cfg.Zones[i].Ki = cfg.Ki
		}
	}
	cfg.fillZoneDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillZoneDefaults completes [[zones]] tables that only set some fields.
// A zero pin means "use the box default for this position".
func (c *Config) fillZoneDefaults() {
	for i := range c.Zones {
		z := &c.Zones[i]
		if i < MaxZones {
			d := defaultZones[i]
			if z.Relay == 0 {
				z.Relay = d.Relay
			}
			if z.ChipSelect == 0 {
				z.ChipSelect = d.ChipSelect
			}
			if z.Clock == 0 {
				z.Clock = d.Clock
			}
			if z.Data == 0 {
				z.Data = d.Data
			}
		}
		if z.Temp == 0 {
			z.Temp = DefaultSetTemp
		}
		if z.Rate == 0 {
			z.Rate = DefaultSetRate
		}
		if z.Ki == 0 {
			z.Ki = c.Ki
		}
	}
}
