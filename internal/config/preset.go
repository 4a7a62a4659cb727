package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Preset bundles worker pool settings for a politeness level.
type Preset struct {
	Workers    int
	Delay      time.Duration
	MaxRetries int
}

// Presets by name.
var Presets = map[string]Preset{
	"fast":         {Workers: 8, Delay: time.Second, MaxRetries: 2},
	"normal":       {Workers: 4, Delay: 3 * time.Second, MaxRetries: 3},
	"conservative": {Workers: 2, Delay: 6 * time.Second, MaxRetries: 5},
}

// LookupPreset returns the named preset; an empty name is normal.
func LookupPreset(name string) (Preset, error) {
	if name == "" {
		name = "normal"
	}
	p, ok := Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (fast, normal, conservative)", name)
	}
	return p, nil
}

// ApplyPreset overwrites the worker pool settings with the named preset.
// Callers apply explicit overrides afterwards.
func (c *Config) ApplyPreset(name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	c.Scraper.Preset = name
	c.Scraper.Workers = p.Workers
	c.Scraper.Delay = p.Delay
	c.Scraper.MaxRetries = p.MaxRetries
	return nil
}

// applyPresetDefaults fills the pool settings the file and environment left unset.
// An unknown preset is left for Validate to report.
func applyPresetDefaults(c *Config, v *viper.Viper) {
	p, err := LookupPreset(c.Scraper.Preset)
	if err != nil {
		return
	}
	if !v.IsSet("scraper.workers") {
		c.Scraper.Workers = p.Workers
	}
	if !v.IsSet("scraper.delay") {
		c.Scraper.Delay = p.Delay
	}
	if !v.IsSet("scraper.max_retries") {
		c.Scraper.MaxRetries = p.MaxRetries
	}
}
