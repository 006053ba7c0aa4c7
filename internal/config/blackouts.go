package config

import (
	"fmt"
	"os"

	"venuebook/internal/interval"

	"gopkg.in/yaml.v3"
)

// BlackoutConfig is one closed range. End defaults to Start.
type BlackoutConfig struct {
	Start  string `yaml:"start"`  // "2026-12-24"
	End    string `yaml:"end"`    // "2026-12-26"
	Reason string `yaml:"reason"` // "Holidays"
}

// BlackoutsConfig is the root of blackouts.yaml.
type BlackoutsConfig struct {
	Blackouts []BlackoutConfig `yaml:"blackouts"`
}

// BlackoutRange is a parsed BlackoutConfig.
type BlackoutRange struct {
	Start  interval.Date
	End    interval.Date
	Reason string
}

// LoadBlackoutsConfig loads and validates the blackout file.
func LoadBlackoutsConfig(path string) (*BlackoutsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blackouts config: %w", err)
	}

	var cfg BlackoutsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse blackouts config: %w", err)
	}
	if _, err := cfg.Ranges(); err != nil {
		return nil, fmt.Errorf("validate blackouts config: %w", err)
	}
	return &cfg, nil
}

// Ranges parses every entry.
func (c *BlackoutsConfig) Ranges() ([]BlackoutRange, error) {
	out := make([]BlackoutRange, 0, len(c.Blackouts))
	for i, b := range c.Blackouts {
		if b.Start == "" {
			return nil, fmt.Errorf("blackout[%d]: start is required", i)
		}
		start, err := interval.ParseDate(b.Start)
		if err != nil {
			return nil, fmt.Errorf("blackout[%d]: %w", i, err)
		}
		end := start
		if b.End != "" {
			if end, err = interval.ParseDate(b.End); err != nil {
				return nil, fmt.Errorf("blackout[%d]: %w", i, err)
			}
		}
		if end.Before(start) {
			return nil, fmt.Errorf("blackout[%d]: end %s is before start %s", i, end, start)
		}
		out = append(out, BlackoutRange{Start: start, End: end, Reason: b.Reason})
	}
	return out, nil
}
