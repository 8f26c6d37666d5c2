package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// ExecutionConfig holds the tunable thresholds loaded from YAML.
// Every field has a sane default; a missing file is not an error.
type ExecutionConfig struct {
	Scheduler struct {
		MaxPendingOrders int `yaml:"max_pending_orders"`
	} `yaml:"scheduler"`

	Risk struct {
		MaxPriceDeviation float64 `yaml:"max_price_deviation"`
		MinStopDistance   float64 `yaml:"min_stop_distance"`
		MaxStopDistance   float64 `yaml:"max_stop_distance"`
		MaxVolatility     float64 `yaml:"max_volatility"`
		MinVolumeRatio    float64 `yaml:"min_volume_ratio"`
	} `yaml:"risk"`

	Monitor struct {
		CheckInterval     Duration        `yaml:"check_interval"`
		EmergencyInterval Duration        `yaml:"emergency_interval"`
		Entry             MonitorTypeYAML `yaml:"entry"`
		TakeProfit        MonitorTypeYAML `yaml:"take_profit"`
	} `yaml:"monitor"`

	Retry struct {
		MaxAttempts int      `yaml:"max_attempts"`
		BaseDelay   Duration `yaml:"base_delay"`
		Multiplier  float64  `yaml:"multiplier"`
		MaxDelay    Duration `yaml:"max_delay"`
	} `yaml:"retry"`
}

// MonitorTypeYAML mirrors the per-intent monitor thresholds.
type MonitorTypeYAML struct {
	PriceAwayThreshold   float64  `yaml:"price_away_threshold"`
	Timeout              Duration `yaml:"timeout"`
	RapidChangeThreshold float64  `yaml:"rapid_change_threshold"`
	RapidChangeWindow    Duration `yaml:"rapid_change_window"`
}

// DefaultExecutionConfig returns the production defaults.
func DefaultExecutionConfig() *ExecutionConfig {
	var c ExecutionConfig
	c.Scheduler.MaxPendingOrders = 1

	c.Risk.MaxPriceDeviation = 0.005
	c.Risk.MinStopDistance = 0.005
	c.Risk.MaxStopDistance = 0.02
	c.Risk.MaxVolatility = 0.02
	c.Risk.MinVolumeRatio = 0.5

	c.Monitor.CheckInterval = Duration(time.Second)
	c.Monitor.EmergencyInterval = Duration(500 * time.Millisecond)
	c.Monitor.Entry = MonitorTypeYAML{
		PriceAwayThreshold:   0.005,
		Timeout:              Duration(30 * time.Second),
		RapidChangeThreshold: 0.003,
		RapidChangeWindow:    Duration(5 * time.Second),
	}
	c.Monitor.TakeProfit = MonitorTypeYAML{
		PriceAwayThreshold:   0.005,
		Timeout:              Duration(60 * time.Second),
		RapidChangeThreshold: 0.01,
		RapidChangeWindow:    Duration(10 * time.Second),
	}

	c.Retry.MaxAttempts = 3
	c.Retry.BaseDelay = Duration(time.Second)
	c.Retry.Multiplier = 2.0
	c.Retry.MaxDelay = Duration(30 * time.Second)
	return &c
}

// LoadExecutionConfig reads the YAML file at path over the defaults.
// A missing file returns the defaults unchanged.
func LoadExecutionConfig(path string) (*ExecutionConfig, error) {
	cfg := DefaultExecutionConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read execution config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse execution config: %w", err)
	}
	return cfg, nil
}
