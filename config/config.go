// Package config loads the YAML document that configures a tickcored run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a run of the scheduler core needs besides the
// core package's own compile-time constants.
type Config struct {
	// ClockFreqHz, when non-zero, must equal core.ClockFreq; Validate reports
	// a mismatch. The core package's frequency is a compile-time constant,
	// so this value is only checked, never applied.
	ClockFreqHz uint32 `yaml:"clockFreqHz"`

	// RunDuration bounds how long `run` keeps the task loop alive before
	// requesting a host-initiated shutdown. Zero means run until killed.
	RunDuration Duration `yaml:"runDuration"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"logLevel"`

	// HeartbeatIntervalUS is the period, in microseconds, of the demo
	// heartbeat subsystem core/heartbeat.go schedules at startup.
	HeartbeatIntervalUS uint32 `yaml:"heartbeatIntervalUs"`

	// MetricsAddr is the address the Prometheus /metrics endpoint listens
	// on. Empty disables the endpoint.
	MetricsAddr string `yaml:"metricsAddr"`
}

// Duration wraps time.Duration so it can be written as "30s" in YAML,
// following the teacher's Duration type in its own config package.
type Duration time.Duration

// UnmarshalYAML implements custom YAML unmarshaling for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements custom YAML marshaling for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML document: %w", err)
	}
	cfg.Defaults()
	return cfg, nil
}

// Defaults fills in zero-valued fields with the run's defaults.
func (c *Config) Defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HeartbeatIntervalUS == 0 {
		c.HeartbeatIntervalUS = 1_000_000
	}
}

// Validate checks the configuration for errors. ClockFreqHz, if set, must
// match the core package's compile-time clock frequency — the Tick Clock
// has no runtime-configurable rate.
func (c *Config) Validate(coreClockFreq uint32) error {
	if c.ClockFreqHz != 0 && c.ClockFreqHz != coreClockFreq {
		return fmt.Errorf("clockFreqHz %d does not match the compiled-in clock frequency %d", c.ClockFreqHz, coreClockFreq)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.HeartbeatIntervalUS == 0 {
		return fmt.Errorf("heartbeatIntervalUs must be > 0")
	}
	return nil
}
