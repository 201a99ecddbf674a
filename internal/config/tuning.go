// Package config holds the JSON-loadable tuning surface around the
// fusion engine and its ambient sensor producers, in the shape the
// teacher's TuningConfig uses: pointer fields with omitempty so a partial
// file only overrides what it specifies, plus a Validate pass.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where MustLoadDefaultConfig looks first.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for engine and producer tuning.
// Fields omitted from a loaded JSON file retain the engine's built-in
// defaults.
type TuningConfig struct {
	// Fusion engine tuning (see track.Engine's configuration surface).
	StaleTimeout *string  `json:"stale_timeout,omitempty"` // duration string like "10s"
	OutputRateHz *float64 `json:"output_rate_hz,omitempty"`

	// Synthetic sensor producer tuning.
	SyntheticTickInterval  *string  `json:"synthetic_tick_interval,omitempty"` // duration string
	SyntheticDropoutProb   *float64 `json:"synthetic_dropout_prob,omitempty"`
	SyntheticPositionNoise *float64 `json:"synthetic_position_noise,omitempty"`
	SyntheticVelocityNoise *float64 `json:"synthetic_velocity_noise,omitempty"`

	// Serial GPS producer tuning.
	SerialGPSPortName *string `json:"serial_gps_port_name,omitempty"`
	SerialGPSBaudRate *int    `json:"serial_gps_baud_rate,omitempty"`

	// Push server output tuning.
	PushServerListenAddr *string `json:"push_server_listen_addr,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file, validating its
// extension, size, and field values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults, searching
// upward from the working directory. Panics if it cannot be found;
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold sane values.
func (c *TuningConfig) Validate() error {
	if c.StaleTimeout != nil {
		if _, err := time.ParseDuration(*c.StaleTimeout); err != nil {
			return fmt.Errorf("invalid stale_timeout %q: %w", *c.StaleTimeout, err)
		}
	}
	if c.OutputRateHz != nil && *c.OutputRateHz <= 0 {
		return fmt.Errorf("output_rate_hz must be strictly positive, got %f", *c.OutputRateHz)
	}
	if c.SyntheticTickInterval != nil {
		if _, err := time.ParseDuration(*c.SyntheticTickInterval); err != nil {
			return fmt.Errorf("invalid synthetic_tick_interval %q: %w", *c.SyntheticTickInterval, err)
		}
	}
	if c.SyntheticDropoutProb != nil {
		if *c.SyntheticDropoutProb < 0 || *c.SyntheticDropoutProb > 1 {
			return fmt.Errorf("synthetic_dropout_prob must be between 0 and 1, got %f", *c.SyntheticDropoutProb)
		}
	}
	if c.SerialGPSBaudRate != nil && *c.SerialGPSBaudRate <= 0 {
		return fmt.Errorf("serial_gps_baud_rate must be strictly positive, got %d", *c.SerialGPSBaudRate)
	}
	return nil
}

// StaleTimeoutDuration parses StaleTimeout, falling back to def if unset.
func (c *TuningConfig) StaleTimeoutDuration(def time.Duration) time.Duration {
	if c.StaleTimeout == nil {
		return def
	}
	d, err := time.ParseDuration(*c.StaleTimeout)
	if err != nil {
		return def
	}
	return d
}

// OutputRateHzOrDefault returns OutputRateHz, falling back to def if unset.
func (c *TuningConfig) OutputRateHzOrDefault(def float64) float64 {
	if c.OutputRateHz == nil {
		return def
	}
	return *c.OutputRateHz
}
