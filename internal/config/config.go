// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/oszuidwest/zwfm-tally/internal/util"
	"github.com/spf13/afero"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultTrigger1Name      = "Camera 4"
	DefaultTrigger2Name      = "Camera 7"
	DefaultTrigger1Threshold = 0.80
	DefaultTrigger2Threshold = 0.20
	DefaultOffThreshold      = 0.10
	DefaultTrigger1Pin       = 22 // BCM numbering
	DefaultTrigger2Pin       = 25 // BCM numbering
	DefaultWindowMs          = 200
	DefaultIntervalMs        = 30
	DefaultDownsample        = 10
	DefaultQueueDepth        = 64
)

// Sentinel errors for configuration validation.
var (
	ErrThresholdOrder = errors.New("thresholds must satisfy trigger1 > trigger2 > off")
	ErrWindowLength   = errors.New("window too short for downsample factor")
	ErrDuplicatePins  = errors.New("trigger pins must be distinct")
)

// AudioConfig holds audio input and decimation settings.
type AudioConfig struct {
	Input      string  `json:"input"`                                          // device index or name substring (empty = default device)
	SampleRate float64 `json:"sample_rate" validate:"gte=0"`                   // capture rate in Hz (0 = device default)
	BlockSize  int     `json:"block_size" validate:"gte=0"`                    // frames per capture callback (0 = automatic)
	Channels   []int   `json:"channels" validate:"omitempty,min=1,dive,gte=1"` // 1-based input channels to monitor
	Downsample int     `json:"downsample" validate:"gte=0"`                    // keep every Nth frame
}

// WindowConfig holds rolling window settings.
type WindowConfig struct {
	DurationMs int `json:"duration_ms" validate:"gte=0"` // window span in milliseconds
}

// EvaluationConfig holds evaluation loop settings.
type EvaluationConfig struct {
	IntervalMs int `json:"interval_ms" validate:"gte=0"` // decision cadence in milliseconds
	QueueDepth int `json:"queue_depth" validate:"gte=0"` // block capacity of the capture hand-off
}

// TriggerConfig holds one trigger's name, threshold, and output pin.
type TriggerConfig struct {
	Name      string  `json:"name"`                            // display name for console events
	Threshold float64 `json:"threshold" validate:"gte=0,lt=1"` // amplitude above which this trigger asserts
	Pin       int     `json:"pin" validate:"gte=0,lte=27"`     // BCM output pin
}

// TriggersConfig holds both triggers and the all-off threshold.
type TriggersConfig struct {
	Trigger1 TriggerConfig `json:"trigger1"`
	Trigger2 TriggerConfig `json:"trigger2"`
	Off      float64       `json:"off_threshold" validate:"gte=0,lt=1"` // amplitude below which both triggers release
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Audio      AudioConfig      `json:"audio"`
	Window     WindowConfig     `json:"window"`
	Evaluation EvaluationConfig `json:"evaluation"`
	Triggers   TriggersConfig   `json:"triggers"`

	mu       sync.RWMutex
	fs       afero.Fs
	filePath string
}

// New creates a new Config with default values on the given filesystem.
func New(fs afero.Fs, filePath string) *Config {
	c := &Config{
		fs:       fs,
		filePath: filePath,
	}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default one if none exists.
// Supported environment variables override file values.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, c.filePath)
	if os.IsNotExist(err) {
		// Write the defaults to disk, then overlay the environment
		// so overrides also count on first boot.
		if err := c.saveLocked(); err != nil {
			return err
		}
		c.applyEnv()
		return c.validate()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()
	c.applyEnv()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	t := c.Triggers
	if t.Trigger1.Threshold <= t.Trigger2.Threshold || t.Trigger2.Threshold <= t.Off {
		return fmt.Errorf("%w: trigger1=%.2f trigger2=%.2f off=%.2f",
			ErrThresholdOrder, t.Trigger1.Threshold, t.Trigger2.Threshold, t.Off)
	}
	if t.Trigger1.Pin == t.Trigger2.Pin {
		return fmt.Errorf("%w: both on GPIO%d", ErrDuplicatePins, t.Trigger1.Pin)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// Audio defaults
	if len(c.Audio.Channels) == 0 {
		c.Audio.Channels = []int{1}
	}
	if c.Audio.Downsample == 0 {
		c.Audio.Downsample = DefaultDownsample
	}
	// Window defaults
	if c.Window.DurationMs == 0 {
		c.Window.DurationMs = DefaultWindowMs
	}
	// Evaluation defaults
	if c.Evaluation.IntervalMs == 0 {
		c.Evaluation.IntervalMs = DefaultIntervalMs
	}
	if c.Evaluation.QueueDepth == 0 {
		c.Evaluation.QueueDepth = DefaultQueueDepth
	}
	// Trigger defaults
	if c.Triggers.Trigger1.Name == "" {
		c.Triggers.Trigger1.Name = DefaultTrigger1Name
	}
	if c.Triggers.Trigger1.Threshold == 0 {
		c.Triggers.Trigger1.Threshold = DefaultTrigger1Threshold
	}
	if c.Triggers.Trigger1.Pin == 0 {
		c.Triggers.Trigger1.Pin = DefaultTrigger1Pin
	}
	if c.Triggers.Trigger2.Name == "" {
		c.Triggers.Trigger2.Name = DefaultTrigger2Name
	}
	if c.Triggers.Trigger2.Threshold == 0 {
		c.Triggers.Trigger2.Threshold = DefaultTrigger2Threshold
	}
	if c.Triggers.Trigger2.Pin == 0 {
		c.Triggers.Trigger2.Pin = DefaultTrigger2Pin
	}
	if c.Triggers.Off == 0 {
		c.Triggers.Off = DefaultOffThreshold
	}
}

// applyEnv overlays supported environment variables onto file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("TALLY_INPUT"); v != "" {
		c.Audio.Input = v
	}
	if v := os.Getenv("TALLY_TRIGGER1_PIN"); v != "" {
		if pin, err := strconv.Atoi(v); err == nil {
			c.Triggers.Trigger1.Pin = pin
		} else {
			slog.Warn("ignoring invalid environment override", "var", "TALLY_TRIGGER1_PIN", "value", v)
		}
	}
	if v := os.Getenv("TALLY_TRIGGER2_PIN"); v != "" {
		if pin, err := strconv.Atoi(v); err == nil {
			c.Triggers.Trigger2.Pin = pin
		} else {
			slog.Warn("ignoring invalid environment override", "var", "TALLY_TRIGGER2_PIN", "value", v)
		}
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := afero.WriteFile(c.fs, c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Mapping returns the configured channels as zero-based indexes into
// the interleaved capture frames.
func (c *Config) Mapping() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]int, len(c.Audio.Channels))
	for i, ch := range c.Audio.Channels {
		out[i] = ch - 1
	}
	return out
}

// WindowLength converts the window duration into a decimated row
// count at the given sample rate. A window that resolves to less than
// one row is a configuration error.
func (c *Config) WindowLength(sampleRate float64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	length := int(float64(c.Window.DurationMs) * sampleRate / float64(1000*c.Audio.Downsample))
	if length < 1 {
		return 0, fmt.Errorf("%w: %dms at %.0f Hz with downsample %d",
			ErrWindowLength, c.Window.DurationMs, sampleRate, c.Audio.Downsample)
	}
	return length, nil
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	Audio      AudioConfig
	Window     WindowConfig
	Evaluation EvaluationConfig
	Triggers   TriggersConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Audio:      c.Audio,
		Window:     c.Window,
		Evaluation: c.Evaluation,
		Triggers:   c.Triggers,
	}
	snap.Audio.Channels = slices.Clone(c.Audio.Channels)
	return snap
}
