package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Limits of the FP5529 position register and of the override list.
const (
	MaxPosition      = 1023
	PosSizeBit       = 10
	MaxInitPositions = 16
	DefaultAddress   = 0x0C
	DefaultSettleMs  = 5
	MaxDebugLevel    = 4
)

// DefaultsConfig contains process-wide parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	MockBus    bool `yaml:"mock_bus"`    // use the simulated FP5529 instead of the I2C bus
}

// InitPosition is one step of the bring-up position list.
type InitPosition struct {
	Position int `yaml:"position"`
	DelayMs  int `yaml:"delay_ms"`
}

// DebugConfig seeds the bench override knobs.
type DebugConfig struct {
	EnableFixed   bool           `yaml:"enable_fixed"`
	FixedPosition int            `yaml:"fixed_position"`
	InitPositions []InitPosition `yaml:"init_positions"`
}

// CalibrationConfig locates the calibration block in an EEPROM dump.
type CalibrationConfig struct {
	File   string `yaml:"file"`   // e.g. /sys/bus/i2c/devices/1-0050/eeprom. Empty = none.
	Offset int    `yaml:"offset"` // byte offset of {control_mode, prescale, acc_time}
}

// ActuatorConfig describes one physical actuator and the (sensor, place)
// pairs it serves.
type ActuatorConfig struct {
	Name        string `yaml:"name"`
	Bus         string `yaml:"bus"`     // periph bus name, "" = first available
	Address     int    `yaml:"address"` // 7-bit I2C address, default 0x0C
	SensorIDs   []int  `yaml:"sensor_ids"`
	Place       int    `yaml:"place"`
	MaxPosition int    `yaml:"max_position"`
	PosSizeBit  int    `yaml:"pos_size_bit"`
	Direction   string `yaml:"direction"` // "normal" or "reversed"

	PowerPin       int  `yaml:"power_pin"` // BCM pin switching the supply. 0 = not used.
	PowerActiveLow bool `yaml:"power_active_low"`
	PowerSettleMs  int  `yaml:"power_settle_ms"`

	SoftLandingOnExit  *bool `yaml:"soft_landing_on_exit"`
	SoftLandingCommand *bool `yaml:"soft_landing_command"`

	Calibration CalibrationConfig `yaml:"calibration"`
}

// Config aggregates all application configuration.
type Config struct {
	Defaults  DefaultsConfig   `yaml:"defaults"`
	Debug     DebugConfig      `yaml:"debug"`
	Actuators []ActuatorConfig `yaml:"actuators"`
}

// ValidateConfigPath accepts only .yaml files located directly in a
// directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q: file must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > MaxDebugLevel {
		return fmt.Errorf("debug_level must be between 0 and %d, got %d", MaxDebugLevel, c.Defaults.DebugLevel)
	}
	if len(c.Actuators) == 0 {
		return errors.New("at least one actuator is required")
	}

	type pair struct{ sensor, place int }
	seen := make(map[pair]string)
	names := make(map[string]bool)
	maxPos := MaxPosition

	for i := range c.Actuators {
		a := &c.Actuators[i]
		if a.Name == "" {
			a.Name = fmt.Sprintf("vcm%d", i)
		}
		if names[a.Name] {
			return fmt.Errorf("actuators[%d]: duplicate name %q", i, a.Name)
		}
		names[a.Name] = true

		if a.Address == 0 {
			a.Address = DefaultAddress
		}
		if a.Address < 0x03 || a.Address > 0x77 {
			return fmt.Errorf("%s: address 0x%X outside the 7-bit range", a.Name, a.Address)
		}
		if len(a.SensorIDs) == 0 {
			return fmt.Errorf("%s: sensor_ids is required", a.Name)
		}
		for _, id := range a.SensorIDs {
			p := pair{id, a.Place}
			if other, dup := seen[p]; dup {
				return fmt.Errorf("%s: sensor %d place %d already served by %s", a.Name, id, a.Place, other)
			}
			seen[p] = a.Name
		}

		if a.MaxPosition == 0 {
			a.MaxPosition = MaxPosition
		}
		if a.MaxPosition < 0 || a.MaxPosition > MaxPosition {
			return fmt.Errorf("%s: max_position must be between 1 and %d, got %d", a.Name, MaxPosition, a.MaxPosition)
		}
		if a.MaxPosition < maxPos {
			maxPos = a.MaxPosition
		}
		if a.PosSizeBit == 0 {
			a.PosSizeBit = PosSizeBit
		}
		if a.PosSizeBit != PosSizeBit {
			return fmt.Errorf("%s: pos_size_bit must be %d, got %d", a.Name, PosSizeBit, a.PosSizeBit)
		}

		switch strings.ToLower(a.Direction) {
		case "":
			a.Direction = "normal"
		case "normal", "reversed":
			a.Direction = strings.ToLower(a.Direction)
		default:
			return fmt.Errorf("%s: direction must be normal or reversed, got %q", a.Name, a.Direction)
		}

		if a.PowerPin < 0 {
			return fmt.Errorf("%s: power_pin must be >= 0", a.Name)
		}
		if a.PowerSettleMs <= 0 {
			a.PowerSettleMs = DefaultSettleMs
		}
		if a.SoftLandingOnExit == nil {
			a.SoftLandingOnExit = boolPtr(true)
		}
		if a.SoftLandingCommand == nil {
			a.SoftLandingCommand = boolPtr(true)
		}
		if a.Calibration.Offset < 0 {
			return fmt.Errorf("%s: calibration.offset must be >= 0", a.Name)
		}
	}

	if c.Debug.EnableFixed && (c.Debug.FixedPosition < 0 || c.Debug.FixedPosition > maxPos) {
		return fmt.Errorf("debug.fixed_position must be between 0 and %d, got %d", maxPos, c.Debug.FixedPosition)
	}
	if len(c.Debug.InitPositions) > MaxInitPositions {
		return fmt.Errorf("debug.init_positions: at most %d steps, got %d", MaxInitPositions, len(c.Debug.InitPositions))
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// PowerSettle returns the delay after enabling the supply.
func (a *ActuatorConfig) PowerSettle() time.Duration {
	return time.Duration(a.PowerSettleMs) * time.Millisecond
}

// LandOnExit reports the exit soft-landing policy.
func (a *ActuatorConfig) LandOnExit() bool {
	return a.SoftLandingOnExit == nil || *a.SoftLandingOnExit
}

// LandCommand reports whether the soft-landing control is accepted.
func (a *ActuatorConfig) LandCommand() bool {
	return a.SoftLandingCommand == nil || *a.SoftLandingCommand
}

// DeviceKey identifies the physical device: entries with the same key
// share one bus handle and one lock.
func (a *ActuatorConfig) DeviceKey() string {
	return fmt.Sprintf("%s@0x%02X", a.Bus, a.Address)
}

// Delay returns the wait after an init step.
func (p InitPosition) Delay() time.Duration {
	return time.Duration(p.DelayMs) * time.Millisecond
}
