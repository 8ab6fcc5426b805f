package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Timing  TimingConfig  `yaml:"timing"`
	Monitor MonitorConfig `yaml:"monitor"`
	Sim     SimConfig     `yaml:"sim"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
}

// TimingConfig contains the gauge timing constants. The settle delay comes
// from the ADC datasheet: the reference circuitry needs 1 ms after switching
// reference sources. The blink and pause durations define the indicator cadence.
type TimingConfig struct {
	Settle   time.Duration `yaml:"settle"`    // ADC settle delay after reference change
	BlinkOn  time.Duration `yaml:"blink_on"`  // Indicator active duration per blink
	BlinkOff time.Duration `yaml:"blink_off"` // Indicator inactive duration per blink
	Pause    time.Duration `yaml:"pause"`     // Pause between blink cycles
}

// MonitorConfig contains host-side monitoring parameters.
type MonitorConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"` // Reading history window
	SagThreshold  int     `yaml:"sag_threshold"`  // Decivolt drop within window that counts as a sag
}

// SimConfig contains simulated peripheral configuration.
type SimConfig struct {
	SupplyVolts  float64       `yaml:"supply_volts"`  // Initial simulated supply voltage (V)
	NoiseLevel   float64       `yaml:"noise_level"`   // Noise level (V)
	DischargeTau float64       `yaml:"discharge_tau"` // Battery discharge time constant in seconds (0 = no discharge)
	WarmupError  float64       `yaml:"warmup_error"`  // Error injected into the first conversion after a reference change (V)
	SampleRate   time.Duration `yaml:"sample_rate"`   // Mock device sample rate
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
		},
		Timing: TimingConfig{
			Settle:   time.Millisecond,
			BlinkOn:  250 * time.Millisecond,
			BlinkOff: 250 * time.Millisecond,
			Pause:    time.Second,
		},
		Monitor: MonitorConfig{
			WindowSeconds: 60,
			SagThreshold:  3, // 0.3 V
		},
		Sim: SimConfig{
			SupplyVolts:  5.0,
			NoiseLevel:   0.0,
			DischargeTau: 0, // Stable supply by default
			WarmupError:  0.2,
			SampleRate:   2 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}

	if c.Timing.Settle == 0 {
		c.Timing.Settle = def.Timing.Settle
	}
	if c.Timing.BlinkOn == 0 {
		c.Timing.BlinkOn = def.Timing.BlinkOn
	}
	if c.Timing.BlinkOff == 0 {
		c.Timing.BlinkOff = def.Timing.BlinkOff
	}
	if c.Timing.Pause == 0 {
		c.Timing.Pause = def.Timing.Pause
	}

	if c.Monitor.WindowSeconds == 0 {
		c.Monitor.WindowSeconds = def.Monitor.WindowSeconds
	}
	if c.Monitor.SagThreshold == 0 {
		c.Monitor.SagThreshold = def.Monitor.SagThreshold
	}

	if c.Sim.SupplyVolts == 0 {
		c.Sim.SupplyVolts = def.Sim.SupplyVolts
	}
	if c.Sim.SampleRate == 0 {
		c.Sim.SampleRate = def.Sim.SampleRate
	}
}
