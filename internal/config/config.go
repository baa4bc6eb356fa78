// Package config loads and validates the novaground YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete novaground configuration.
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Sampling         SamplingConfig `yaml:"sampling"`
	Telemetry        StoreConfig    `yaml:"telemetry"`
	Publish          PublishConfig  `yaml:"publish"`
	Archive          ArchiveConfig  `yaml:"archive"`
	Health           HealthConfig   `yaml:"health"`
	Hardware         HardwareConfig `yaml:"hardware"`
}

// MQTTConfig contains broker and topic settings.
type MQTTConfig struct {
	Broker       string          `yaml:"broker"`
	Topics       MQTTTopics      `yaml:"topics"`
	QoS          map[string]byte `yaml:"qos"`
	AckTimeoutMS int             `yaml:"ack_timeout_ms"`
}

// MQTTTopics contains the fixed topic names.
type MQTTTopics struct {
	Telemetry string `yaml:"telemetry"`
	Command   string `yaml:"command"`
}

// SamplingConfig drives the sample producer.
type SamplingConfig struct {
	PeriodMS      int       `yaml:"period_ms"`
	Reader        string    `yaml:"reader"`         // sim, ads1115
	Channels      []Channel `yaml:"channels"`       // fixed, ordered
	OnReadError   string    `yaml:"on_read_error"`  // skip, sentinel
	SentinelValue float64   `yaml:"sentinel_value"` // substituted under the sentinel policy
}

// Channel names one logical sensor input.
type Channel struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// StoreConfig selects the shared reading store strategy.
type StoreConfig struct {
	Store         string `yaml:"store"` // queue, snapshot
	QueueCapacity int    `yaml:"queue_capacity"`
	Format        string `yaml:"format"` // minimal, extended
}

// PublishConfig drives the snapshot publisher.
type PublishConfig struct {
	PeriodMS int `yaml:"period_ms"`
}

// ArchiveConfig enables the local sqlite flight recorder.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig enables the HTTP health endpoint. An empty port disables it.
type HealthConfig struct {
	Port string `yaml:"port"`
}

// HardwareConfig locates the I2C devices. Only consulted when the reader is
// ads1115 or an actuator address is set.
type HardwareConfig struct {
	I2CBus      int    `yaml:"i2c_bus"`
	ADS1115Addr uint8  `yaml:"ads1115_addr"`
	PCA9685Addr uint8  `yaml:"pca9685_addr"`
	PWMFreqHz   float64 `yaml:"pwm_freq_hz"`
}

// Load reads and parses a YAML configuration file, then validates it and
// fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
