package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Defaults mirroring the deployed ground station.
const (
	DefaultSamplePeriod  = 10 * time.Millisecond
	DefaultPublishPeriod = 1000 * time.Millisecond
	DefaultQueueCapacity = 8192
	DefaultAckTimeout    = 2 * time.Second

	DefaultTelemetryTopic = "novaground/telemetry"
	DefaultCommandTopic   = "novaground/command"
)

// Validate checks the configuration and fills defaults in place.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "novaground-" + uuid.NewString()[:8]
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.Topics.Telemetry == "" {
		cfg.MQTT.Topics.Telemetry = DefaultTelemetryTopic
	}
	if cfg.MQTT.Topics.Command == "" {
		cfg.MQTT.Topics.Command = DefaultCommandTopic
	}
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"telemetry": 0,
			"command":   1,
		}
	}
	for purpose, qos := range cfg.MQTT.QoS {
		if qos > 2 {
			return fmt.Errorf("mqtt.qos.%s: %d is not a valid QoS level", purpose, qos)
		}
	}
	if cfg.MQTT.AckTimeoutMS < 0 {
		return fmt.Errorf("mqtt.ack_timeout_ms must be >= 0")
	}
	if cfg.MQTT.AckTimeoutMS == 0 {
		cfg.MQTT.AckTimeoutMS = int(DefaultAckTimeout / time.Millisecond)
	}

	if cfg.Sampling.PeriodMS < 0 {
		return fmt.Errorf("sampling.period_ms must be >= 0")
	}
	if cfg.Sampling.PeriodMS == 0 {
		cfg.Sampling.PeriodMS = int(DefaultSamplePeriod / time.Millisecond)
	}
	switch cfg.Sampling.Reader {
	case "":
		cfg.Sampling.Reader = "sim"
	case "sim", "ads1115":
	default:
		return fmt.Errorf("sampling.reader: unknown reader %q (must be sim or ads1115)", cfg.Sampling.Reader)
	}
	if len(cfg.Sampling.Channels) == 0 {
		return fmt.Errorf("sampling.channels: at least one channel is required")
	}
	seen := make(map[int]string, len(cfg.Sampling.Channels))
	for i, ch := range cfg.Sampling.Channels {
		if ch.ID < 0 {
			return fmt.Errorf("sampling.channels[%d]: id must be >= 0", i)
		}
		if prev, dup := seen[ch.ID]; dup {
			return fmt.Errorf("sampling.channels[%d]: id %d already used by %q", i, ch.ID, prev)
		}
		seen[ch.ID] = ch.Name
	}
	switch cfg.Sampling.OnReadError {
	case "":
		cfg.Sampling.OnReadError = "skip"
	case "skip", "sentinel":
	default:
		return fmt.Errorf("sampling.on_read_error: unknown policy %q (must be skip or sentinel)", cfg.Sampling.OnReadError)
	}

	switch cfg.Telemetry.Store {
	case "":
		cfg.Telemetry.Store = "queue"
	case "queue", "snapshot":
	default:
		return fmt.Errorf("telemetry.store: unknown strategy %q (must be queue or snapshot)", cfg.Telemetry.Store)
	}
	if cfg.Telemetry.QueueCapacity < 0 {
		return fmt.Errorf("telemetry.queue_capacity must be >= 0")
	}
	if cfg.Telemetry.QueueCapacity == 0 {
		cfg.Telemetry.QueueCapacity = DefaultQueueCapacity
	}
	switch cfg.Telemetry.Format {
	case "":
		cfg.Telemetry.Format = "minimal"
	case "minimal", "extended":
	default:
		return fmt.Errorf("telemetry.format: unknown format %q (must be minimal or extended)", cfg.Telemetry.Format)
	}

	if cfg.Publish.PeriodMS < 0 {
		return fmt.Errorf("publish.period_ms must be >= 0")
	}
	if cfg.Publish.PeriodMS == 0 {
		cfg.Publish.PeriodMS = int(DefaultPublishPeriod / time.Millisecond)
	}

	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}

	if cfg.Sampling.Reader == "ads1115" && cfg.Hardware.ADS1115Addr == 0 {
		cfg.Hardware.ADS1115Addr = 0x48
	}
	if cfg.Hardware.PCA9685Addr != 0 && cfg.Hardware.PWMFreqHz == 0 {
		cfg.Hardware.PWMFreqHz = 1000
	}

	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	return nil
}

// SamplePeriod returns sampling.period_ms as a duration.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.Sampling.PeriodMS) * time.Millisecond
}

// PublishPeriod returns publish.period_ms as a duration.
func (c *Config) PublishPeriod() time.Duration {
	return time.Duration(c.Publish.PeriodMS) * time.Millisecond
}

// AckTimeout returns mqtt.ack_timeout_ms as a duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.MQTT.AckTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// QoSFor returns the configured QoS for a purpose ("telemetry", "command"),
// falling back to 0.
func (c *Config) QoSFor(purpose string) byte {
	if qos, ok := c.MQTT.QoS[purpose]; ok {
		return qos
	}
	return 0
}

// ChannelIDs returns the configured channel ids in sampling order.
func (c *Config) ChannelIDs() []int {
	ids := make([]int, len(c.Sampling.Channels))
	for i, ch := range c.Sampling.Channels {
		ids[i] = ch.ID
	}
	return ids
}
