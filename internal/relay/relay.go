// Package relay wires the sampling, publishing, and command loops around
// the shared reading store and runs them as one service.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/blobcode/novaGround/internal/actuator"
	"github.com/blobcode/novaGround/internal/archive"
	"github.com/blobcode/novaGround/internal/config"
	"github.com/blobcode/novaGround/internal/sensor"
	"github.com/blobcode/novaGround/internal/telemetry"
	"github.com/blobcode/novaGround/internal/transport"
)

// Relay is the telemetry relay service: one producer, one publisher, one
// command consumer, sharing a single reading store and one MQTT session.
type Relay struct {
	cfg *config.Config

	store    telemetry.Store
	reader   sensor.Reader
	client   *transport.Client
	arch     *archive.Archive
	pwm      *actuator.PCA9685
	producer  *Producer
	publisher *Publisher
	consumer  *Consumer
	healthSrv *http.Server

	started   time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup
	isRunning bool
}

// New builds a relay from configuration: store strategy, channel reader,
// transport session, and the optional flight recorder and PWM output.
func New(cfg *config.Config) (*Relay, error) {
	r := &Relay{cfg: cfg}

	switch cfg.Telemetry.Store {
	case "queue":
		r.store = telemetry.NewQueue(cfg.Telemetry.QueueCapacity)
	case "snapshot":
		r.store = telemetry.NewSnapshot()
	default:
		return nil, fmt.Errorf("unknown store strategy %q", cfg.Telemetry.Store)
	}

	switch cfg.Sampling.Reader {
	case "sim":
		r.reader = sensor.NewSimReader()
	case "ads1115":
		ads, err := sensor.NewADS1115(cfg.Hardware.I2CBus, cfg.Hardware.ADS1115Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to open analog board: %w", err)
		}
		r.reader = ads
	default:
		return nil, fmt.Errorf("unknown reader %q", cfg.Sampling.Reader)
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open flight recorder: %w", err)
		}
		r.arch = arch
		slog.Info("flight recorder enabled", "path", cfg.Archive.Path)
	}

	if cfg.Hardware.PCA9685Addr != 0 {
		pwm, err := actuator.Open(cfg.Hardware.I2CBus, cfg.Hardware.PCA9685Addr, cfg.Hardware.PWMFreqHz)
		if err != nil {
			return nil, fmt.Errorf("failed to open pwm driver: %w", err)
		}
		r.pwm = pwm
	}

	r.client = transport.New(cfg)
	r.producer = NewProducer(cfg, r.reader, r.store)
	r.publisher = NewPublisher(cfg, r.store, r.client, r.arch)
	r.consumer = NewConsumer(r.client.Messages(), r.handleCommand)

	slog.Info("relay configured",
		"instance_id", cfg.InstanceID,
		"store", cfg.Telemetry.Store,
		"reader", cfg.Sampling.Reader,
		"channels", len(cfg.Sampling.Channels),
	)

	return r, nil
}

// Run connects the transport and runs the three loops until ctx is
// cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("relay is already running")
	}
	r.isRunning = true
	r.started = time.Now()
	r.mu.Unlock()

	if err := r.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	if r.cfg.Health.Port != "" {
		if err := r.startHealthServer(r.cfg.Health.Port); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
	}

	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		r.producer.Run(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.publisher.Run(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.consumer.Run(ctx)
	}()

	slog.Info("relay running", "instance_id", r.cfg.InstanceID)

	<-ctx.Done()
	slog.Info("relay run loop exiting")
	return nil
}

// Shutdown joins the loops and releases transport, recorder, and hardware
// handles. Bounded by ctx.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all relay loops finished")
	case <-ctx.Done():
		slog.Warn("shutdown timeout waiting for relay loops")
	}

	r.stopHealthServer(ctx)

	if r.arch != nil {
		if err := r.arch.Close(); err != nil {
			slog.Error("failed to close flight recorder", "error", err)
		}
	}
	if r.pwm != nil {
		if err := r.pwm.Close(); err != nil {
			slog.Error("failed to close pwm driver", "error", err)
		}
	}
	if closer, ok := r.reader.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Error("failed to close channel reader", "error", err)
		}
	}

	r.client.Disconnect()

	r.mu.Lock()
	uptime := time.Since(r.started)
	r.isRunning = false
	r.mu.Unlock()

	slog.Info("relay shutdown complete", "uptime", uptime)
	return nil
}

// command is the JSON shape recognized on the command topic. Anything else
// is logged by the consumer and otherwise ignored.
type command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// handleCommand is the dispatch extension point. Today it only drives the
// PWM outputs, and only when the driver is configured.
func (r *Relay) handleCommand(_ context.Context, msg transport.Message) {
	if r.pwm == nil {
		return
	}

	var cmd command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		// Free-form command payloads are allowed; they were already logged.
		return
	}

	switch cmd.Command {
	case "set_output":
		channel, okC := cmd.Params["channel"].(float64)
		value, okV := cmd.Params["value"].(float64)
		if !okC || !okV {
			slog.Warn("set_output command missing channel/value params", "topic", msg.Topic)
			return
		}
		if value < 0 {
			value = 0
		}
		if err := r.pwm.SetPin(int(channel), uint16(value), false); err != nil {
			slog.Error("set_output failed", "channel", int(channel), "error", err)
			return
		}
		slog.Info("output set", "channel", int(channel), "value", uint16(value))
	default:
		// Unknown commands stay log-only.
	}
}
