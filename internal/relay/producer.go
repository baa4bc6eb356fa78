package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blobcode/novaGround/internal/config"
	"github.com/blobcode/novaGround/internal/sensor"
	"github.com/blobcode/novaGround/internal/telemetry"
)

// Producer samples every configured channel on a fixed period and commits
// the resulting batch to the shared reading store. A failing channel is
// handled per the configured policy (skipped or substituted) and never
// aborts the cycle; a slow channel read stretches the cycle, which is a
// documented limitation of the sampling design.
type Producer struct {
	cfg    *config.Config
	reader sensor.Reader
	store  telemetry.Store

	cycles     atomic.Uint64
	readErrors atomic.Uint64
}

// NewProducer wires a producer to its reader and store.
func NewProducer(cfg *config.Config, reader sensor.Reader, store telemetry.Store) *Producer {
	return &Producer{cfg: cfg, reader: reader, store: store}
}

// Run samples until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	period := p.cfg.SamplePeriod()
	slog.Info("sample producer started",
		"period", period,
		"channels", len(p.cfg.Sampling.Channels),
		"on_read_error", p.cfg.Sampling.OnReadError,
	)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sample producer stopping", "cycles", p.cycles.Load())
			return
		case <-ticker.C:
			p.sampleOnce(ctx)
		}
	}
}

// sampleOnce runs one sampling pass: read all channels in configured
// order, stamp each reading, commit the batch.
func (p *Producer) sampleOnce(ctx context.Context) {
	batch := make(telemetry.Batch, 0, len(p.cfg.Sampling.Channels))

	for _, ch := range p.cfg.Sampling.Channels {
		value, err := p.reader.Read(ctx, ch.ID)
		capturedAt := float64(time.Now().UnixNano()) / 1e9
		if err != nil {
			p.readErrors.Add(1)
			slog.Warn("channel read failed",
				"channel", ch.ID,
				"name", ch.Name,
				"policy", p.cfg.Sampling.OnReadError,
				"error", err,
			)
			if p.cfg.Sampling.OnReadError == "skip" {
				continue
			}
			value = p.cfg.Sampling.SentinelValue
		}
		batch = append(batch, telemetry.Reading{ID: ch.ID, Value: value, CapturedAt: capturedAt})
	}

	p.store.Commit(batch)
	p.cycles.Add(1)
}

// ReadErrors returns the number of failed channel reads so far.
func (p *Producer) ReadErrors() uint64 { return p.readErrors.Load() }

// Cycles returns the number of completed sampling passes.
func (p *Producer) Cycles() uint64 { return p.cycles.Load() }
