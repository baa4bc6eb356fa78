package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blobcode/novaGround/internal/archive"
	"github.com/blobcode/novaGround/internal/config"
	"github.com/blobcode/novaGround/internal/telemetry"
)

// Sink accepts one serialized snapshot for delivery. The transport client
// satisfies this; publishing blocks until the broker acknowledges or the
// ack timeout elapses.
type Sink interface {
	Publish(ctx context.Context, payload []byte) error
}

// Publisher drains the shared reading store on a fixed period, serializes
// the batch, and hands it to the sink. An empty batch is still published so
// subscribers see the heartbeat cadence. A failed publish is counted and
// the publisher simply waits for its next cycle; recovering the link is
// the transport's job, not the publisher's.
type Publisher struct {
	cfg   *config.Config
	store telemetry.Store
	sink  Sink
	arch  *archive.Archive // nil when the flight recorder is disabled

	format telemetry.Format

	published     atomic.Uint64
	publishErrors atomic.Uint64
}

// NewPublisher wires a publisher to its store and sink. arch may be nil.
func NewPublisher(cfg *config.Config, store telemetry.Store, sink Sink, arch *archive.Archive) *Publisher {
	return &Publisher{
		cfg:    cfg,
		store:  store,
		sink:   sink,
		arch:   arch,
		format: telemetry.Format(cfg.Telemetry.Format),
	}
}

// Run publishes until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	period := p.cfg.PublishPeriod()
	slog.Info("snapshot publisher started",
		"period", period,
		"topic", p.cfg.MQTT.Topics.Telemetry,
		"format", string(p.format),
		"archive", p.arch != nil,
	)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("snapshot publisher stopping", "published", p.published.Load())
			return
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

// publishOnce runs one publish cycle: collect, record, serialize, send.
func (p *Publisher) publishOnce(ctx context.Context) {
	batch := p.store.Collect()

	// The flight recorder gets the batch whether or not the publish
	// succeeds, so telemetry survives link outages.
	if p.arch != nil {
		if err := p.arch.StoreBatch(time.Now(), batch); err != nil {
			slog.Error("failed to archive batch", "readings", len(batch), "error", err)
		}
	}

	payload, err := telemetry.Encode(p.format, batch)
	if err != nil {
		p.publishErrors.Add(1)
		slog.Error("failed to serialize batch", "readings", len(batch), "error", err)
		return
	}

	if err := p.sink.Publish(ctx, payload); err != nil {
		p.publishErrors.Add(1)
		slog.Error("telemetry publish failed, will retry next cycle",
			"readings", len(batch),
			"error", err,
		)
		return
	}

	p.published.Add(1)
	slog.Debug("snapshot published", "readings", len(batch), "size", len(payload))
}

// Published returns the number of successfully published snapshots.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// PublishErrors returns the number of failed publish cycles.
func (p *Publisher) PublishErrors() uint64 { return p.publishErrors.Load() }
