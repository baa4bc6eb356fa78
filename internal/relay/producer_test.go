package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/blobcode/novaGround/internal/config"
	"github.com/blobcode/novaGround/internal/telemetry"
)

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := &config.Config{
		MQTT: config.MQTTConfig{Broker: "localhost:1883"},
		Sampling: config.SamplingConfig{
			Channels: []config.Channel{
				{ID: 0, Name: "chamber-pressure"},
				{ID: 1, Name: "tank-pressure"},
				{ID: 2, Name: "ambient-temp"},
			},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

// scriptedReader returns fixed values per channel and fails for channels
// in the fail set.
type scriptedReader struct {
	values map[int]float64
	fail   map[int]bool
	calls  []int
}

func (r *scriptedReader) Read(_ context.Context, channel int) (float64, error) {
	r.calls = append(r.calls, channel)
	if r.fail[channel] {
		return 0, errors.New("bus glitch")
	}
	return r.values[channel], nil
}

// TestProducerCommitsInChannelOrder verifies one pass reads every channel
// in configured order and commits the batch.
func TestProducerCommitsInChannelOrder(t *testing.T) {
	cfg := testConfig(t, nil)
	store := telemetry.NewQueue(16)
	reader := &scriptedReader{values: map[int]float64{0: 10.5, 1: 20.25, 2: 30.0}}

	p := NewProducer(cfg, reader, store)
	p.sampleOnce(context.Background())

	batch := store.DrainAll()
	if len(batch) != 3 {
		t.Fatalf("Expected 3 readings, got %d", len(batch))
	}
	wantIDs := []int{0, 1, 2}
	wantVals := []float64{10.5, 20.25, 30.0}
	for i, r := range batch {
		if r.ID != wantIDs[i] || r.Value != wantVals[i] {
			t.Errorf("reading %d: got id=%d value=%v", i, r.ID, r.Value)
		}
		if r.CapturedAt == 0 {
			t.Errorf("reading %d: missing capture time", i)
		}
	}
}

// TestProducerSkipPolicy verifies a failing channel is skipped and the
// rest of the batch survives.
func TestProducerSkipPolicy(t *testing.T) {
	cfg := testConfig(t, nil)
	store := telemetry.NewQueue(16)
	reader := &scriptedReader{
		values: map[int]float64{0: 1, 2: 3},
		fail:   map[int]bool{1: true},
	}

	p := NewProducer(cfg, reader, store)
	p.sampleOnce(context.Background())

	batch := store.DrainAll()
	if len(batch) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(batch))
	}
	if batch[0].ID != 0 || batch[1].ID != 2 {
		t.Errorf("wrong channels survived: %+v", batch)
	}
	if p.ReadErrors() != 1 {
		t.Errorf("Expected 1 read error, got %d", p.ReadErrors())
	}

	// All channels were still attempted.
	if len(reader.calls) != 3 {
		t.Errorf("Expected 3 read attempts, got %d", len(reader.calls))
	}
}

// TestProducerSentinelPolicy verifies the sentinel substitution keeps the
// failing channel in the batch.
func TestProducerSentinelPolicy(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) {
		c.Sampling.OnReadError = "sentinel"
		c.Sampling.SentinelValue = -1
	})
	store := telemetry.NewQueue(16)
	reader := &scriptedReader{
		values: map[int]float64{0: 1, 2: 3},
		fail:   map[int]bool{1: true},
	}

	p := NewProducer(cfg, reader, store)
	p.sampleOnce(context.Background())

	batch := store.DrainAll()
	if len(batch) != 3 {
		t.Fatalf("Expected 3 readings, got %d", len(batch))
	}
	if batch[1].ID != 1 || batch[1].Value != -1 {
		t.Errorf("sentinel reading wrong: %+v", batch[1])
	}
}

// TestProducerAllChannelsFailing verifies a fully failed pass still
// commits (an empty batch) and the loop state stays sane.
func TestProducerAllChannelsFailing(t *testing.T) {
	cfg := testConfig(t, nil)
	store := telemetry.NewSnapshot()
	reader := &scriptedReader{fail: map[int]bool{0: true, 1: true, 2: true}}

	p := NewProducer(cfg, reader, store)
	p.sampleOnce(context.Background())
	p.sampleOnce(context.Background())

	if p.ReadErrors() != 6 {
		t.Errorf("Expected 6 read errors, got %d", p.ReadErrors())
	}
	if p.Cycles() != 2 {
		t.Errorf("Expected 2 completed cycles, got %d", p.Cycles())
	}
	if got := store.ReadCopy(); got != nil {
		t.Errorf("Expected empty snapshot, got %+v", got)
	}
}
