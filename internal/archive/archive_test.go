package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/blobcode/novaGround/internal/telemetry"
)

// TestArchiveRoundTrip stores two batches and counts the rows back.
func TestArchiveRoundTrip(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	now := time.Now()
	batch := telemetry.Batch{
		{ID: 0, Value: 10.5, CapturedAt: 1700000000.1},
		{ID: 1, Value: 20.25, CapturedAt: 1700000000.1},
	}

	if err := a.StoreBatch(now, batch); err != nil {
		t.Fatalf("StoreBatch failed: %v", err)
	}
	if err := a.StoreBatch(now.Add(time.Second), batch[:1]); err != nil {
		t.Fatalf("StoreBatch failed: %v", err)
	}

	n, err := a.CountReadings()
	if err != nil {
		t.Fatalf("CountReadings failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 readings, got %d", n)
	}
}

// TestArchiveEmptyBatch verifies an empty batch is a no-op, not an error.
func TestArchiveEmptyBatch(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	if err := a.StoreBatch(time.Now(), nil); err != nil {
		t.Fatalf("StoreBatch(empty) failed: %v", err)
	}
	n, err := a.CountReadings()
	if err != nil {
		t.Fatalf("CountReadings failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 readings, got %d", n)
	}
}
