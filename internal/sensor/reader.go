// Package sensor provides the channel reader contract consumed by the
// sample producer, plus the available reader implementations.
package sensor

import (
	"context"
	"math/rand"
	"time"
)

// Reader reads one scalar value for one logical channel. A call may be slow
// and may fail; the caller owns the per-channel error policy. A Reader is
// only ever called from the single sampling goroutine.
type Reader interface {
	Read(ctx context.Context, channel int) (float64, error)
}

// SimReader produces uniform random values in [0, 100). It stands in for
// the analog board on development hosts.
type SimReader struct {
	rng *rand.Rand
}

// NewSimReader creates a simulated reader.
func NewSimReader() *SimReader {
	return &SimReader{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Read returns a random value regardless of channel.
func (s *SimReader) Read(_ context.Context, _ int) (float64, error) {
	return s.rng.Float64() * 100, nil
}
