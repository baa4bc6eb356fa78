package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Format selects the wire shape of a published snapshot.
type Format string

const (
	// FormatMinimal is the streaming-rate shape:
	//   {"data":[{"<id>":<value>},...]}
	FormatMinimal Format = "minimal"
	// FormatExtended is the polled-rate shape with capture times:
	//   {"sensors":[{"id":..,"value":..,"timestamp":..}],"actuators":[]}
	FormatExtended Format = "extended"
)

// minimalEntry serializes one reading as a single-key object keyed by the
// channel id.
type minimalEntry Reading

func (e minimalEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{strconv.Itoa(e.ID): e.Value})
}

type minimalPayload struct {
	Data []minimalEntry `json:"data"`
}

type sensorEntry struct {
	ID        int     `json:"id"`
	Value     float64 `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

type extendedPayload struct {
	Sensors   []sensorEntry `json:"sensors"`
	Actuators []sensorEntry `json:"actuators"`
}

// Encode serializes a batch in the given format. An empty or nil batch
// encodes to an empty array, never null, so subscribers still see the
// heartbeat cadence.
func Encode(f Format, b Batch) ([]byte, error) {
	switch f {
	case FormatMinimal:
		entries := make([]minimalEntry, len(b))
		for i, r := range b {
			entries[i] = minimalEntry(r)
		}
		return json.Marshal(minimalPayload{Data: entries})
	case FormatExtended:
		sensors := make([]sensorEntry, len(b))
		for i, r := range b {
			sensors[i] = sensorEntry{ID: r.ID, Value: r.Value, Timestamp: r.CapturedAt}
		}
		return json.Marshal(extendedPayload{Sensors: sensors, Actuators: []sensorEntry{}})
	default:
		return nil, fmt.Errorf("unknown payload format %q", f)
	}
}

// Decode parses a payload produced by Encode back into a batch. Minimal
// entries come back without capture times. Used by tests and by tooling
// that taps the telemetry topic.
func Decode(f Format, data []byte) (Batch, error) {
	switch f {
	case FormatMinimal:
		var p struct {
			Data []map[string]float64 `json:"data"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse minimal payload: %w", err)
		}
		out := make(Batch, 0, len(p.Data))
		for i, entry := range p.Data {
			if len(entry) != 1 {
				return nil, fmt.Errorf("entry %d: want exactly one channel, got %d", i, len(entry))
			}
			for k, v := range entry {
				id, err := strconv.Atoi(k)
				if err != nil {
					return nil, fmt.Errorf("entry %d: channel id %q: %w", i, k, err)
				}
				out = append(out, Reading{ID: id, Value: v})
			}
		}
		return out, nil
	case FormatExtended:
		var p extendedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse extended payload: %w", err)
		}
		out := make(Batch, 0, len(p.Sensors))
		for _, s := range p.Sensors {
			out = append(out, Reading{ID: s.ID, Value: s.Value, CapturedAt: s.Timestamp})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", f)
	}
}
