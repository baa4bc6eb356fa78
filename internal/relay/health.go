package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus is the readiness view of the relay.
type HealthStatus struct {
	Status        string `json:"status"` // healthy, degraded, unhealthy
	InstanceID    string `json:"instance_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	MQTTConnected bool   `json:"mqtt_connected"`

	Store struct {
		Strategy  string `json:"strategy"`
		Committed uint64 `json:"committed"`
		Collected uint64 `json:"collected"`
		Dropped   uint64 `json:"dropped"`
	} `json:"store"`

	Sampling struct {
		Cycles     uint64 `json:"cycles"`
		ReadErrors uint64 `json:"read_errors"`
	} `json:"sampling"`

	Publishing struct {
		Published uint64 `json:"published"`
		Errors    uint64 `json:"errors"`
	} `json:"publishing"`

	Commands struct {
		Handled        uint64 `json:"handled"`
		Received       uint64 `json:"received"`
		DroppedInbound uint64 `json:"dropped_inbound"`
	} `json:"commands"`
}

// HealthCheck snapshots the service counters. Degraded means the broker
// link is down; sampling keeps running regardless.
func (r *Relay) HealthCheck() HealthStatus {
	r.mu.Lock()
	running := r.isRunning
	started := r.started
	r.mu.Unlock()

	var hs HealthStatus
	hs.InstanceID = r.cfg.InstanceID
	hs.UptimeSeconds = int64(time.Since(started).Seconds())

	ts := r.client.Stats()
	hs.MQTTConnected = ts.Connected

	ss := r.store.Stats()
	hs.Store.Strategy = r.cfg.Telemetry.Store
	hs.Store.Committed = ss.Committed
	hs.Store.Collected = ss.Collected
	hs.Store.Dropped = ss.Dropped

	hs.Sampling.Cycles = r.producer.Cycles()
	hs.Sampling.ReadErrors = r.producer.ReadErrors()

	hs.Publishing.Published = r.publisher.Published()
	hs.Publishing.Errors = r.publisher.PublishErrors()

	hs.Commands.Handled = r.consumer.Handled()
	hs.Commands.Received = ts.Received
	hs.Commands.DroppedInbound = ts.DroppedInbound

	switch {
	case !running:
		hs.Status = "unhealthy"
	case !ts.Connected:
		hs.Status = "degraded"
	default:
		hs.Status = "healthy"
	}
	return hs
}

// livenessHandler answers /health: the process is alive.
func (r *Relay) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(r.started).Seconds()),
	})
}

// readinessHandler answers /readiness with the full counter snapshot.
func (r *Relay) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	hs := r.HealthCheck()
	code := http.StatusOK
	if hs.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(hs)
}

func (r *Relay) startHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", r.livenessHandler)
	mux.HandleFunc("/readiness", r.readinessHandler)

	r.healthSrv = &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := r.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	slog.Info("health server started", "port", port)
	return nil
}

func (r *Relay) stopHealthServer(ctx context.Context) {
	if r.healthSrv == nil {
		return
	}
	if err := r.healthSrv.Shutdown(ctx); err != nil {
		slog.Error("health server shutdown failed", "error", err)
	}
	r.healthSrv = nil
}
