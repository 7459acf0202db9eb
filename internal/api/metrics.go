package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/cellgate-core/internal/command"
)

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Hub           HubMetrics       `json:"hub"`
	Commands      *command.Totals  `json:"commands,omitempty"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// HubMetrics describes live connections. DeviceConnections counts sockets,
// including ones that have not authenticated yet; OnlineDevices lists the
// registered ones.
type HubMetrics struct {
	DeviceConnections int      `json:"device_connections"`
	ClientConnections int      `json:"client_connections"`
	OnlineDevices     []string `json:"online_devices"`
	EventSubscribers  int      `json:"event_subscribers"`
}

// MQTTMetrics reports the optional broker link.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, hub and storage metrics. A failing totals
// query leaves Commands unset rather than failing the request.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:  runtime.NumGoroutine(),
			HeapAllocMB: float64(mem.HeapAlloc) / (1 << 20),
			NumGC:       mem.NumGC,
		},
		Hub: HubMetrics{
			DeviceConnections: s.conns.count(connKindDevice),
			ClientConnections: s.conns.count(connKindClient),
			OnlineDevices:     s.hub.Registry().OnlineDeviceIDs(),
			EventSubscribers:  s.hub.Bus().Count(),
		},
	}

	if totals, err := s.commands.Totals(r.Context()); err == nil {
		m.Commands = &totals
	} else {
		s.logger.Warn("metrics: command totals unavailable", "error", err)
	}

	if s.mqtt != nil {
		m.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}
