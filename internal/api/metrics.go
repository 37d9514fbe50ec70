package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Cache         CacheMetrics   `json:"cache"`
	Browsers      BrowserMetrics `json:"browsers"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// CacheMetrics counts cache entries. Dirty is the changed flag, left untouched by reads.
type CacheMetrics struct {
	Groups  int  `json:"groups"`
	Entries int  `json:"entries"`
	Dirty   bool `json:"dirty"`
}

type BrowserMetrics struct {
	Running   int `json:"running"`
	Borrowers int `json:"borrowers"`
}

// dirtyReporter is implemented by caches that expose their dirty flag.
type dirtyReporter interface {
	HasChanged() bool
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collectMetrics())
}

func (s *Server) collectMetrics() SystemMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	const mb = 1 << 20

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started) / time.Second),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / mb,
			MemoryTotalMB: float64(mem.TotalAlloc) / mb,
			NumGC:         mem.NumGC,
		},
		MQTT: MQTTMetrics{Enabled: s.mqtt != nil, Connected: s.mqtt.IsConnected()},
	}
	if s.hub != nil {
		m.WebSocket.ConnectedClients = s.hub.ClientCount()
	}

	for _, keys := range s.cache.Keys() {
		m.Cache.Groups++
		m.Cache.Entries += len(keys)
	}
	if d, ok := s.cache.(dirtyReporter); ok {
		m.Cache.Dirty = d.HasChanged()
	}

	if s.browsers != nil {
		stats := s.browsers.Stats()
		m.Browsers.Running = len(stats)
		for _, b := range stats {
			m.Browsers.Borrowers += b.Borrowers
		}
	}
	return m
}
