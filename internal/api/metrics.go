package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/bridges/dirigera"
	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
	"github.com/nerrad567/gray-logic-dirigera/internal/entity"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// SystemMetrics is returned by GET /metrics.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Bridge        *dirigera.Metrics `json:"bridge,omitempty"`
	Discovery     discovery.Stats   `json:"discovery"`
	Entities      EntityMetrics     `json:"entities"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// EntityMetrics counts registered entities.
type EntityMetrics struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
}

// handleHealth reports "ok" when every dependency check passes and
// "degraded" (503) otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	check := func(name string, hc HealthChecker) {
		if hc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	check("database", s.database)
	check("mqtt", s.mqtt)
	check("commands", s.commands)

	if s.bridge != nil {
		status, reason := s.bridge.Health()
		checks["bridge"] = string(status)
		if status != dirigera.HealthHealthy {
			checks["bridge"] += ": " + reason
			healthy = false
		}
	}

	resp := HealthResponse{Status: "ok", Version: s.version, Checks: checks}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Discovery: s.coord.Stats(),
		Entities:  EntityMetrics{ByCategory: make(map[string]int)},
	}
	if s.bridge != nil {
		bm := s.bridge.Metrics()
		metrics.Bridge = &bm
	}
	for _, cat := range entity.Categories() {
		if p := s.platforms.Platform(cat); p != nil {
			metrics.Entities.ByCategory[string(cat)] = p.Len()
			metrics.Entities.Total += p.Len()
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
