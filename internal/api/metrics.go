package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Scheduler     SchedulerMetrics `json:"scheduler"`
	WebSocket     WSMetrics        `json:"websocket"`
	Items         ItemMetrics      `json:"items"`
	Modules       map[string]int   `json:"modules"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SchedulerMetrics contains scheduler loop statistics.
type SchedulerMetrics struct {
	RunningTasks int64 `json:"running_tasks"`
	Pending      int   `json:"pending"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ItemMetrics contains item registry statistics.
type ItemMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByModule map[string]int `json:"by_module"`
}

// handleMetrics returns a JSON summary of the hub. Prometheus scrapes
// /metrics instead.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()

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
		Scheduler: SchedulerMetrics{
			RunningTasks: s.k.Loop.Running(),
			Pending:      s.k.Loop.Pending(),
		},
		WebSocket: WSMetrics{
			ConnectedClients: hub.ClientCount(),
		},
		Items: ItemMetrics{
			ByStatus: make(map[string]int),
			ByModule: make(map[string]int),
		},
		Modules: make(map[string]int),
	}

	for _, it := range s.k.Items.ListItems() {
		metrics.Items.Total++
		metrics.Items.ByStatus[string(it.Status())]++
		metrics.Items.ByModule[it.Module()]++
	}
	for _, info := range s.k.Modules.Modules() {
		metrics.Modules[string(info.Status)]++
	}

	writeJSON(w, http.StatusOK, metrics)
}
