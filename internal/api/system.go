package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/homecontrol-core/internal/module"
)

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "pong"})
}

// handleHealth reports "degraded" while any module has failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var failed []string
	for _, info := range s.k.Modules.Modules() {
		if info.Status == module.StatusError {
			failed = append(failed, info.Name)
		}
	}
	status := "ok"
	if len(failed) > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"instance_id":    s.k.InstanceID,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"items":          s.k.Items.GetItemCount(),
		"failed_modules": nonNil(failed),
	})
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	modules := s.k.Modules.Modules()
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

// handleReloadConfig re-reads the configuration source and offers every
// reloadable domain to its owner.
func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	result, err := s.k.ReloadConfig(r.Context())
	if err != nil {
		writeInternalError(w, "configuration reload failed: "+err.Error())
		return
	}

	failed := make(map[string]string, len(result.Failed))
	for domain, ferr := range result.Failed {
		failed[domain] = ferr.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated": nonNil(result.Updated),
		"skipped": nonNil(result.Skipped),
		"failed":  failed,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
