package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecontrol-core/internal/automation"
	"github.com/nerrad567/homecontrol-core/internal/module"
)

// sceneRunner is the part of the automation module the scene endpoints
// use. *automation.Module satisfies it.
type sceneRunner interface {
	Registry() *automation.Registry
	ActivateScene(ctx context.Context, alias, triggerType string) (*automation.SceneExecution, error)
}

// scenes returns the automation module when it is loaded and active,
// writing a 503 otherwise.
func (s *Server) scenes(w http.ResponseWriter) (sceneRunner, bool) {
	if status, _ := s.k.Modules.Status(automation.ModuleName); status != module.StatusActive {
		writeUnavailable(w, "automation module not running")
		return nil, false
	}
	mod, _ := s.k.Modules.Module(automation.ModuleName)
	runner, ok := mod.(sceneRunner)
	if !ok {
		writeUnavailable(w, "automation module not running")
		return nil, false
	}
	return runner, true
}

func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	runner, ok := s.scenes(w)
	if !ok {
		return
	}
	scenes := runner.Registry().ListScenes()
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.scenes(w)
	if !ok {
		return
	}
	scene, err := runner.Registry().GetScene(chi.URLParam(r, "alias"))
	if errors.Is(err, automation.ErrSceneNotFound) {
		writeNotFound(w, "scene not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to get scene")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

// activateRequest is the optional body of a scene activation.
type activateRequest struct {
	TriggerType string `json:"trigger_type"`
}

// handleActivateScene runs a scene and returns its execution record. Step
// failures are part of the record, not an error response.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.scenes(w)
	if !ok {
		return
	}
	alias := chi.URLParam(r, "alias")
	if len(alias) > maxQueryParamLen {
		writeBadRequest(w, "invalid scene alias")
		return
	}

	var req activateRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TriggerType == "" {
		req.TriggerType = "manual"
	}

	exec, err := runner.ActivateScene(r.Context(), alias, req.TriggerType)
	if errors.Is(err, automation.ErrSceneNotFound) {
		writeNotFound(w, "scene not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to activate scene")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
