package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecontrol-core/internal/history"
	"github.com/nerrad567/homecontrol-core/internal/module"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// historyQuerier is implemented by *history.Module.
type historyQuerier interface {
	Query(ctx context.Context, itemID string, limit int) ([]history.Entry, error)
}

// handleGetHistory returns an item's recorded state changes, newest first.
// Entries of removed items stay queryable.
//
// Query parameters:
//   - limit: number of entries (default 50, max 200)
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	if itemID == "" || len(itemID) > maxQueryParamLen {
		writeBadRequest(w, "invalid item ID")
		return
	}
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	mod, ok := s.k.Modules.Module(history.ModuleName)
	querier, isQuerier := mod.(historyQuerier)
	if status, _ := s.k.Modules.Status(history.ModuleName); !ok || !isQuerier || status != module.StatusActive {
		writeUnavailable(w, "state history unavailable")
		return
	}

	entries, err := querier.Query(r.Context(), itemID, limit)
	if errors.Is(err, history.ErrNotRunning) {
		writeUnavailable(w, "state history unavailable")
		return
	}
	if err != nil {
		s.logger.Error("history query failed", "item", itemID, "error", err)
		writeInternalError(w, "failed to load item history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item_id": itemID,
		"history": entries,
		"count":   len(entries),
	})
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}
