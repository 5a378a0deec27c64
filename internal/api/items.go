package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecontrol-core/internal/item"
	"github.com/nerrad567/homecontrol-core/internal/scheduler"
)

// maxQueryParamLen limits query parameter length.
const maxQueryParamLen = 100

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// lookupItem resolves the {id} route parameter, writing a 404 when the item
// is unknown.
func (s *Server) lookupItem(w http.ResponseWriter, r *http.Request) (*item.Item, bool) {
	it, ok := s.k.Items.GetItem(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "item not found")
		return nil, false
	}
	return it, true
}

// handleListItems returns every item, optionally filtered by owning module.
//
// Query parameters:
//   - module: only items created by this module
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items := s.k.Items.ListItems()
	if mod := r.URL.Query().Get("module"); mod != "" {
		if len(mod) > maxQueryParamLen {
			writeBadRequest(w, "module exceeds maximum length")
			return
		}
		items = s.k.Items.GetItemsByModule(mod)
	}

	snapshots := make([]item.Snapshot, 0, len(items))
	for _, it := range items {
		snapshots = append(snapshots, it.Snapshot())
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": snapshots, "count": len(snapshots)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, it.Snapshot())
}

func (s *Server) handleGetStates(w http.ResponseWriter, r *http.Request) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, it.States().Dump())
}

// handleSetStates sets several states of one item in name order. The
// request body maps state names to values. Values set before a failure
// stay set.
func (s *Server) handleSetStates(w http.ResponseWriter, r *http.Request) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	var values map[string]any
	if err := decodeBody(r, &values); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(values) == 0 {
		writeBadRequest(w, "no states given")
		return
	}
	for name := range values {
		if !it.States().Has(name) {
			writeNotFound(w, "unknown state: "+name)
			return
		}
	}

	changes, err := scheduler.RunBlocking(r.Context(), s.k.Loop, func(ctx context.Context) (map[string]any, error) {
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)

		changes := make(map[string]any)
		for _, name := range names {
			changed, err := it.States().Set(ctx, name, values[name])
			if err != nil {
				return nil, err
			}
			for k, v := range changed {
				changes[k] = v
			}
		}
		return changes, nil
	})
	if err != nil {
		writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes, "states": it.States().Dump()})
}

// handleSetState sets one state from a {"value": ...} body.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	value, ok := body["value"]
	if !ok {
		writeBadRequest(w, "value is required")
		return
	}

	name := chi.URLParam(r, "state")
	changes, err := scheduler.RunBlocking(r.Context(), s.k.Loop, func(ctx context.Context) (map[string]any, error) {
		return it.States().Set(ctx, name, value)
	})
	if err != nil {
		writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes, "states": it.States().Dump()})
}

// handleRunAction runs a named action. The optional body holds the
// action's arguments.
func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	it, ok := s.lookupItem(w, r)
	if !ok {
		return
	}
	var args map[string]any
	if err := decodeBody(r, &args); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := chi.URLParam(r, "action")
	result, err := scheduler.RunBlocking(r.Context(), s.k.Loop, func(ctx context.Context) (any, error) {
		return it.RunAction(ctx, name, args)
	})
	if err != nil {
		writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result, "states": it.States().Dump()})
}
