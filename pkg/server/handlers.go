package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"tempocoord/pkg/cluster"
	"tempocoord/pkg/reconcile"
)

// handleEvents is the runtime event intake. Every delivered event triggers
// one full reconciliation pass; the response carries the resulting status.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var ev reconcile.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode event: %v", err))
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := s.reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRelations accepts relation databag writes from the runtime and
// reflects relation lifecycle:
//
//	PUT    /v1/relations/{endpoint}/{id}/app          replace the remote app bag
//	PUT    /v1/relations/{endpoint}/{id}/unit/{unit}  replace one remote unit bag
//	DELETE /v1/relations/{endpoint}/{id}/unit/{unit}  unit departed
//	DELETE /v1/relations/{endpoint}/{id}              relation broken
//	GET    /v1/relations/{endpoint}/{id}              inspect both sides
//
// Writes update the store first, then deliver the matching event, so the
// reconciler always sees current data.
func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	// split the escaped path so unit ids containing %2F stay one segment
	raw := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), "/v1/relations/"), "/"), "/")
	parts := make([]string, 0, len(raw))
	for _, segment := range raw {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bad path segment %q", segment))
			return
		}
		parts = append(parts, decoded)
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "expected /v1/relations/{endpoint}/{id}/...")
		return
	}
	endpoint, relID := parts[0], parts[1]
	rest := parts[2:]

	switch r.Method {
	case http.MethodPut:
		s.putRelation(w, r, endpoint, relID, rest)
	case http.MethodDelete:
		s.deleteRelation(w, r, endpoint, relID, rest)
	case http.MethodGet:
		s.getRelation(w, r, endpoint, relID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) putRelation(w http.ResponseWriter, r *http.Request, endpoint, relID string, rest []string) {
	var bag cluster.Databag
	if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode databag: %v", err))
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "app":
		if err := s.rels.SetAppBag(r.Context(), endpoint, relID, bag); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case len(rest) == 2 && rest[0] == "unit" && rest[1] != "":
		if err := s.rels.SetUnitBag(r.Context(), endpoint, relID, rest[1], bag); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "expected .../app or .../unit/{unit}")
		return
	}

	s.dispatch(w, r, reconcile.Event{
		Kind:       reconcile.KindRelationChanged,
		Endpoint:   endpoint,
		RelationID: relID,
	})
}

func (s *Server) deleteRelation(w http.ResponseWriter, r *http.Request, endpoint, relID string, rest []string) {
	switch {
	case len(rest) == 0:
		s.dispatch(w, r, reconcile.Event{
			Kind:       reconcile.KindRelationBroken,
			Endpoint:   endpoint,
			RelationID: relID,
		})
	case len(rest) == 2 && rest[0] == "unit" && rest[1] != "":
		s.dispatch(w, r, reconcile.Event{
			Kind:       reconcile.KindRelationDeparted,
			Endpoint:   endpoint,
			RelationID: relID,
			Unit:       rest[1],
		})
	default:
		writeError(w, http.StatusBadRequest, "expected /v1/relations/{endpoint}/{id} or .../unit/{unit}")
	}
}

func (s *Server) getRelation(w http.ResponseWriter, r *http.Request, endpoint, relID string) {
	app, err := s.rels.AppBag(r.Context(), endpoint, relID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	units, err := s.rels.UnitBags(r.Context(), endpoint, relID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	local, err := s.rels.LocalBag(r.Context(), endpoint, relID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint":    endpoint,
		"relation_id": relID,
		"app":         app,
		"units":       units,
		"local":       local,
	})
}

// dispatch runs the reconciler for a synthesized event and writes the
// resulting status back.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ev reconcile.Event) {
	status, err := s.reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := map[string]any{
		"mode":   s.config.Cluster.Mode,
		"status": s.reconciler.Status(),
	}
	if inspector, ok := s.reconciler.(Inspector); ok {
		passes, err := inspector.Passes(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["passes"] = passes
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	inspector, ok := s.reconciler.(Inspector)
	if !ok {
		writeError(w, http.StatusNotFound, "topology is only served in coordinator mode")
		return
	}
	verdict, err := inspector.Topology(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	inspector, ok := s.reconciler.(Inspector)
	if !ok {
		writeError(w, http.StatusNotFound, "config is only served in coordinator mode")
		return
	}
	version, document, err := inspector.LastPublished(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if version == 0 {
		writeError(w, http.StatusNotFound, "no config published yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  version,
		"document": document,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
