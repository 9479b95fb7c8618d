// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/bgctl/internal/envfile"
	"github.com/ManuGH/bgctl/internal/log"
	"github.com/ManuGH/bgctl/internal/pool"
	"github.com/ManuGH/bgctl/internal/switcher"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "server")
		logger.Error().Err(err).Str("event", "http.encode").Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, detail string) {
	writeJSON(w, r, code, errorBody{Error: kind, Detail: detail})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.reporter.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, envfile.ErrConfigMissing) {
			writeError(w, r, http.StatusInternalServerError, "config_missing", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

type switchResponse struct {
	Changed bool   `json:"changed"`
	From    string `json:"from"`
	To      string `json:"to"`
	Stale   bool   `json:"stale_routing,omitempty"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	requested, err := pool.Parse(chi.URLParam(r, "pool"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_pool", err.Error())
		return
	}

	result, err := s.switcher.SwitchTo(r.Context(), requested)
	resp := switchResponse{
		Changed: result.Changed,
		From:    result.From.String(),
		To:      result.To.String(),
	}
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, resp)
	case switcher.IsStaleRouting(err):
		// The record moved but the proxy did not. The caller needs to
		// know both facts.
		resp.Stale = true
		writeJSON(w, r, http.StatusBadGateway, resp)
	case errors.Is(err, envfile.ErrConfigMissing), errors.Is(err, envfile.ErrKeyNotFound):
		writeError(w, r, http.StatusInternalServerError, "config_missing", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "switch_failed", err.Error())
	}
}

func (s *Server) handleChaos(w http.ResponseWriter, r *http.Request) {
	target, err := s.chaos.Induce(r.Context())
	if err != nil {
		if errors.Is(err, envfile.ErrConfigMissing) || errors.Is(err, envfile.ErrKeyNotFound) {
			writeError(w, r, http.StatusInternalServerError, "config_missing", err.Error())
			return
		}
		writeError(w, r, http.StatusBadGateway, "chaos_failed", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"pool": target.String()})
}

type healResponse struct {
	Targets []string `json:"targets"`
	Failed  []string `json:"failed,omitempty"`
}

func (s *Server) handleHeal(w http.ResponseWriter, r *http.Request) {
	// An explicit ?pool= pins the target; otherwise the driver works it
	// out from live routing.
	var fixed pool.Pool
	if raw := r.URL.Query().Get("pool"); raw != "" {
		p, err := pool.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_pool", err.Error())
			return
		}
		fixed = p
	}

	result := s.chaos.Heal(r.Context(), fixed)
	resp := healResponse{Targets: poolNames(result.Targets), Failed: poolNames(result.Failed)}
	writeJSON(w, r, http.StatusOK, resp)
}

func poolNames(pools []pool.Pool) []string {
	out := make([]string, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.String())
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, r, http.StatusServiceUnavailable, "journal_disabled", "history journal is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}
