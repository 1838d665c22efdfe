// Package worker provides the HTTP worker service for memtide.
package worker

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/memtide/memtide/internal/consolidation"
	"github.com/memtide/memtide/pkg/models"
)

const (
	// DefaultListLimit is the default number of records list endpoints return.
	DefaultListLimit = 100

	// MaxRequestBody caps request body size for memory imports.
	MaxRequestBody = 8 << 20 // 8 MiB
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// limitParam parses the ?limit query parameter with a default.
func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultListLimit
}

// handleHealth handles health check requests.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleListMemories returns raw memories. With ?unconsolidated=true only
// memories not yet consumed by a consolidation pass are returned.
func (s *Service) handleListMemories(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)

	var memories []models.Memory
	var err error
	if r.URL.Query().Get("unconsolidated") == "true" {
		memories, err = s.store.ListUnconsolidated(r.Context(), limit)
	} else {
		memories, err = s.store.ListMemories(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list memories")
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}

	if memories == nil {
		memories = []models.Memory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(memories),
		"memories": memories,
	})
}

// handleCreateMemories stores one memory or a batch. The body may be a
// single JSON object or a JSON array of objects.
func (s *Service) handleCreateMemories(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	memories, err := decodeMemories(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory payload")
		return
	}
	if len(memories) == 0 {
		writeError(w, http.StatusBadRequest, "empty memory payload")
		return
	}

	n, err := s.store.InsertMemories(r.Context(), memories)
	if err != nil {
		log.Error().Err(err).Msg("Failed to insert memories")
		writeError(w, http.StatusInternalServerError, "failed to store memories")
		return
	}

	ids := make([]string, 0, len(memories))
	for _, m := range memories {
		ids = append(ids, m.ID)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"imported": n,
		"ids":      ids,
	})
}

// decodeMemories accepts either a single memory object or an array.
func decodeMemories(body []byte) ([]models.Memory, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var memories []models.Memory
		if err := json.Unmarshal(trimmed, &memories); err != nil {
			return nil, err
		}
		return memories, nil
	}

	var m models.Memory
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return []models.Memory{m}, nil
}

// consolidateRequest is the body of POST /api/consolidate.
type consolidateRequest struct {
	Mode      string  `json:"mode"`
	BatchSize int     `json:"batch_size"`
	Threshold float64 `json:"threshold"`
}

// handleConsolidate runs one consolidation pass on demand.
func (s *Service) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Mode != consolidation.ModeTag && req.Mode != consolidation.ModeContent {
		writeError(w, http.StatusBadRequest, "mode must be \"tag\" or \"content\"")
		return
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		writeError(w, http.StatusBadRequest, "threshold must be in [0, 1]")
		return
	}

	records, err := s.scheduler.RunPass(r.Context(), req.Mode, req.BatchSize, req.Threshold)
	if err != nil {
		log.Error().Err(err).Str("mode", req.Mode).Msg("Consolidation pass failed")
		writeError(w, http.StatusInternalServerError, "consolidation failed")
		return
	}

	if records == nil {
		records = []models.ConsolidatedMemory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":         req.Mode,
		"consolidated": len(records),
		"records":      records,
	})
}

// handleListConsolidated returns consolidated records, newest first.
func (s *Service) handleListConsolidated(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListConsolidated(r.Context(), limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list consolidated records")
		writeError(w, http.StatusInternalServerError, "failed to list consolidated records")
		return
	}

	if records == nil {
		records = []models.ConsolidatedMemory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// handleStats returns store counts.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stats")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
