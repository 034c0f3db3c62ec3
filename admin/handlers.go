// Package admin exposes read-only HTTP endpoints for inspecting the running
// pipeline: cluster membership, pipeline counters, and cache occupancy.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/cache"
	"github.com/beandb/fanout/cfg"
	"github.com/beandb/fanout/cluster"
	"github.com/beandb/fanout/index"
	"github.com/beandb/fanout/pipeline"
)

// Handlers serves the admin API.
type Handlers struct {
	broadcaster *cluster.Broadcaster
	coordinator *pipeline.Coordinator
	store       *cache.Store
	worker      *index.Worker // nil when no queued-delivery sink is configured
}

// NewHandlers creates the admin handlers. worker may be nil.
func NewHandlers(broadcaster *cluster.Broadcaster, coordinator *pipeline.Coordinator, store *cache.Store, worker *index.Worker) *Handlers {
	return &Handlers{
		broadcaster: broadcaster,
		coordinator: coordinator,
		store:       store,
		worker:      worker,
	}
}

func (h *Handlers) handleClusterMembers(w http.ResponseWriter, r *http.Request) {
	if !h.broadcaster.IsClustering() {
		writeJSONResponse(w, map[string]interface{}{
			"clustering": false,
			"members":    []cluster.MemberInfo{},
		})
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"clustering": true,
		"members":    h.broadcaster.Members(),
	})
}

func (h *Handlers) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.coordinator.Stats())
}

func (h *Handlers) handleIndexWorker(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeJSONResponse(w, map[string]interface{}{"enabled": false})
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"enabled": true,
		"worker":  h.worker.Stats(),
	})
}

func (h *Handlers) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()

	total := 0
	for _, n := range stats {
		total += n
	}

	writeJSONResponse(w, map[string]interface{}{
		"total_entries": total,
		"by_bean_type":  stats,
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"status":      "ok",
		"server_name": cfg.Config.ServerName,
	})
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
