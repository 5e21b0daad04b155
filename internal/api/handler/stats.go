package handler

import (
	"net/http"

	"github.com/mcoot/wordquizzle/internal/api/response"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// StatsHandler reports registry counters
type StatsHandler struct {
	registry *registry.Registry
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(registry *registry.Registry) *StatsHandler {
	return &StatsHandler{registry: registry}
}

// Get handles GET /api/v1/stats
func (h *StatsHandler) Get(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, h.registry.Stats())
}
