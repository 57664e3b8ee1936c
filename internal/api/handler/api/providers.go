// internal/api/handler/api/providers.go
package api

import (
	"net/http"

	"github.com/newthinker/nisab/internal/api/response"
	"github.com/newthinker/nisab/internal/provider"
	"github.com/newthinker/nisab/internal/syncer"
)

// StatusHandler reports provider chains and cache coverage.
type StatusHandler struct {
	registry *provider.Registry
	syncer   *syncer.Syncer
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(registry *provider.Registry, s *syncer.Syncer) *StatusHandler {
	return &StatusHandler{registry: registry, syncer: s}
}

// Providers handles GET /api/v1/providers
func (h *StatusHandler) Providers(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"providers": h.registry.Status(),
	})
}

// Coverage handles GET /api/v1/coverage
func (h *StatusHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.syncer.Coverage(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"coverage": rows,
	})
}
