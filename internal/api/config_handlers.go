package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/infinitelandscape/server/internal/config"
	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/streaming"
)

// TerrainConfigResponse is what a render client needs to lay out chunks.
type TerrainConfigResponse struct {
	Terrain        config.TerrainConfig `json:"terrain"`
	ViewerSpeed    float64              `json:"viewer_speed"`
	TickRateMS     int64                `json:"tick_rate_ms"`
	Protocol       string               `json:"protocol"`
	GeometryFormat string               `json:"geometry_format"`
	TokenRequired  bool                 `json:"token_required"`
}

// MetricsResponse wraps the profiler report with live counts.
type MetricsResponse struct {
	Connections   int             `json:"connections"`
	Subscriptions int             `json:"subscriptions"`
	Profile       json.RawMessage `json:"profile"`
}

// ConfigHandlers handles configuration-related HTTP requests
type ConfigHandlers struct {
	config   *config.Config
	manager  *streaming.Manager
	hub      *WebSocketHub
	profiler *performance.Profiler
}

// NewConfigHandlers creates a new instance of ConfigHandlers
func NewConfigHandlers(cfg *config.Config, manager *streaming.Manager, hub *WebSocketHub, profiler *performance.Profiler) *ConfigHandlers {
	return &ConfigHandlers{
		config:   cfg,
		manager:  manager,
		hub:      hub,
		profiler: profiler,
	}
}

// GetTerrainConfig handles GET /api/config/terrain requests
func (h *ConfigHandlers) GetTerrainConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := TerrainConfigResponse{
		Terrain:        h.config.Terrain,
		ViewerSpeed:    h.config.Viewer.Speed,
		TickRateMS:     h.config.Viewer.TickRate.Milliseconds(),
		Protocol:       ProtocolVersion1,
		GeometryFormat: h.config.Streaming.GeometryFormat,
		TokenRequired:  h.config.Auth.TokenSecret != "",
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding terrain config: %v", err)
	}
}

// GetMetrics handles GET /api/metrics requests
func (h *ConfigHandlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	profile, err := h.profiler.JSONReport()
	if err != nil {
		log.Printf("Error building profiler report: %v", err)
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(MetricsResponse{
		Connections:   h.hub.Count(),
		Subscriptions: h.manager.Count(),
		Profile:       profile,
	}); err != nil {
		log.Printf("Error encoding metrics: %v", err)
	}
}
