package monitor

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"sandboxdemo/internal/shared/settings"
	"sandboxdemo/internal/shared/types"
)

// StatusProvider defines the interface the monitor uses to query the
// app server. This decouples the monitor package from the composition
// root.
type StatusProvider interface {
	StatusSnapshot() *StatusSnapshot
}

// StatusSnapshot is the payload of GET /api/status.
type StatusSnapshot struct {
	StartedAt       time.Time          `json:"started_at"`
	UptimeSeconds   int64              `json:"uptime_seconds"`
	ListenAddr      string             `json:"listen_addr"`
	Health          string             `json:"health"`
	HealthLatencyMS int64              `json:"health_latency_ms"`
	Metrics         *types.Metrics     `json:"metrics"`
	Traffic         types.TrafficStats `json:"traffic"`
}

type Handler struct {
	settingsManager *settings.SettingsManager
	provider        StatusProvider
	hub             *Hub
}

func NewHandler(settingsManager *settings.SettingsManager, provider StatusProvider, hub *Hub) *Handler {
	return &Handler{
		settingsManager: settingsManager,
		provider:        provider,
		hub:             hub,
	}
}

// HandleStatus serves GET /api/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.provider.StatusSnapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// HandleRequests serves GET /api/requests with the recent request log.
func (h *Handler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.hub.RecentRequests())
}

// HandleGetSettings serves GET /api/settings.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	currentSettings := h.settingsManager.Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(currentSettings)
}

// HandleUpdateSettings serves POST /api/settings/{module}.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	moduleKey := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	if moduleKey == "" {
		http.Error(w, "Module key is missing in URL path", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	if err := h.settingsManager.Update(moduleKey, body); err != nil {
		if strings.Contains(err.Error(), "unknown settings module") {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else if strings.Contains(err.Error(), "failed to parse JSON") {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Settings updated successfully"}`))
}
