package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"mapchat/internal/ingestor"
	"mapchat/internal/sim"
	"mapchat/internal/store"
)

type HealthHandler struct {
	ingestor *ingestor.Ingestor
	store    *store.Store
	engine   *sim.Engine
}

func NewHealthHandler(ing *ingestor.Ingestor, s *store.Store, engine *sim.Engine) *HealthHandler {
	return &HealthHandler{
		ingestor: ing,
		store:    s,
		engine:   engine,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	VenueCount int       `json:"venueCount"`
	AgentCount int       `json:"agentCount"`
	Ticking    bool      `json:"ticking"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ingestor.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	_, agents := h.engine.Counts()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		VenueCount: h.store.VenueCount(),
		AgentCount: agents,
		Ticking:    h.engine.Running(),
		ServerTime: time.Now(),
	})
}
