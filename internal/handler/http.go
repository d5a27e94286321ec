package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mapchat/internal/cache"
	"mapchat/internal/domain"
	"mapchat/internal/routegen"
	"mapchat/internal/scene"
	"mapchat/internal/sim"
	"mapchat/internal/store"
	"mapchat/internal/viewport"
)

type HTTPHandler struct {
	store    *store.Store
	engine   *sim.Engine
	cache    *cache.RedisCache // nil when redis is disabled
	cacheTTL time.Duration
	tileZoom int
	composer *scene.Compositor
}

func NewHTTPHandler(st *store.Store, engine *sim.Engine, rc *cache.RedisCache, cacheTTL time.Duration, tileZoom int) *HTTPHandler {
	return &HTTPHandler{
		store:    st,
		engine:   engine,
		cache:    rc,
		cacheTTL: cacheTTL,
		tileZoom: tileZoom,
		composer: scene.NewCompositor(nil),
	}
}

type VenuesResponse struct {
	Venues     []*domain.Venue `json:"venues"`
	Count      int             `json:"count"`
	ServerTime time.Time       `json:"serverTime"`
}

func (h *HTTPHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	opts := store.ListOptions{
		Category: r.URL.Query().Get("category"),
	}

	if bboxStr := r.URL.Query().Get("bbox"); bboxStr != "" {
		bbox, err := parseBBox(bboxStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid bbox: "+err.Error())
			return
		}
		opts.BBox = bbox
	}

	// The full directory is cached; filtered listings go to the store.
	unfiltered := opts.Category == "" && opts.BBox == nil
	if h.cache != nil && unfiltered {
		var cached []*domain.Venue
		if ok, _ := h.cache.GetJSON(r.Context(), cache.KeyVenueDirectory, &cached); ok {
			ServerStats.IncCacheHits()
			respondJSON(w, http.StatusOK, VenuesResponse{
				Venues:     cached,
				Count:      len(cached),
				ServerTime: time.Now(),
			})
			return
		}
		ServerStats.IncCacheMisses()
	}

	venues := h.store.ListVenues(opts)

	if h.cache != nil && unfiltered {
		_ = h.cache.SetJSON(r.Context(), cache.KeyVenueDirectory, venues, h.cacheTTL)
	}

	respondJSON(w, http.StatusOK, VenuesResponse{
		Venues:     venues,
		Count:      len(venues),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing venue id")
		return
	}

	if h.cache != nil {
		var cached domain.Venue
		if ok, _ := h.cache.GetJSON(r.Context(), cache.KeyVenue(id), &cached); ok {
			ServerStats.IncCacheHits()
			respondJSON(w, http.StatusOK, &cached)
			return
		}
		ServerStats.IncCacheMisses()
	}

	venue, ok := h.store.GetVenue(id)
	if !ok {
		respondError(w, http.StatusNotFound, "venue not found")
		return
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(r.Context(), cache.KeyVenue(id), venue, h.cacheTTL)
	}

	respondJSON(w, http.StatusOK, venue)
}

func (h *HTTPHandler) GetVenueRoute(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing venue id")
		return
	}

	if h.cache != nil {
		var cached routegen.Route
		if ok, _ := h.cache.GetJSON(r.Context(), cache.KeyVenueRoute(id), &cached); ok {
			ServerStats.IncCacheHits()
			respondJSON(w, http.StatusOK, &cached)
			return
		}
		ServerStats.IncCacheMisses()
	}

	route, ok := h.engine.RouteFor(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no route for venue")
		return
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(r.Context(), cache.KeyVenueRoute(id), route, h.cacheTTL)
	}

	respondJSON(w, http.StatusOK, route)
}

type RoutesResponse struct {
	Routes []*routegen.Route `json:"routes"`
	Count  int               `json:"count"`
}

func (h *HTTPHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	if h.cache != nil {
		var cached []*routegen.Route
		if ok, _ := h.cache.GetJSONCompressed(r.Context(), cache.KeyRouteSet, &cached); ok {
			ServerStats.IncCacheHits()
			respondJSON(w, http.StatusOK, RoutesResponse{Routes: cached, Count: len(cached)})
			return
		}
		ServerStats.IncCacheMisses()
	}

	routes := h.engine.Routes()

	if h.cache != nil {
		_ = h.cache.SetJSONCompressed(r.Context(), cache.KeyRouteSet, routes, h.cacheTTL)
	}

	respondJSON(w, http.StatusOK, RoutesResponse{Routes: routes, Count: len(routes)})
}

type AgentsResponse struct {
	Agents     []*domain.AgentMarker `json:"agents"`
	Count      int                   `json:"count"`
	ServerTime time.Time             `json:"serverTime"`
}

func (h *HTTPHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	agents := h.engine.Agents()
	respondJSON(w, http.StatusOK, AgentsResponse{
		Agents:     agents,
		Count:      len(agents),
		ServerTime: time.Now(),
	})
}

// GetScene composes a one-shot renderable snapshot for a bounding box.
// Stateless: no selection, heatmap on unless disabled by query.
func (h *HTTPHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	bboxStr := r.URL.Query().Get("bbox")
	if bboxStr == "" {
		respondError(w, http.StatusBadRequest, "missing bbox parameter")
		return
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bbox: "+err.Error())
		return
	}

	zoom := 14.0
	if z := r.URL.Query().Get("zoom"); z != "" {
		if parsed, err := strconv.ParseFloat(z, 64); err == nil {
			zoom = parsed
		}
	}

	heatmap := r.URL.Query().Get("heatmap") != "false"

	// Tile IDs embed the zoom level, so the lookup must use the zoom the
	// store was indexed at, not the camera zoom. The tile set is a
	// superset of the bbox; trim the overhang.
	tiles := viewport.TilesCovering(*bbox, h.tileZoom)

	venues := make([]*domain.Venue, 0)
	for _, v := range h.store.VenuesForTiles(tiles) {
		if bbox.Contains(v.Lat, v.Lng) {
			venues = append(venues, v)
		}
	}
	presence := make([]*domain.PresenceDot, 0)
	for _, d := range h.store.PresenceForTiles(tiles) {
		if bbox.Contains(d.Lat, d.Lng) {
			presence = append(presence, d)
		}
	}

	agents := make([]*domain.AgentMarker, 0)
	for _, a := range h.engine.Agents() {
		if bbox.Contains(a.Lat, a.Lng) {
			agents = append(agents, a)
		}
	}

	snap := h.composer.Compose(time.Now(), venues, agents, presence, scene.ComposeOptions{
		Zoom:        zoom,
		ShowHeatmap: heatmap,
	})
	respondJSON(w, http.StatusOK, snap)
}

func parseBBox(bboxStr string) (*domain.BoundingBox, error) {
	parts := strings.Split(bboxStr, ",")
	if len(parts) != 4 {
		return nil, strconv.ErrSyntax
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &domain.BoundingBox{
		MinLat: vals[0], MinLng: vals[1],
		MaxLat: vals[2], MaxLng: vals[3],
	}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
