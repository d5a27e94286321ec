package sim

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"mapchat/internal/domain"
	"mapchat/internal/routegen"
	"mapchat/internal/viewport"
)

// Broadcaster receives tile-tagged scene deltas produced by the engine
type Broadcaster interface {
	Broadcast(deltas []domain.SceneDelta)
}

// Engine owns the route set and the live agent state. All mutation happens
// serially inside the clock tick callback or Rebuild; readers get snapshot
// copies under a read lock.
type Engine struct {
	mu        sync.RWMutex
	builder   *routegen.Builder
	routes    map[string]*routegen.Route
	routeList []*routegen.Route
	state     State

	rng         *rand.Rand
	tileZoom    int
	broadcaster Broadcaster
	clock       *Clock
	logger      *slog.Logger
}

func NewEngine(builder *routegen.Builder, rng *rand.Rand, tileZoom int, tickInterval time.Duration, broadcaster Broadcaster, logger *slog.Logger) *Engine {
	e := &Engine{
		builder:     builder,
		routes:      make(map[string]*routegen.Route),
		rng:         rng,
		tileZoom:    tileZoom,
		broadcaster: broadcaster,
		logger:      logger.With("component", "sim_engine"),
	}
	e.clock = NewClock(tickInterval, e.Tick, logger)
	return e
}

// Start resumes the tick clock. Agent state carries over from before the
// last Stop; missed ticks are not replayed.
func (e *Engine) Start() { e.clock.Start() }

// Stop suspends ticking without losing agent state
func (e *Engine) Stop() { e.clock.Stop() }

func (e *Engine) Running() bool { return e.clock.Running() }

// Rebuild regenerates routes for a changed venue set and respawns the
// agent population. Old agents are announced as removals so subscribed
// clients drop their markers.
func (e *Engine) Rebuild(venues []*domain.Venue) {
	routes := e.builder.BuildRoutes(venues)

	e.mu.Lock()
	removed := make([]domain.SceneDelta, 0, len(e.state.Agents))
	for _, a := range e.state.Agents {
		removed = append(removed, domain.SceneDelta{
			Type:   domain.DeltaRemove,
			Kind:   domain.KindAgent,
			Key:    a.ID,
			TileID: viewport.TileIDAt(a.Lat, a.Lng, e.tileZoom),
		})
	}

	e.routeList = routes
	e.routes = make(map[string]*routegen.Route, len(routes))
	for _, rt := range routes {
		e.routes[rt.VenueID] = rt
	}
	e.state = Spawn(routes, e.rng)
	spawned := e.agentDeltasLocked()
	agentCount := len(e.state.Agents)
	e.mu.Unlock()

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(append(removed, spawned...))
	}
	e.logger.Info("routes rebuilt", "routes", len(routes), "agents", agentCount)
}

// Tick advances every agent one waypoint and broadcasts the new positions
func (e *Engine) Tick() {
	e.mu.Lock()
	e.state = Advance(e.state, e.routes, e.rng)
	deltas := e.agentDeltasLocked()
	tick := e.state.Tick
	e.mu.Unlock()

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(deltas)
	}
	e.logger.Debug("tick completed", "tick", tick, "agents", len(deltas))
}

// Snapshot returns a copy of the current simulation state
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	agents := make([]Agent, len(e.state.Agents))
	copy(agents, e.state.Agents)
	return State{Agents: agents, Tick: e.state.Tick}
}

// Agents returns the renderable markers for all live agents
func (e *Engine) Agents() []*domain.AgentMarker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	markers := make([]*domain.AgentMarker, 0, len(e.state.Agents))
	for _, a := range e.state.Agents {
		markers = append(markers, e.markerLocked(a))
	}
	return markers
}

// RouteFor returns the generated route for a venue, if one exists
func (e *Engine) RouteFor(venueID string) (*routegen.Route, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rt, ok := e.routes[venueID]
	return rt, ok
}

// Routes returns the current route list in generation order
func (e *Engine) Routes() []*routegen.Route {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*routegen.Route, len(e.routeList))
	copy(out, e.routeList)
	return out
}

func (e *Engine) Counts() (routes, agents int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.routeList), len(e.state.Agents)
}

func (e *Engine) TickCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Tick
}

func (e *Engine) agentDeltasLocked() []domain.SceneDelta {
	deltas := make([]domain.SceneDelta, 0, len(e.state.Agents))
	for _, a := range e.state.Agents {
		m := e.markerLocked(a)
		deltas = append(deltas, domain.SceneDelta{
			Type:   domain.DeltaUpdate,
			Kind:   domain.KindAgent,
			Agent:  m,
			TileID: m.TileID,
		})
	}
	return deltas
}

func (e *Engine) markerLocked(a Agent) *domain.AgentMarker {
	return &domain.AgentMarker{
		ID:      a.ID,
		Label:   a.Label,
		VenueID: a.VenueID,
		Lat:     a.Lat,
		Lng:     a.Lng,
		TileID:  viewport.TileIDAt(a.Lat, a.Lng, e.tileZoom),
	}
}
