package sim

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/internal/domain"
	"mapchat/internal/routegen"
)

type captureBroadcaster struct {
	mu      sync.Mutex
	batches [][]domain.SceneDelta
}

func (c *captureBroadcaster) Broadcast(deltas []domain.SceneDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, deltas)
}

func (c *captureBroadcaster) last() []domain.SceneDelta {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	return c.batches[len(c.batches)-1]
}

func newTestEngine(bc Broadcaster) *Engine {
	cfg := routegen.DefaultConfig()
	cfg.LegPoints = 8
	builder := routegen.NewBuilder(cfg)
	rng := rand.New(rand.NewSource(11))
	return NewEngine(builder, rng, 14, time.Hour, bc, testLogger())
}

func testEngineVenues() []*domain.Venue {
	return []*domain.Venue{
		{ID: "v1", Lat: 33.4484, Lng: -111.9261},
		{ID: "v2", Lat: 33.4255, Lng: -111.9400},
	}
}

func TestEngineRebuildSpawnsAgents(t *testing.T) {
	bc := &captureBroadcaster{}
	e := newTestEngine(bc)

	e.Rebuild(testEngineVenues())

	routes, agents := e.Counts()
	assert.Equal(t, 2, routes)
	assert.GreaterOrEqual(t, agents, 2)
	assert.LessOrEqual(t, agents, 4)

	deltas := bc.last()
	require.NotEmpty(t, deltas)
	for _, d := range deltas {
		assert.Equal(t, domain.KindAgent, d.Kind)
		assert.Equal(t, domain.DeltaUpdate, d.Type)
		assert.NotEmpty(t, d.TileID)
	}
}

func TestEngineRebuildRemovesOldAgents(t *testing.T) {
	bc := &captureBroadcaster{}
	e := newTestEngine(bc)

	e.Rebuild(testEngineVenues())
	snap := e.Snapshot()
	oldIDs := make(map[string]bool, len(snap.Agents))
	for _, a := range snap.Agents {
		oldIDs[a.ID] = true
	}

	e.Rebuild([]*domain.Venue{{ID: "v9", Lat: 40.0, Lng: -75.0}})

	deltas := bc.last()
	removes := 0
	for _, d := range deltas {
		if d.Type == domain.DeltaRemove {
			removes++
			assert.True(t, oldIDs[d.Key], "removal for %s", d.Key)
		}
	}
	assert.Equal(t, len(oldIDs), removes)
}

func TestEngineTickAdvancesAndBroadcasts(t *testing.T) {
	bc := &captureBroadcaster{}
	e := newTestEngine(bc)
	e.Rebuild(testEngineVenues())

	before := e.Snapshot()
	e.Tick()
	after := e.Snapshot()

	assert.Equal(t, before.Tick+1, after.Tick)
	require.Equal(t, len(before.Agents), len(after.Agents))
	for i := range after.Agents {
		assert.Equal(t, before.Agents[i].Index+1, after.Agents[i].Index)
	}

	deltas := bc.last()
	assert.Len(t, deltas, len(after.Agents))
}

func TestEngineStopPreservesState(t *testing.T) {
	e := newTestEngine(nil)
	e.Rebuild(testEngineVenues())

	e.Start()
	assert.True(t, e.Running())
	e.Stop()
	assert.False(t, e.Running())

	e.Tick()
	e.Tick()
	snap := e.Snapshot()
	assert.Equal(t, uint64(2), snap.Tick)

	e.Start()
	assert.True(t, e.Running())
	assert.Equal(t, uint64(2), e.TickCount(), "restart does not replay missed ticks")
	e.Stop()
}

func TestEngineRouteFor(t *testing.T) {
	e := newTestEngine(nil)
	e.Rebuild(testEngineVenues())

	rt, ok := e.RouteFor("v1")
	require.True(t, ok)
	assert.Equal(t, "v1", rt.VenueID)

	_, ok = e.RouteFor("missing")
	assert.False(t, ok)
}

func TestEngineAgentsMarkers(t *testing.T) {
	e := newTestEngine(nil)
	e.Rebuild(testEngineVenues())

	markers := e.Agents()
	_, agents := e.Counts()
	require.Len(t, markers, agents)
	for _, m := range markers {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.Label)
		assert.NotEmpty(t, m.TileID)
	}
}
