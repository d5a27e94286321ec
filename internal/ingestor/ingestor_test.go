package ingestor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/internal/config"
	"mapchat/internal/domain"
	"mapchat/internal/routegen"
	"mapchat/internal/sim"
	"mapchat/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves whichever venue IDs are currently configured,
// building fresh rows per call the way a real fetch would.
type fakeSource struct {
	venueIDs []string
	dots     []*domain.PresenceDot
	err      error
}

func (f *fakeSource) FetchVenues() ([]*domain.Venue, error) {
	if f.err != nil {
		return nil, f.err
	}
	venues := make([]*domain.Venue, 0, len(f.venueIDs))
	for i, id := range f.venueIDs {
		venues = append(venues, &domain.Venue{
			ID:   id,
			Name: "Venue " + id,
			Lat:  33.4 + float64(i)*0.05,
			Lng:  -111.9 - float64(i)*0.05,
		})
	}
	return venues, nil
}

func (f *fakeSource) FetchPresence() ([]*domain.PresenceDot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dots, nil
}

type countingInvalidator struct {
	calls atomic.Int64
}

func (c *countingInvalidator) Invalidate(ctx context.Context) { c.calls.Add(1) }

func newTestIngestor(src DataSource) (*Ingestor, *store.Store, *sim.Engine) {
	cfg := &config.Config{
		TileZoomLevel:           14,
		VenuePollInterval:       time.Hour,
		PresenceRefreshInterval: time.Hour,
	}
	st := store.New(time.Hour)
	rcfg := routegen.DefaultConfig()
	rcfg.LegPoints = 8
	engine := sim.NewEngine(routegen.NewBuilder(rcfg), rand.New(rand.NewSource(17)), 14, time.Hour, nil, testLogger())
	ing := New(src, st, engine, nil, cfg, testLogger())
	return ing, st, engine
}

func TestPollVenuesBuildsRoutes(t *testing.T) {
	src := &fakeSource{venueIDs: []string{"v1", "v2"}}
	ing, st, engine := newTestIngestor(src)

	assert.False(t, ing.IsReady())
	ing.pollVenues(context.Background())

	assert.True(t, ing.IsReady())
	assert.Equal(t, 2, st.VenueCount())
	routes, agents := engine.Counts()
	assert.Equal(t, 2, routes)
	assert.GreaterOrEqual(t, agents, 2)

	for _, v := range st.VenuesSnapshot() {
		assert.NotEmpty(t, v.TileID)
	}
}

func TestPollVenuesInvalidatesCacheOnChange(t *testing.T) {
	src := &fakeSource{venueIDs: []string{"v1", "v2"}}
	ing, _, engine := newTestIngestor(src)
	inv := &countingInvalidator{}
	ing.SetCacheInvalidator(inv)

	ing.pollVenues(context.Background())
	require.Equal(t, int64(1), inv.calls.Load(), "initial fill invalidates")

	ing.pollVenues(context.Background())
	assert.Equal(t, int64(1), inv.calls.Load(), "unchanged directory leaves the cache alone")

	src.venueIDs = []string{"v1"}
	ing.pollVenues(context.Background())
	assert.Equal(t, int64(2), inv.calls.Load(), "removal drops cached entries")

	routes, _ := engine.Counts()
	assert.Equal(t, 1, routes)
}

func TestPollVenuesKeepsStoreOnError(t *testing.T) {
	src := &fakeSource{venueIDs: []string{"v1"}}
	ing, st, _ := newTestIngestor(src)

	ing.pollVenues(context.Background())
	require.Equal(t, 1, st.VenueCount())

	src.err = errors.New("table store unreachable")
	ing.pollVenues(context.Background())

	assert.Equal(t, 1, st.VenueCount(), "last known directory survives fetch failures")
	assert.True(t, ing.IsReady())
}

func TestPollPresence(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		venueIDs: []string{"v1"},
		dots: []*domain.PresenceDot{
			{ID: "u1", Lat: 33.44, Lng: -111.92, LastActive: now},
		},
	}
	ing, st, _ := newTestIngestor(src)

	ing.pollPresence()

	require.Equal(t, 1, st.PresenceCount())
	dot := st.PresenceSnapshot()[0]
	assert.NotEmpty(t, dot.TileID)
}
