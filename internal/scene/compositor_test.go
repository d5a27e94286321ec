package scene

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapchat/internal/domain"
)

func TestMarkerScaleBounds(t *testing.T) {
	for zoom := 0.0; zoom <= 22; zoom += 0.5 {
		s := MarkerScale(zoom)
		assert.GreaterOrEqual(t, s, 0.6, "zoom %v", zoom)
		assert.LessOrEqual(t, s, 1.2, "zoom %v", zoom)
	}

	assert.Equal(t, 0.6, MarkerScale(3))
	assert.Equal(t, 1.0, MarkerScale(12))
	assert.Equal(t, 1.2, MarkerScale(20))
}

func TestMarkerSize(t *testing.T) {
	// At zoom 12 the scale factor is exactly 1
	assert.Equal(t, 30.0, MarkerSize(1, 12))
	assert.Equal(t, 30.0, MarkerSize(0, 12), "non-positive counts treated as 1")
	assert.InDelta(t, 30+math.Log(40)*5, MarkerSize(40, 12), 1e-9)

	// Cap applies before zoom scaling
	assert.Equal(t, 50.0, MarkerSize(1_000_000, 12))
	assert.Equal(t, 50.0*1.2, MarkerSize(1_000_000, 24))
	assert.Equal(t, 50.0*0.6, MarkerSize(1_000_000, 1))
}

func TestMarkerSizeMonotonic(t *testing.T) {
	prev := 0.0
	for _, n := range []int{1, 2, 5, 10, 25, 50, 100} {
		size := MarkerSize(n, 12)
		assert.Greater(t, size, prev, "participants %d", n)
		prev = size
	}
}

func TestHeatWeight(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 1.0, HeatWeight(now, now))
	assert.InDelta(t, 0.5, HeatWeight(now, now.Add(-30*time.Minute)), 1e-9)
	assert.Equal(t, 0.2, HeatWeight(now, now.Add(-time.Hour)))
	assert.Equal(t, 0.2, HeatWeight(now, now.Add(-24*time.Hour)), "floor holds for very stale dots")
	assert.Equal(t, 1.0, HeatWeight(now, now.Add(time.Minute)), "future timestamps clamp to full weight")
}

func TestSelectionExclusive(t *testing.T) {
	c := NewCompositor(nil)

	require.True(t, c.ClickVenue(&domain.Venue{ID: "v1"}))
	venue, agent := c.Selection()
	assert.Equal(t, "v1", venue)
	assert.Empty(t, agent)

	require.True(t, c.ClickAgent("a1"))
	venue, agent = c.Selection()
	assert.Empty(t, venue)
	assert.Equal(t, "a1", agent)

	require.True(t, c.ClickVenue(&domain.Venue{ID: "v2"}))
	venue, agent = c.Selection()
	assert.Equal(t, "v2", venue)
	assert.Empty(t, agent)
}

func TestClickBackgroundClears(t *testing.T) {
	c := NewCompositor(nil)

	c.ClickVenue(&domain.Venue{ID: "v1"})
	c.HoverVenue("v2", 1024)
	c.ClickBackground()

	venue, agent := c.Selection()
	assert.Empty(t, venue)
	assert.Empty(t, agent)

	snap := c.Compose(time.Now(), nil, nil, nil, ComposeOptions{Zoom: 14})
	assert.Empty(t, snap.PreviewVenueID)
}

func TestClickConsumption(t *testing.T) {
	c := NewCompositor(nil)

	assert.True(t, c.ClickVenue(&domain.Venue{ID: "v1"}), "venue click is consumed")
	assert.True(t, c.ClickAgent("a1"), "agent click is consumed")
	assert.False(t, c.ClickVenue(nil))
	assert.False(t, c.ClickAgent(""))
}

func TestClickVenueInvokesCallback(t *testing.T) {
	var got *domain.Venue
	c := NewCompositor(func(v *domain.Venue) { got = v })

	v := &domain.Venue{ID: "v1", Name: "The Spot"}
	c.ClickVenue(v)

	require.NotNil(t, got)
	assert.Equal(t, "v1", got.ID)
}

func TestHoverSuppressedOnNarrowViewport(t *testing.T) {
	c := NewCompositor(nil)

	assert.False(t, c.HoverVenue("v1", 767))
	assert.True(t, c.HoverVenue("v1", 768))
	assert.True(t, c.HoverVenue("v1", 1440))
}

func TestHoverSuppressedWhileSelected(t *testing.T) {
	c := NewCompositor(nil)
	c.ClickVenue(&domain.Venue{ID: "v1"})

	assert.False(t, c.HoverVenue("v1", 1024), "no preview for the already-selected venue")
	assert.True(t, c.HoverVenue("v2", 1024))

	c.ClearHover()
	snap := c.Compose(time.Now(), nil, nil, nil, ComposeOptions{Zoom: 14})
	assert.Empty(t, snap.PreviewVenueID)
}

func TestClickVenueDismissesPreview(t *testing.T) {
	c := NewCompositor(nil)

	c.HoverVenue("v2", 1024)
	c.ClickVenue(&domain.Venue{ID: "v1"})

	snap := c.Compose(time.Now(), nil, nil, nil, ComposeOptions{Zoom: 14})
	assert.Empty(t, snap.PreviewVenueID)
	assert.Equal(t, "v1", snap.SelectedVenueID)
}

func TestCompose(t *testing.T) {
	c := NewCompositor(nil)
	now := time.Now()

	venues := []*domain.Venue{
		{ID: "v1", Name: "Cactus Lounge", Category: "bar", Lat: 33.44, Lng: -111.92, Participants: 12},
		{ID: "v2", Name: "Mill Ave Tap", Category: "bar", Lat: 33.42, Lng: -111.94, Participants: 3},
	}
	presence := []*domain.PresenceDot{
		{ID: "u1", Lat: 33.43, Lng: -111.93, LastActive: now.Add(-time.Minute)},
		{ID: "u2", Lat: 33.45, Lng: -111.91, LastActive: now.Add(-time.Hour)},
	}
	c.ClickVenue(venues[0])

	snap := c.Compose(now, venues, nil, presence, ComposeOptions{Zoom: 14, ShowHeatmap: true})

	require.Len(t, snap.Markers, 2)
	assert.True(t, snap.Markers[0].Selected)
	assert.False(t, snap.Markers[1].Selected)
	assert.Greater(t, snap.Markers[0].Size, snap.Markers[1].Size)

	require.Len(t, snap.Presence, 2)
	assert.True(t, snap.Presence[0].Active)
	assert.False(t, snap.Presence[1].Active, "older than the active window")

	require.Len(t, snap.Heat, 2)
	assert.Greater(t, snap.Heat[0].Weight, snap.Heat[1].Weight)
	assert.Equal(t, 0.2, snap.Heat[1].Weight)
}

func TestComposeHeatmapToggle(t *testing.T) {
	c := NewCompositor(nil)
	now := time.Now()
	presence := []*domain.PresenceDot{{ID: "u1", Lat: 33.43, Lng: -111.93, LastActive: now}}

	snap := c.Compose(now, nil, nil, presence, ComposeOptions{Zoom: 14, ShowHeatmap: false})
	assert.Empty(t, snap.Heat)
	assert.Len(t, snap.Presence, 1, "presence dots render even with the heat layer off")
}
