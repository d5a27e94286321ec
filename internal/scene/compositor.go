package scene

import (
	"math"
	"sync"
	"time"

	"mapchat/internal/domain"
)

const (
	minMarkerScale = 0.6
	maxMarkerScale = 1.2
	zoomDivisor    = 12.0

	baseMarkerSize = 30.0
	sizePerLog     = 5.0
	maxMarkerSize  = 50.0

	heatFloor  = 0.2
	heatWindow = time.Hour

	// ActiveWindow is how recently a presence dot must have been seen to
	// count as active.
	ActiveWindow = 5 * time.Minute

	// HoverMinWidth suppresses hover previews on narrow (touch) viewports.
	HoverMinWidth = 768
)

// MarkerScale maps the camera zoom to a marker scale factor, always within
// [0.6, 1.2].
func MarkerScale(zoom float64) float64 {
	s := zoom / zoomDivisor
	if s < minMarkerScale {
		return minMarkerScale
	}
	if s > maxMarkerScale {
		return maxMarkerScale
	}
	return s
}

// MarkerSize computes the rendered pixel size of a venue marker: grows
// with the log of the participant count, capped, then scaled by zoom.
func MarkerSize(participants int, zoom float64) float64 {
	if participants < 1 {
		participants = 1
	}
	size := baseMarkerSize + math.Log(float64(participants))*sizePerLog
	if size > maxMarkerSize {
		size = maxMarkerSize
	}
	return size * MarkerScale(zoom)
}

// HeatWeight computes a presence dot's heatmap contribution: decays
// linearly to a 0.2 floor over one hour of inactivity, never reaching zero.
func HeatWeight(now, lastActive time.Time) float64 {
	elapsed := now.Sub(lastActive)
	if elapsed < 0 {
		elapsed = 0
	}
	w := 1.0 - elapsed.Seconds()/heatWindow.Seconds()
	if w < heatFloor {
		return heatFloor
	}
	return w
}

// Marker is a renderable venue marker
type Marker struct {
	VenueID      string  `json:"venueId"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Size         float64 `json:"size"`
	Participants int     `json:"participants"`
	Rating       float64 `json:"rating"`
	PriceTier    int     `json:"priceTier"`
	Selected     bool    `json:"selected,omitempty"`
}

// PresenceMarker is a renderable user dot
type PresenceMarker struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Active bool    `json:"active"`
}

// HeatPoint is one weighted contribution to the density layer
type HeatPoint struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

// Snapshot is the composed scene handed to the render surface
type Snapshot struct {
	Markers         []Marker              `json:"markers"`
	Agents          []*domain.AgentMarker `json:"agents"`
	Presence        []PresenceMarker      `json:"presence"`
	Heat            []HeatPoint           `json:"heat,omitempty"`
	SelectedVenueID string                `json:"selectedVenueId,omitempty"`
	SelectedAgentID string                `json:"selectedAgentId,omitempty"`
	PreviewVenueID  string                `json:"previewVenueId,omitempty"`
	GeneratedAt     time.Time             `json:"generatedAt"`
}

// ComposeOptions parameterize one composition pass
type ComposeOptions struct {
	Zoom        float64
	ShowHeatmap bool
}

// Compositor merges venues, agents and presence dots into renderable
// snapshots and owns the selection/popup state machine: at most one
// selected venue or one selected agent, never both, plus at most one
// hover preview.
type Compositor struct {
	mu      sync.Mutex
	venue   string
	agent   string
	preview string

	onSelect func(*domain.Venue)
}

// NewCompositor creates a compositor. onSelect, if non-nil, is invoked
// with the venue whenever a venue marker is clicked, letting the
// surrounding application navigate to a detail view.
func NewCompositor(onSelect func(*domain.Venue)) *Compositor {
	return &Compositor{onSelect: onSelect}
}

// ClickVenue selects a venue marker, replacing any agent selection and
// dismissing the hover preview. Returns true: the click is consumed and
// must not also reach the background handler.
func (c *Compositor) ClickVenue(v *domain.Venue) bool {
	if v == nil {
		return false
	}
	c.mu.Lock()
	c.venue = v.ID
	c.agent = ""
	c.preview = ""
	cb := c.onSelect
	c.mu.Unlock()

	if cb != nil {
		cb(v)
	}
	return true
}

// ClickAgent selects an agent marker, replacing any venue selection.
// Returns true: the click is consumed.
func (c *Compositor) ClickAgent(agentID string) bool {
	if agentID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agent = agentID
	c.venue = ""
	c.preview = ""
	return true
}

// ClickBackground clears all selection and popup state
func (c *Compositor) ClickBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.venue = ""
	c.agent = ""
	c.preview = ""
}

// HoverVenue opens the desktop-only preview popover. Suppressed on narrow
// viewports and while that venue is already selected. Returns whether the
// preview is showing.
func (c *Compositor) HoverVenue(venueID string, viewportWidth int) bool {
	if venueID == "" || viewportWidth < HoverMinWidth {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.venue == venueID {
		return false
	}
	c.preview = venueID
	return true
}

// ClearHover dismisses the preview popover
func (c *Compositor) ClearHover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preview = ""
}

// Selection returns the current selected venue and agent IDs. At most one
// of the two is non-empty.
func (c *Compositor) Selection() (venueID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.venue, c.agent
}

// Compose builds a renderable snapshot from the current map contents
func (c *Compositor) Compose(now time.Time, venues []*domain.Venue, agents []*domain.AgentMarker, presence []*domain.PresenceDot, opts ComposeOptions) Snapshot {
	c.mu.Lock()
	selVenue, selAgent, preview := c.venue, c.agent, c.preview
	c.mu.Unlock()

	snap := Snapshot{
		Markers:         make([]Marker, 0, len(venues)),
		Agents:          agents,
		Presence:        make([]PresenceMarker, 0, len(presence)),
		SelectedVenueID: selVenue,
		SelectedAgentID: selAgent,
		PreviewVenueID:  preview,
		GeneratedAt:     now,
	}

	for _, v := range venues {
		snap.Markers = append(snap.Markers, Marker{
			VenueID:      v.ID,
			Name:         v.Name,
			Category:     v.Category,
			Lat:          v.Lat,
			Lng:          v.Lng,
			Size:         MarkerSize(v.Participants, opts.Zoom),
			Participants: v.Participants,
			Rating:       v.Rating,
			PriceTier:    v.PriceTier,
			Selected:     v.ID == selVenue,
		})
	}

	for _, d := range presence {
		snap.Presence = append(snap.Presence, PresenceMarker{
			ID:     d.ID,
			Lat:    d.Lat,
			Lng:    d.Lng,
			Active: d.ActiveAt(now, ActiveWindow),
		})
		if opts.ShowHeatmap {
			snap.Heat = append(snap.Heat, HeatPoint{
				Lat:    d.Lat,
				Lng:    d.Lng,
				Weight: HeatWeight(now, d.LastActive),
			})
		}
	}

	return snap
}
