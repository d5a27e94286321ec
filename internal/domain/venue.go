package domain

import "time"

// Popularity describes how busy a venue currently is
type Popularity struct {
	Level    string `json:"level"`
	Trend    string `json:"trend"`
	WaitTime string `json:"waitTime"`
}

// Venue represents a point of interest shown on the map
type Venue struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	Participants int        `json:"participants"`
	Rating       float64    `json:"rating"`
	PriceTier    int        `json:"priceTier"`
	Popularity   Popularity `json:"popularity"`
	Photos       []string   `json:"photos,omitempty"`
	TileID       string     `json:"tileId"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasCoordinates reports whether the venue carries a usable position.
// Rows without coordinates are skipped when building routes.
func (v *Venue) HasCoordinates() bool {
	return v != nil && (v.Lat != 0 || v.Lng != 0)
}

// PresenceDot is a user-location dot consumed read-only for heatmap rendering
type PresenceDot struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	LastActive time.Time `json:"lastActive"`
	TileID     string    `json:"tileId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ActiveAt reports whether the dot counts as active: seen within the window
func (d *PresenceDot) ActiveAt(now time.Time, window time.Duration) bool {
	return now.Sub(d.LastActive) < window
}

// AgentMarker is the renderable view of a simulated driver on a route
type AgentMarker struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	VenueID string  `json:"venueId"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	TileID  string  `json:"tileId"`
}

// EntityKind distinguishes the entity classes a scene delta can carry
type EntityKind string

const (
	KindVenue    EntityKind = "venue"
	KindAgent    EntityKind = "agent"
	KindPresence EntityKind = "presence"
)

// DeltaType indicates whether an entity was updated or removed
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	DeltaRemove DeltaType = "remove"
)

// SceneDelta represents a change in renderable map state, tagged with the
// tile it belongs to so the hub can fan it out to viewport subscribers only.
type SceneDelta struct {
	Type     DeltaType    `json:"type"`
	Kind     EntityKind   `json:"kind"`
	Venue    *Venue       `json:"venue,omitempty"`
	Agent    *AgentMarker `json:"agent,omitempty"`
	Presence *PresenceDot `json:"presence,omitempty"`
	Key      string       `json:"key,omitempty"`
	TileID   string       `json:"tileId"`
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lng float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lng >= bb.MinLng && lng <= bb.MaxLng
}
