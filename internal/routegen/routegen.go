package routegen

import (
	"math"

	"mapchat/internal/domain"
	"mapchat/internal/geo"
)

// Waypoint is one interpolated point along a route
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Route is a closed-loop polyline anchored at a venue: outbound leg to a
// destination several miles out, then the mirrored return. The first and
// last waypoints always equal the venue's coordinates. Routes are never
// mutated in place; a venue-set change rebuilds them wholesale.
type Route struct {
	VenueID   string     `json:"venueId"`
	Origin    Waypoint   `json:"origin"`
	Waypoints []Waypoint `json:"waypoints"`
}

// Len returns the waypoint count
func (r *Route) Len() int { return len(r.Waypoints) }

// Midpoint is the index where an outbound agent becomes inbound
func (r *Route) Midpoint() int { return len(r.Waypoints) / 2 }

// Config holds the route-shape tuning constants. The bearing step and leg
// distance are product-tuning values, not geometry law, so they stay
// configurable.
type Config struct {
	BearingStepDeg float64
	DistanceMiles  float64
	LegPoints      int
	CurveOffsetDeg float64
}

// DefaultConfig mirrors the shipped tuning: routes fan out 75 degrees
// apart, reach 5 miles, and use 15 points per leg.
func DefaultConfig() Config {
	return Config{
		BearingStepDeg: 75,
		DistanceMiles:  5,
		LegPoints:      15,
		CurveOffsetDeg: 0.005,
	}
}

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if cfg.LegPoints < 2 {
		cfg.LegPoints = 2
	}
	return &Builder{cfg: cfg}
}

// BuildRoutes produces one closed-loop route per venue with valid
// coordinates. The bearing derives from the venue's position in the input
// list, so the same list in the same order yields bit-identical routes.
func (b *Builder) BuildRoutes(venues []*domain.Venue) []*Route {
	routes := make([]*Route, 0, len(venues))
	for i, v := range venues {
		if !v.HasCoordinates() {
			continue
		}
		bearing := math.Mod(float64(i)*b.cfg.BearingStepDeg, 360)
		routes = append(routes, b.buildRoute(v, bearing))
	}
	return routes
}

func (b *Builder) buildRoute(v *domain.Venue, bearingDeg float64) *Route {
	destLat, destLng := geo.DestinationPoint(v.Lat, v.Lng, bearingDeg, b.cfg.DistanceMiles)

	n := b.cfg.LegPoints
	outbound := make([]Waypoint, n)

	dLat := destLat - v.Lat
	dLng := destLng - v.Lng
	norm := math.Hypot(dLat, dLng)
	perpLat, perpLng := 0.0, 0.0
	if norm > 0 {
		perpLat = -dLng / norm
		perpLng = dLat / norm
	}

	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		// Sinusoidal lateral offset, zero at both endpoints and peaking at
		// the leg midpoint, so the path reads as a curved road.
		off := math.Sin(math.Pi*t) * b.cfg.CurveOffsetDeg
		outbound[i] = Waypoint{
			Lat: geo.Lerp(v.Lat, destLat, t) + perpLat*off,
			Lng: geo.Lerp(v.Lng, destLng, t) + perpLng*off,
		}
	}

	// Mirror the leg back to the origin, dropping the shared destination
	// point. Total length 2n-1; index n-1 is the loop's far end.
	waypoints := make([]Waypoint, 0, 2*n-1)
	waypoints = append(waypoints, outbound...)
	for i := n - 2; i >= 0; i-- {
		waypoints = append(waypoints, outbound[i])
	}

	return &Route{
		VenueID:   v.ID,
		Origin:    Waypoint{Lat: v.Lat, Lng: v.Lng},
		Waypoints: waypoints,
	}
}
