package mapdata

import "github.com/paulmach/orb"

// GeoPoint is the GeoJSON representation PostgREST returns for PostGIS
// POINT columns. Coordinates are [lng, lat] per GeoJSON.
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// LatLng extracts latitude and longitude from the point. ok is false when
// the column was null or malformed.
func (g *GeoPoint) LatLng() (lat, lng float64, ok bool) {
	if g == nil || len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	p := orb.Point{g.Coordinates[0], g.Coordinates[1]}
	return p.Lat(), p.Lon(), true
}

// FromLatLng builds the GeoJSON point for writing back to the store
func FromLatLng(lat, lng float64) *GeoPoint {
	p := orb.Point{lng, lat}
	return &GeoPoint{
		Type:        "Point",
		Coordinates: []float64{p.Lon(), p.Lat()},
	}
}
