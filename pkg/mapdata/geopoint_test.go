package mapdata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoPointLatLng(t *testing.T) {
	var p GeoPoint
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":[-111.9261,33.4484]}`), &p))

	lat, lng, ok := p.LatLng()
	require.True(t, ok)
	assert.Equal(t, 33.4484, lat)
	assert.Equal(t, -111.9261, lng)
}

func TestGeoPointMalformed(t *testing.T) {
	var nilPoint *GeoPoint
	_, _, ok := nilPoint.LatLng()
	assert.False(t, ok)

	empty := &GeoPoint{Type: "Point"}
	_, _, ok = empty.LatLng()
	assert.False(t, ok)
}

func TestFromLatLng(t *testing.T) {
	p := FromLatLng(33.4484, -111.9261)

	assert.Equal(t, "Point", p.Type)
	require.Len(t, p.Coordinates, 2)
	assert.Equal(t, -111.9261, p.Coordinates[0], "GeoJSON order is lng first")
	assert.Equal(t, 33.4484, p.Coordinates[1])

	lat, lng, ok := p.LatLng()
	require.True(t, ok)
	assert.Equal(t, 33.4484, lat)
	assert.Equal(t, -111.9261, lng)
}
