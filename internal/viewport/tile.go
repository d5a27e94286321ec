package viewport

import (
	"fmt"
	"math"

	"mapchat/internal/domain"
)

// Tile addresses one Web Mercator (slippy map) tile
type Tile struct {
	Zoom int
	X    int
	Y    int
}

// TileAt returns the tile containing the given coordinates at a zoom level
func TileAt(lat, lng float64, zoom int) Tile {
	n := math.Pow(2, float64(zoom))
	x := int(math.Floor((lng + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	if x < 0 {
		x = 0
	}
	if x > maxTile {
		x = maxTile
	}
	if y < 0 {
		y = 0
	}
	if y > maxTile {
		y = maxTile
	}
	return Tile{Zoom: zoom, X: x, Y: y}
}

// TileIDAt is shorthand for the tile ID containing the given coordinates
func TileIDAt(lat, lng float64, zoom int) string {
	return TileAt(lat, lng, zoom).ID()
}

func (t Tile) ID() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Bounds returns the tile's geographic bounding box
func (t Tile) Bounds() domain.BoundingBox {
	n := math.Pow(2, float64(t.Zoom))
	minLng := float64(t.X)/n*360.0 - 180.0
	maxLng := float64(t.X+1)/n*360.0 - 180.0

	minLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y+1)/n)))
	maxLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(t.Y)/n)))

	return domain.BoundingBox{
		MinLat: minLatRad * 180.0 / math.Pi,
		MaxLat: maxLatRad * 180.0 / math.Pi,
		MinLng: minLng,
		MaxLng: maxLng,
	}
}

// Neighbors returns the tile plus its up-to-8 in-range neighbors
func (t Tile) Neighbors() []Tile {
	maxTile := int(math.Pow(2, float64(t.Zoom))) - 1
	tiles := make([]Tile, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nx, ny := t.X+dx, t.Y+dy
			if nx < 0 || nx > maxTile || ny < 0 || ny > maxTile {
				continue
			}
			tiles = append(tiles, Tile{Zoom: t.Zoom, X: nx, Y: ny})
		}
	}
	return tiles
}

// ParseTileID extracts a tile from its "zoom/x/y" string form
func ParseTileID(tileID string) (Tile, bool) {
	var t Tile
	n, err := fmt.Sscanf(tileID, "%d/%d/%d", &t.Zoom, &t.X, &t.Y)
	if err != nil || n != 3 {
		return Tile{}, false
	}
	return t, true
}

// TilesCovering returns IDs for all tiles intersecting the bounding box
func TilesCovering(bb domain.BoundingBox, zoom int) []string {
	topLeft := TileAt(bb.MaxLat, bb.MinLng, zoom)
	bottomRight := TileAt(bb.MinLat, bb.MaxLng, zoom)

	var ids []string
	for x := topLeft.X; x <= bottomRight.X; x++ {
		for y := topLeft.Y; y <= bottomRight.Y; y++ {
			ids = append(ids, Tile{Zoom: zoom, X: x, Y: y}.ID())
		}
	}
	return ids
}
