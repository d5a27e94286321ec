package viewport

import (
	"math"
	"sync"
	"time"
)

// LayerHeatmap is the toggleable presence-density layer
const LayerHeatmap = "heatmap"

const defaultFrameInterval = 50 * time.Millisecond

// Camera is the viewport state: center coordinates plus zoom level
type Camera struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

// Keyframe is one step of an animated camera move
type Keyframe struct {
	Camera Camera        `json:"camera"`
	At     time.Duration `json:"atMs"`
}

// FlyToOptions override the controller defaults for a single move
type FlyToOptions struct {
	Zoom     float64
	Duration time.Duration
}

// Controller owns the camera and per-view layer visibility. Selection
// events drive FlyTo one way only; camera moves never feed back into
// selection.
type Controller struct {
	mu     sync.Mutex
	cam    Camera
	layers map[string]bool

	flyZoom     float64
	flyDuration time.Duration
}

func NewController(initial Camera, flyZoom float64, flyDuration time.Duration) *Controller {
	if flyZoom <= 0 {
		flyZoom = 14
	}
	if flyDuration <= 0 {
		flyDuration = 1500 * time.Millisecond
	}
	return &Controller{
		cam:         initial,
		layers:      map[string]bool{LayerHeatmap: true},
		flyZoom:     flyZoom,
		flyDuration: flyDuration,
	}
}

func (c *Controller) Camera() Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam
}

func (c *Controller) SetCamera(cam Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cam = cam
}

// Pan shifts the camera center by the given deltas
func (c *Controller) Pan(dLat, dLng float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cam.Lat += dLat
	c.cam.Lng += dLng
}

// FlyTo animates the camera to center on a target, easing in and out, and
// leaves the camera at the target. The returned keyframes let the render
// surface replay the move; the last frame lands exactly on the target at
// the configured duration.
func (c *Controller) FlyTo(lat, lng float64, opts *FlyToOptions) []Keyframe {
	zoom := c.flyZoom
	duration := c.flyDuration
	if opts != nil {
		if opts.Zoom > 0 {
			zoom = opts.Zoom
		}
		if opts.Duration > 0 {
			duration = opts.Duration
		}
	}

	c.mu.Lock()
	from := c.cam
	target := Camera{Lat: lat, Lng: lng, Zoom: zoom}
	c.cam = target
	c.mu.Unlock()

	steps := int(duration / defaultFrameInterval)
	if steps < 1 {
		steps = 1
	}

	frames := make([]Keyframe, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		frames = append(frames, Keyframe{
			Camera: Camera{
				Lat:  from.Lat + (target.Lat-from.Lat)*t,
				Lng:  from.Lng + (target.Lng-from.Lng)*t,
				Zoom: from.Zoom + (target.Zoom-from.Zoom)*t,
			},
			At: duration * time.Duration(i) / time.Duration(steps),
		})
	}
	return frames
}

// ToggleLayer flips a layer's visibility and returns the new state.
// Purely view state, independent of the simulation.
func (c *Controller) ToggleLayer(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers[name] = !c.layers[name]
	return c.layers[name]
}

func (c *Controller) LayerVisible(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers[name]
}

// VisibleTiles returns the tile IDs a camera should be subscribed to: the
// center tile and its ring of neighbors at the serving zoom level.
func (c *Controller) VisibleTiles(tileZoom int) []string {
	cam := c.Camera()
	neighbors := TileAt(cam.Lat, cam.Lng, tileZoom).Neighbors()
	ids := make([]string, 0, len(neighbors))
	for _, t := range neighbors {
		ids = append(ids, t.ID())
	}
	return ids
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
