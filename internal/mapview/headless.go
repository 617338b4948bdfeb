package mapview

import (
	"log"
	"sync"
	"time"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/transit"
)

// HeadlessCamera is a Camera without a screen. FlyTo completes after the
// requested duration and then fires the move and zoom end callbacks; a newer
// FlyTo interrupts the pending one.
type HeadlessCamera struct {
	mu       sync.Mutex
	center   geo.Point
	zoom     float64
	minZoom  float64
	maxZoom  float64
	nextID   int
	moveEnd  map[int]func()
	zoomEnd  map[int]func()
	inFlight *time.Timer
}

func NewHeadlessCamera(center geo.Point, zoom, minZoom, maxZoom float64) *HeadlessCamera {
	c := &HeadlessCamera{
		center:  center,
		minZoom: minZoom,
		maxZoom: maxZoom,
		moveEnd: make(map[int]func()),
		zoomEnd: make(map[int]func()),
	}
	c.zoom = c.clamp(zoom)
	return c
}

func (c *HeadlessCamera) clamp(z float64) float64 {
	if z < c.minZoom {
		return c.minZoom
	}
	if z > c.maxZoom {
		return c.maxZoom
	}
	return z
}

func (c *HeadlessCamera) Center() geo.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.center
}

func (c *HeadlessCamera) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

func (c *HeadlessCamera) ZoomRange() (float64, float64) {
	return c.minZoom, c.maxZoom
}

func (c *HeadlessCamera) SetZoom(zoom float64) {
	c.mu.Lock()
	c.zoom = c.clamp(zoom)
	c.mu.Unlock()
	c.fire(c.zoomEnd)
}

func (c *HeadlessCamera) FlyTo(center geo.Point, zoom float64, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight != nil {
		c.inFlight.Stop()
	}
	zoom = c.clamp(zoom)
	var t *time.Timer
	t = time.AfterFunc(duration, func() {
		c.mu.Lock()
		if c.inFlight != t {
			c.mu.Unlock()
			return
		}
		c.inFlight = nil
		c.center = center
		c.zoom = zoom
		c.mu.Unlock()
		c.fire(c.moveEnd)
		c.fire(c.zoomEnd)
	})
	c.inFlight = t
}

// Stop abandons a pending FlyTo without firing its callbacks.
func (c *HeadlessCamera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight != nil {
		c.inFlight.Stop()
		c.inFlight = nil
	}
}

func (c *HeadlessCamera) OnMoveEnd(fn func()) func() { return c.subscribe(c.moveEnd, fn) }
func (c *HeadlessCamera) OnZoomEnd(fn func()) func() { return c.subscribe(c.zoomEnd, fn) }

func (c *HeadlessCamera) subscribe(set map[int]func(), fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	set[id] = fn
	return func() {
		c.mu.Lock()
		delete(set, id)
		c.mu.Unlock()
	}
}

func (c *HeadlessCamera) fire(set map[int]func()) {
	c.mu.Lock()
	fns := make([]func(), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// HeadlessMarker records the styling it receives and logs popups.
type HeadlessMarker struct {
	Station transit.Station

	mu          sync.Mutex
	interactive bool
	opacity     float64
	popups      int
}

func (m *HeadlessMarker) OpenPopup() {
	m.mu.Lock()
	m.popups++
	m.mu.Unlock()
	log.Printf("popup %s (%s)", m.Station.Name, m.Station.Line)
}

func (m *HeadlessMarker) SetInteractive(interactive bool) {
	m.mu.Lock()
	m.interactive = interactive
	m.mu.Unlock()
}

func (m *HeadlessMarker) SetOpacity(opacity float64) {
	m.mu.Lock()
	m.opacity = opacity
	m.mu.Unlock()
}

func (m *HeadlessMarker) Popups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popups
}

func (m *HeadlessMarker) Interactive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interactive
}

// Viewport keeps the session's mounted markers in step with what a view would
// render: the stations within radiusKm of the camera centre.
type Viewport struct {
	session  *Session
	stations []transit.Station
	radiusKm float64

	mu      sync.Mutex
	mounted map[transit.Key]*HeadlessMarker
}

func NewViewport(session *Session, stations []transit.Station, radiusKm float64) *Viewport {
	return &Viewport{
		session:  session,
		stations: stations,
		radiusKm: radiusKm,
		mounted:  make(map[transit.Key]*HeadlessMarker),
	}
}

// Sync mounts the stations around center and unmounts the rest. It returns
// how many markers were mounted and unmounted.
func (v *Viewport) Sync(center geo.Point) (added, removed int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	want := make(map[transit.Key]transit.Station)
	for _, s := range geo.Nearby(&center, v.stations, v.radiusKm) {
		if _, dup := want[s.Key()]; !dup {
			want[s.Key()] = s
		}
	}
	for key := range v.mounted {
		if _, ok := want[key]; !ok {
			v.session.Unmount(key)
			delete(v.mounted, key)
			removed++
		}
	}
	for key, s := range want {
		if _, ok := v.mounted[key]; ok {
			continue
		}
		m := &HeadlessMarker{Station: s}
		v.session.Mount(key, m)
		v.mounted[key] = m
		added++
	}
	return added, removed
}

// Marker returns the mounted marker for key, if any.
func (v *Viewport) Marker(key transit.Key) (*HeadlessMarker, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.mounted[key]
	return m, ok
}
