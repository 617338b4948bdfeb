package mapview

import (
	"sync"
	"time"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/transit"
)

type flight struct {
	center   geo.Point
	zoom     float64
	duration time.Duration
}

// fakeCamera fires move/zoom end callbacks synchronously when settle is set,
// the way a map without animation would.
type fakeCamera struct {
	mu       sync.Mutex
	zoom     float64
	minZoom  float64
	maxZoom  float64
	settle   bool
	nextID   int
	moveEnd  map[int]func()
	zoomEnd  map[int]func()
	setZooms []float64
	flights  []flight
}

func newFakeCamera(zoom float64, settle bool) *fakeCamera {
	return &fakeCamera{
		zoom:    zoom,
		minZoom: 0,
		maxZoom: 19,
		settle:  settle,
		moveEnd: make(map[int]func()),
		zoomEnd: make(map[int]func()),
	}
}

func (c *fakeCamera) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

func (c *fakeCamera) ZoomRange() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minZoom, c.maxZoom
}

func (c *fakeCamera) SetZoom(zoom float64) {
	c.mu.Lock()
	c.zoom = zoom
	c.setZooms = append(c.setZooms, zoom)
	c.mu.Unlock()
	if c.settle {
		c.fire(c.zoomEnd)
	}
}

func (c *fakeCamera) FlyTo(center geo.Point, zoom float64, duration time.Duration) {
	c.mu.Lock()
	c.zoom = zoom
	c.flights = append(c.flights, flight{center: center, zoom: zoom, duration: duration})
	c.mu.Unlock()
	if c.settle {
		c.fire(c.moveEnd)
		c.fire(c.zoomEnd)
	}
}

// ZoomTo simulates a user zoom gesture ending at zoom.
func (c *fakeCamera) ZoomTo(zoom float64) {
	c.mu.Lock()
	c.zoom = zoom
	c.mu.Unlock()
	c.fire(c.zoomEnd)
}

func (c *fakeCamera) OnMoveEnd(fn func()) func() { return c.subscribe(c.moveEnd, fn) }
func (c *fakeCamera) OnZoomEnd(fn func()) func() { return c.subscribe(c.zoomEnd, fn) }

func (c *fakeCamera) subscribe(set map[int]func(), fn func()) func() {
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

func (c *fakeCamera) fire(set map[int]func()) {
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

func (c *fakeCamera) subscribers() (move, zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.moveEnd), len(c.zoomEnd)
}

func (c *fakeCamera) flown() []flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]flight(nil), c.flights...)
}

type fakeMarker struct {
	mu          sync.Mutex
	opened      int
	interactive bool
	opacity     float64
}

func (m *fakeMarker) OpenPopup() {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
}

func (m *fakeMarker) SetInteractive(v bool) {
	m.mu.Lock()
	m.interactive = v
	m.mu.Unlock()
}

func (m *fakeMarker) SetOpacity(o float64) {
	m.mu.Lock()
	m.opacity = o
	m.mu.Unlock()
}

func (m *fakeMarker) state() (opened int, interactive bool, opacity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.interactive, m.opacity
}

// hookedLookup calls before(n) ahead of the n-th lookup.
type hookedLookup struct {
	inner  Lookup
	mu     sync.Mutex
	calls  int
	before func(n int)
}

func (l *hookedLookup) Get(key transit.Key) (Marker, bool) {
	l.mu.Lock()
	l.calls++
	n := l.calls
	l.mu.Unlock()
	if l.before != nil {
		l.before(n)
	}
	return l.inner.Get(key)
}

func (l *hookedLookup) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []Visibility
	reports     []FocusReport
}

func (o *recordingObserver) VisibilityChanged(v Visibility) {
	o.mu.Lock()
	o.transitions = append(o.transitions, v)
	o.mu.Unlock()
}

func (o *recordingObserver) FocusFinished(r FocusReport) {
	o.mu.Lock()
	o.reports = append(o.reports, r)
	o.mu.Unlock()
}

func (o *recordingObserver) lastReport() FocusReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.reports) == 0 {
		return FocusReport{}
	}
	return o.reports[len(o.reports)-1]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FlyDuration = 10 * time.Millisecond
	opts.RetryInterval = 5 * time.Millisecond
	opts.FocusTimeout = 2 * time.Second
	return opts
}
