package mapview

import "sync"

type Visibility int

const (
	Hidden Visibility = iota
	Visible
)

func (v Visibility) String() string {
	if v == Visible {
		return "visible"
	}
	return "hidden"
}

// ZoomController flips marker visibility when the camera zoom crosses
// minZoom. Transitions are edge-triggered on the previously observed zoom, so
// a continuous gesture that stays on one side of the threshold fires nothing.
type ZoomController struct {
	minZoom float64

	// events serialises Observe so listeners see transitions in arrival order.
	events    sync.Mutex
	mu        sync.Mutex
	prevZoom  float64
	state     Visibility
	listeners []func(Visibility)
}

func NewZoomController(minZoom, currentZoom float64) *ZoomController {
	c := &ZoomController{minZoom: minZoom, prevZoom: currentZoom, state: Hidden}
	if currentZoom >= minZoom {
		c.state = Visible
	}
	return c
}

func (c *ZoomController) MinZoom() float64 { return c.minZoom }

func (c *ZoomController) State() Visibility {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Do runs fn with the current state, serialised with Observe so no transition
// lands while fn runs. fn must not call Observe.
func (c *ZoomController) Do(fn func(Visibility)) {
	c.events.Lock()
	defer c.events.Unlock()
	fn(c.State())
}

// OnChange registers fn to be called after every transition.
func (c *ZoomController) OnChange(fn func(Visibility)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Observe processes one zoom-end event and reports whether it caused a
// transition.
func (c *ZoomController) Observe(zoom float64) (Visibility, bool) {
	c.events.Lock()
	defer c.events.Unlock()

	c.mu.Lock()
	prev := c.prevZoom
	c.prevZoom = zoom
	changed := false
	switch {
	case prev < c.minZoom && zoom >= c.minZoom:
		changed = c.state != Visible
		c.state = Visible
	case prev >= c.minZoom && zoom < c.minZoom:
		changed = c.state != Hidden
		c.state = Hidden
	}
	state := c.state
	var listeners []func(Visibility)
	if changed {
		listeners = append(listeners, c.listeners...)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return state, changed
}
