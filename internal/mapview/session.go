package mapview

import (
	"context"
	"errors"
	"log"
	"sync"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/transit"
)

// ErrLocationUnavailable is returned by FlyToSelf without a usable position.
var ErrLocationUnavailable = errors.New("location unavailable")

// Session is the handle for one map. Components that observe or command the
// map receive the session explicitly; its registry lives until Close.
type Session struct {
	camera     Camera
	opts       Options
	observer   Observer
	registry   *Registry
	visibility *ZoomController
	sequencer  *Sequencer

	closeOnce sync.Once
	offZoom   func()

	mu          sync.Mutex
	destination *geo.Point
	reroute     func(from, to geo.Point)
}

func NewSession(camera Camera, opts Options, observer Observer) *Session {
	s := &Session{
		camera:     camera,
		opts:       opts,
		observer:   observer,
		registry:   NewRegistry(),
		visibility: NewZoomController(opts.MinZoom, camera.Zoom()),
	}
	s.sequencer = NewSequencer(camera, s.registry, opts, observer)
	s.visibility.OnChange(s.applyVisibility)
	s.offZoom = camera.OnZoomEnd(func() {
		s.visibility.Observe(s.camera.Zoom())
	})
	return s
}

func (s *Session) Visibility() Visibility { return s.visibility.State() }

func (s *Session) Registry() *Registry { return s.registry }

// Mount registers a marker and styles it for the current visibility. It must
// not be called from a visibility listener.
func (s *Session) Mount(key transit.Key, m Marker) {
	s.visibility.Do(func(v Visibility) {
		s.registry.Register(key, m)
		s.style(m, v)
	})
}

func (s *Session) Unmount(key transit.Key) { s.registry.Unregister(key) }

// FocusStation is the command exposed to sibling components such as the
// station search: fly to the station and open its popup.
func (s *Session) FocusStation(ctx context.Context, key transit.Key, target geo.Point) error {
	return s.sequencer.FocusStation(ctx, key, target)
}

// ZoomIn steps the zoom up by one, stopping at the camera's maximum. It
// returns the resulting zoom.
func (s *Session) ZoomIn() float64 { return s.stepZoom(1) }

// ZoomOut steps the zoom down by one, stopping at the camera's minimum.
func (s *Session) ZoomOut() float64 { return s.stepZoom(-1) }

func (s *Session) stepZoom(delta float64) float64 {
	current := s.camera.Zoom()
	lo, hi := s.camera.ZoomRange()
	next := current + delta
	if next > hi {
		next = hi
	}
	if next < lo {
		next = lo
	}
	if next == current {
		return current
	}
	s.camera.SetZoom(next)
	return next
}

// SetDestination remembers the routed destination so FlyToSelf can route to
// it again from the new position. nil forgets it.
func (s *Session) SetDestination(dest *geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dest == nil {
		s.destination = nil
		return
	}
	d := *dest
	s.destination = &d
}

// OnReroute sets the hook FlyToSelf calls with the new position and the saved
// destination.
func (s *Session) OnReroute(fn func(from, to geo.Point)) {
	s.mu.Lock()
	s.reroute = fn
	s.mu.Unlock()
}

// FlyToSelf centres the map on the user's position and, when a destination
// is saved, asks for a new route from there.
func (s *Session) FlyToSelf(position *geo.Point) error {
	if position == nil || !geo.Valid(*position) {
		return ErrLocationUnavailable
	}
	s.camera.FlyTo(*position, s.opts.SelfZoom, s.opts.SelfFlyDuration)

	s.mu.Lock()
	dest, reroute := s.destination, s.reroute
	s.mu.Unlock()
	if dest != nil && reroute != nil {
		log.Printf("rerouting from %.6f,%.6f to %.6f,%.6f", position.Lat, position.Lng, dest.Lat, dest.Lng)
		reroute(*position, *dest)
	}
	return nil
}

// Close detaches from the camera, aborts a pending focus and forgets all
// markers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.offZoom()
		s.sequencer.Cancel()
		s.registry.Clear()
	})
}

func (s *Session) applyVisibility(v Visibility) {
	s.registry.Each(func(_ transit.Key, m Marker) { s.style(m, v) })
	if s.observer != nil {
		s.observer.VisibilityChanged(v)
	}
}

func (s *Session) style(m Marker, v Visibility) {
	if v == Visible {
		m.SetInteractive(true)
		m.SetOpacity(1)
		return
	}
	m.SetInteractive(false)
	m.SetOpacity(s.opts.HiddenOpacity)
}
