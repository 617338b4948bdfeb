// Package mapview holds the interaction state of one map: which station
// markers are mounted, whether they are shown at the current zoom, and the
// fly-to sequence that opens a station popup after a camera move.
//
// The camera and markers belong to the view. The package only observes zoom
// transitions and issues commands through the interfaces below.
package mapview

import (
	"time"

	"subway-congestion-map/internal/geo"
)

// Camera is the view's map camera.
type Camera interface {
	Zoom() float64
	// ZoomRange is the lowest and highest zoom the map allows.
	ZoomRange() (lo, hi float64)
	SetZoom(zoom float64)
	FlyTo(center geo.Point, zoom float64, duration time.Duration)
	// OnMoveEnd and OnZoomEnd register a callback for the end of a camera
	// move or zoom animation and return a function that removes it.
	OnMoveEnd(fn func()) (unsubscribe func())
	OnZoomEnd(fn func()) (unsubscribe func())
}

// Marker is a live on-map station marker.
type Marker interface {
	OpenPopup()
	SetInteractive(interactive bool)
	SetOpacity(opacity float64)
}
