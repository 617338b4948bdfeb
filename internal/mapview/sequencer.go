package mapview

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/transit"
)

var (
	// ErrFocusTimeout is returned when the target marker never mounted within
	// Options.FocusTimeout.
	ErrFocusTimeout = errors.New("could not focus station")
	// ErrFocusSuperseded is returned by a focus request cancelled by a newer one.
	ErrFocusSuperseded = errors.New("focus superseded by a newer request")
)

type Options struct {
	MinZoom       float64
	FocusZoom     float64
	FlyDuration   time.Duration
	HiddenOpacity float64

	// SelfZoom and SelfFlyDuration apply when flying to the user's position.
	SelfZoom        float64
	SelfFlyDuration time.Duration

	RetryInterval    time.Duration
	RetryBackoff     float64 // multiplier per miss; <= 1 keeps the interval fixed
	MaxRetryInterval time.Duration
	FocusTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinZoom:          14,
		FocusZoom:        15,
		FlyDuration:      1200 * time.Millisecond,
		SelfZoom:         15.5,
		SelfFlyDuration:  1500 * time.Millisecond,
		RetryInterval:    200 * time.Millisecond,
		RetryBackoff:     1,
		MaxRetryInterval: time.Second,
		FocusTimeout:     5 * time.Second,
	}
}

// FocusReport describes how one focus request ended.
type FocusReport struct {
	RequestID string
	Key       transit.Key
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// Outcome is a short label for the report, suitable for metrics.
func (r FocusReport) Outcome() string {
	switch {
	case r.Err == nil:
		return "opened"
	case errors.Is(r.Err, ErrFocusTimeout):
		return "timeout"
	case errors.Is(r.Err, ErrFocusSuperseded):
		return "superseded"
	default:
		return "cancelled"
	}
}

// Observer receives session events. Implementations must not block.
type Observer interface {
	VisibilityChanged(v Visibility)
	FocusFinished(r FocusReport)
}

// Sequencer moves the camera to a station and opens its popup once the
// marker is mounted. Only the latest request is live: starting a new one
// cancels the one in flight.
type Sequencer struct {
	camera   Camera
	markers  Lookup
	opts     Options
	observer Observer

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
}

func NewSequencer(camera Camera, markers Lookup, opts Options, observer Observer) *Sequencer {
	return &Sequencer{camera: camera, markers: markers, opts: opts, observer: observer}
}

// FocusStation flies to target and opens the popup of the marker registered
// under key. It blocks until the popup is open, the request times out, a newer
// request supersedes it, or ctx is done.
func (s *Sequencer) FocusStation(ctx context.Context, key transit.Key, target geo.Point) error {
	ctx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(ErrFocusSuperseded)
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel(nil)
	}()

	report := FocusReport{RequestID: uuid.NewString(), Key: key}
	start := time.Now()
	report.Attempts, report.Err = s.run(ctx, gen, key, target)
	report.Elapsed = time.Since(start)

	if report.Err != nil {
		log.Printf("focus %s key=%s failed after %d attempts: %v", report.RequestID, key, report.Attempts, report.Err)
	} else {
		log.Printf("focus %s key=%s opened after %d attempts (%s)", report.RequestID, key, report.Attempts, report.Elapsed.Round(time.Millisecond))
	}
	if s.observer != nil {
		s.observer.FocusFinished(report)
	}
	return report.Err
}

// Cancel aborts the request in flight, if any.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(context.Canceled)
	}
	s.mu.Unlock()
}

func (s *Sequencer) run(ctx context.Context, gen uint64, key transit.Key, target geo.Point) (int, error) {
	if s.camera.Zoom() < s.opts.MinZoom {
		s.camera.SetZoom(s.opts.MinZoom)
	}
	zoom := s.opts.FocusZoom
	if zoom < s.opts.MinZoom {
		zoom = s.opts.MinZoom
	}

	settled := make(chan struct{}, 1)
	notify := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}
	offMove := s.camera.OnMoveEnd(notify)
	offZoom := s.camera.OnZoomEnd(notify)
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			offMove()
			offZoom()
		})
	}
	defer unsubscribe()

	deadline := time.NewTimer(s.opts.FocusTimeout)
	defer deadline.Stop()

	s.camera.FlyTo(target, zoom, s.opts.FlyDuration)

	// Some cameras skip the end events when already at the target, so start
	// polling anyway once the animation should be over.
	fallback := time.NewTimer(s.opts.FlyDuration + s.opts.RetryInterval)
	select {
	case <-ctx.Done():
		fallback.Stop()
		return 0, context.Cause(ctx)
	case <-deadline.C:
		fallback.Stop()
		return 0, ErrFocusTimeout
	case <-settled:
		fallback.Stop()
	case <-fallback.C:
	}

	interval := s.opts.RetryInterval
	for attempts := 1; ; attempts++ {
		if m, ok := s.markers.Get(key); ok {
			unsubscribe()
			return attempts, s.open(ctx, gen, m)
		}

		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return attempts, context.Cause(ctx)
		case <-deadline.C:
			wait.Stop()
			return attempts, ErrFocusTimeout
		case <-wait.C:
		}
		interval = s.nextInterval(interval)
	}
}

// open shows the popup unless the request was cancelled or replaced. A ready
// timer can win the select over ctx.Done, so the check happens here, under the
// same lock that FocusStation and Cancel take to retire a request.
func (s *Sequencer) open(ctx context.Context, gen uint64, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if s.gen != gen {
		return ErrFocusSuperseded
	}
	m.OpenPopup()
	return nil
}

func (s *Sequencer) nextInterval(d time.Duration) time.Duration {
	if s.opts.RetryBackoff <= 1 {
		return d
	}
	next := time.Duration(float64(d) * s.opts.RetryBackoff)
	if s.opts.MaxRetryInterval > 0 && next > s.opts.MaxRetryInterval {
		next = s.opts.MaxRetryInterval
	}
	return next
}
