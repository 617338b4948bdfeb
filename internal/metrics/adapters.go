package metrics

import (
	"time"

	"subway-congestion-map/internal/mapview"
)

// MapObserver feeds map session events into the collector.
type MapObserver struct{ c *Collector }

func NewMapObserver(c *Collector) *MapObserver { return &MapObserver{c: c} }

func (o *MapObserver) VisibilityChanged(v mapview.Visibility) {
	o.c.VisibilityTransitions.WithLabelValues(v.String()).Inc()
}

func (o *MapObserver) FocusFinished(r mapview.FocusReport) {
	o.c.FocusOutcomes.WithLabelValues(r.Outcome()).Inc()
	o.c.FocusAttempts.Observe(float64(r.Attempts))
	o.c.FocusDuration.Observe(r.Elapsed.Seconds())
}

// The methods below let the collector stand in for the publisher, routing
// and chat metrics interfaces directly.

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) RouteObserve(api string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.RouteRequests.WithLabelValues(api, result).Inc()
	c.RouteDuration.Observe(d.Seconds())
}

func (c *Collector) RouteCacheHit() { c.RouteCacheHits.Inc() }

func (c *Collector) ChatObserve(err error) {
	if err != nil {
		c.ChatRequests.WithLabelValues("error").Inc()
		return
	}
	c.ChatRequests.WithLabelValues("ok").Inc()
}
