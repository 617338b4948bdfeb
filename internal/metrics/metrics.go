package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	StationsLoaded     prometheus.Gauge
	ScheduleRowsLoaded prometheus.Gauge
	DroppedRows        *prometheus.CounterVec // kind label: station|schedule_cell

	FocusOutcomes         *prometheus.CounterVec // outcome label: opened|timeout|superseded|cancelled
	FocusAttempts         prometheus.Histogram
	FocusDuration         prometheus.Histogram
	VisibilityTransitions *prometheus.CounterVec // state label: hidden|visible

	RouteRequests  *prometheus.CounterVec // api, result labels
	RouteDuration  prometheus.Histogram
	RouteCacheHits prometheus.Counter
	ChatRequests   *prometheus.CounterVec // result label: ok|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	MinZoom   prometheus.Gauge
	FocusZoom prometheus.Gauge
}

func NewCollector(minZoom, focusZoom float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		StationsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "congestion_stations_loaded",
			Help: "Number of stations in the loaded dataset.",
		}),
		ScheduleRowsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "congestion_schedule_rows_loaded",
			Help: "Number of schedule rows in the loaded dataset.",
		}),
		DroppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congestion_dropped_rows_total",
			Help: "Malformed source rows skipped while loading.",
		}, []string{"kind"}),
		FocusOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congestion_focus_requests_total",
			Help: "Fly-to-and-open requests by outcome.",
		}, []string{"outcome"}),
		FocusAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "congestion_focus_lookup_attempts",
			Help:    "Marker lookups needed per focus request.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		FocusDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "congestion_focus_duration_seconds",
			Help:    "Time from focus request to popup open or failure.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		VisibilityTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congestion_marker_visibility_transitions_total",
			Help: "Zoom threshold crossings by resulting state.",
		}, []string{"state"}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congestion_route_requests_total",
			Help: "Walking route lookups by routing API and result.",
		}, []string{"api", "result"}),
		RouteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "congestion_route_duration_seconds",
			Help:    "Latency of routing service calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RouteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "congestion_route_cache_hits_total",
			Help: "Route lookups served from cache.",
		}),
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congestion_chat_requests_total",
			Help: "Chat enrichment calls by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "congestion_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "congestion_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "congestion_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "congestion_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		MinZoom: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "congestion_min_zoom",
			Help: "Zoom level below which station markers are hidden.",
		}),
		FocusZoom: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "congestion_focus_zoom",
			Help: "Zoom level used when flying to a station.",
		}),
	}

	// Register
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.StationsLoaded, c.ScheduleRowsLoaded, c.DroppedRows,
		c.FocusOutcomes, c.FocusAttempts, c.FocusDuration, c.VisibilityTransitions,
		c.RouteRequests, c.RouteDuration, c.RouteCacheHits, c.ChatRequests,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.MinZoom, c.FocusZoom,
	)

	c.MinZoom.Set(minZoom)
	c.FocusZoom.Set(focusZoom)

	return c
}

// DatasetLoaded records the size of a freshly loaded dataset.
func (c *Collector) DatasetLoaded(stations, scheduleRows, droppedStations, droppedCells int) {
	c.StationsLoaded.Set(float64(stations))
	c.ScheduleRowsLoaded.Set(float64(scheduleRows))
	c.DroppedRows.WithLabelValues("station").Add(float64(droppedStations))
	c.DroppedRows.WithLabelValues("schedule_cell").Add(float64(droppedCells))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
