package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"subway-congestion-map/internal/api"
	"subway-congestion-map/internal/chat"
	"subway-congestion-map/internal/config"
	"subway-congestion-map/internal/db"
	"subway-congestion-map/internal/mapview"
	"subway-congestion-map/internal/metrics"
	"subway-congestion-map/internal/publisher"
	"subway-congestion-map/internal/routing"
	"subway-congestion-map/internal/schedule"
	"subway-congestion-map/internal/transit"
)

func main() {
	// Load configuration from .env, CONFIG_FILE and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.OpenDataset(ctx, cfg.DatabaseURL, cfg.Dataset)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer sqlDB.Close()

	ds, err := db.LoadDataset(ctx, sqlDB)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	stations := transit.NewCatalog(ds.Stations)
	table := schedule.NewTable(ds.Schedule)
	log.Printf("loaded %d stations and %d schedule rows (%d cells)", stations.Len(), table.Len(), table.Cells())

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.MinZoom, cfg.FocusZoom)
		mcol.DatasetLoaded(stations.Len(), table.Len(), ds.DroppedStations, ds.DroppedCells)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// NATS is optional; without it route summaries and chat replies are not published.
	var events api.EventPublisher
	var focusEvents mapview.Observer
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, publisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		events = pub
		focusEvents = pub.FocusObserver()
	} else {
		log.Printf("NATS_URL not set; chat replies disabled")
	}

	routes := routing.NewClient(routing.Options{
		BaseURL:   cfg.RoutingURL,
		Profile:   cfg.RoutingProfile,
		Timeout:   cfg.RoutingTimeout,
		CacheSize: cfg.RouteCacheSize,
		CacheTTL:  cfg.RouteCacheTTL,
	}, routeMetrics(mcol))

	h := api.NewHandler(api.Deps{
		Stations:    stations,
		Schedule:    table,
		Routes:      routes,
		Chat:        chat.NewClient(cfg.ChatURL, 0),
		Events:      events,
		ChatMetrics: chatMetrics(mcol),
		MapEvents:   mapview.Observers(mapMetrics(mcol), focusEvents),
		RoutingAPI:  routing.API(cfg.RoutingAPI),
		Location:    cfg.Location,
		Map: api.MapConfig{
			MinZoom:        cfg.MinZoom,
			FocusZoom:      cfg.FocusZoom,
			FlyDurationMs:  cfg.FlyDuration.Milliseconds(),
			FocusRetryMs:   cfg.FocusRetry.Milliseconds(),
			FocusTimeoutMs: cfg.FocusTimeout.Milliseconds(),
			NearbyRadiusKm: cfg.NearbyRadiusKm,
		},
	})

	if err := api.NewServer(cfg.HTTPAddr, h, cfg.CORSOrigins).Serve(ctx); err != nil {
		log.Printf("api server error: %v", err)
	}
	log.Println("shutdown complete")
}

// The helpers below keep a nil *Collector from turning into a non-nil interface.

func publisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}

func routeMetrics(c *metrics.Collector) routing.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func chatMetrics(c *metrics.Collector) api.ChatMetrics {
	if c == nil {
		return nil
	}
	return c
}

func mapMetrics(c *metrics.Collector) mapview.Observer {
	if c == nil {
		return nil
	}
	return metrics.NewMapObserver(c)
}
