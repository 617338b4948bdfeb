// Command map-simulator drives a headless map session against the loaded
// dataset: it searches and focuses stations, steps the zoom and recentres on
// a wandering user position, reporting every outcome through the same
// metrics and NATS subjects the map clients use.
package main

import (
	"context"
	"log"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"subway-congestion-map/internal/config"
	"subway-congestion-map/internal/db"
	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/mapview"
	"subway-congestion-map/internal/metrics"
	"subway-congestion-map/internal/publisher"
	"subway-congestion-map/internal/routing"
	"subway-congestion-map/internal/transit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.OpenDataset(ctx, cfg.DatabaseURL, cfg.Dataset)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	ds, err := db.LoadDataset(ctx, sqlDB)
	sqlDB.Close()
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	stations := transit.NewCatalog(ds.Stations)
	if stations.Len() == 0 {
		log.Fatalf("dataset has no stations")
	}

	var (
		observers  []mapview.Observer
		pubMetrics publisher.PublisherMetrics
		rtMetrics  routing.Metrics
	)
	if cfg.MetricsAddr != "" {
		mcol := metrics.NewCollector(cfg.MinZoom, cfg.FocusZoom)
		mcol.DatasetLoaded(stations.Len(), len(ds.Schedule), ds.DroppedStations, ds.DroppedCells)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		observers = append(observers, metrics.NewMapObserver(mcol))
		pubMetrics, rtMetrics = mcol, mcol
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, pubMetrics)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		observers = append(observers, pub.FocusObserver())
	}

	opts := mapview.DefaultOptions()
	opts.MinZoom = cfg.MinZoom
	opts.FocusZoom = cfg.FocusZoom
	opts.FlyDuration = cfg.FlyDuration
	opts.RetryInterval = cfg.FocusRetry
	opts.FocusTimeout = cfg.FocusTimeout

	home := centroid(stations.All())
	cam := mapview.NewHeadlessCamera(home, cfg.MinZoom-1, 7, 18)
	defer cam.Stop()
	session := mapview.NewSession(cam, opts, mapview.Observers(observers...))
	defer session.Close()

	vp := mapview.NewViewport(session, stations.All(), cfg.SimViewRadiusKm)
	offMove := cam.OnMoveEnd(func() {
		center := cam.Center()
		time.AfterFunc(cfg.SimMountDelay, func() {
			added, removed := vp.Sync(center)
			log.Printf("viewport %.5f,%.5f: +%d -%d markers", center.Lat, center.Lng, added, removed)
		})
	})
	defer offMove()

	routes := routing.NewClient(routing.Options{
		BaseURL:   cfg.RoutingURL,
		Profile:   cfg.RoutingProfile,
		Timeout:   cfg.RoutingTimeout,
		CacheSize: cfg.RouteCacheSize,
		CacheTTL:  cfg.RouteCacheTTL,
	}, rtMetrics)
	api := routing.API(cfg.RoutingAPI)
	if cfg.RoutingURL != "" {
		session.OnReroute(func(from, to geo.Point) {
			r, err := routes.Route(ctx, api, from, to)
			if err != nil {
				log.Printf("reroute failed: %v", err)
				return
			}
			log.Printf("reroute: %s km, %s min", r.Distance(), r.Duration())
		})
	}

	log.Printf("map-simulator: %d stations, tick %s", stations.Len(), cfg.SimInterval)
	run(ctx, session, stations, home, cfg.SimInterval)
	log.Println("shutdown complete")
}

// run cycles through the user actions until ctx is done: focus a searched
// station, zoom out, zoom in, recentre on the user.
func run(ctx context.Context, session *mapview.Session, stations *transit.Catalog, home geo.Point, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	me := home
	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch step % 4 {
		case 0:
			all := stations.All()
			pick := all[rand.Intn(len(all))]
			// search by the leading syllable, the way a user types
			prefix := string([]rune(pick.Name)[:1])
			matches := stations.Search(prefix)
			log.Printf("search %q: %d matches, focusing %s", prefix, len(matches), pick.Key())
			dest := geo.StationPoint(pick)
			session.SetDestination(&dest)
			if err := session.FocusStation(ctx, pick.Key(), dest); err != nil {
				log.Printf("focus %s: %v", pick.Key(), err)
			}
		case 1:
			log.Printf("zoom out -> %.1f", session.ZoomOut())
		case 2:
			log.Printf("zoom in -> %.1f", session.ZoomIn())
		case 3:
			me = wander(me)
			if err := session.FlyToSelf(&me); err != nil {
				log.Printf("fly to self: %v", err)
			}
		}
	}
}

func centroid(stations []transit.Station) geo.Point {
	var p geo.Point
	for _, s := range stations {
		p.Lat += s.Lat
		p.Lng += s.Lng
	}
	n := float64(len(stations))
	return geo.Point{Lat: p.Lat / n, Lng: p.Lng / n}
}

// wander moves p by up to about 300 m in each axis.
func wander(p geo.Point) geo.Point {
	const step = 0.003
	return geo.Point{
		Lat: p.Lat + (rand.Float64()*2-1)*step,
		Lng: p.Lng + (rand.Float64()*2-1)*step,
	}
}
