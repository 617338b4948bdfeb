// Package routing asks the routing proxy for a walking route between two
// points. The proxy fronts GraphHopper and OpenRouteService; both answers are
// normalised to a Route.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"subway-congestion-map/internal/geo"
)

// ErrRoutingFailed covers every way the proxy can fail to produce a route.
var ErrRoutingFailed = errors.New("route lookup failed")

type API string

const (
	GraphHopper      API = "gh"
	OpenRouteService API = "ors"
)

func ParseAPI(s string) (API, error) {
	switch API(strings.ToLower(strings.TrimSpace(s))) {
	case GraphHopper:
		return GraphHopper, nil
	case OpenRouteService:
		return OpenRouteService, nil
	}
	return "", fmt.Errorf("unknown routing api %q", s)
}

// Route is a walking path in [lat, lng] order with its length and duration.
type Route struct {
	Coords      []geo.Point `json:"coords"`
	DistanceKm  float64     `json:"distanceKm"`
	DurationMin float64     `json:"durationMin"`
}

// Distance is the distance in km with two decimals, as shown to users.
func (r Route) Distance() string { return fmt.Sprintf("%.2f", r.DistanceKm) }

// Duration is the walking time in whole minutes, as shown to users.
func (r Route) Duration() string { return fmt.Sprintf("%.0f", r.DurationMin) }

type Metrics interface {
	RouteObserve(api string, d time.Duration, err error)
	RouteCacheHit()
}

type Options struct {
	BaseURL   string
	Profile   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

type Client struct {
	base    string
	profile string
	http    *http.Client
	cache   gcache.Cache
	metrics Metrics
}

func NewClient(opts Options, m Metrics) *Client {
	if opts.Profile == "" {
		opts.Profile = "foot-walking"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cb := gcache.New(opts.CacheSize).LRU()
	if opts.CacheTTL > 0 {
		cb = cb.Expiration(opts.CacheTTL)
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		profile: opts.Profile,
		http:    &http.Client{Timeout: opts.Timeout},
		cache:   cb.Build(),
		metrics: m,
	}
}

// Route returns the walking route from one point to another. Results are
// cached per API with the origin quantised to about 11 m.
func (c *Client) Route(ctx context.Context, api API, from, to geo.Point) (*Route, error) {
	key := makeCacheKey(api, from, to)
	if cached, err := c.cache.Get(key); err == nil {
		if r, ok := cached.(*Route); ok {
			if c.metrics != nil {
				c.metrics.RouteCacheHit()
			}
			return r, nil
		}
	}

	start := time.Now()
	r, err := c.fetch(ctx, api, from, to)
	if c.metrics != nil {
		c.metrics.RouteObserve(string(api), time.Since(start), err)
	}
	if err != nil {
		log.Printf("route api=%s failed after %s: %v", api, time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	_ = c.cache.Set(key, r)
	log.Printf("route api=%s distance=%skm duration=%smin points=%d", api, r.Distance(), r.Duration(), len(r.Coords))
	return r, nil
}

func (c *Client) fetch(ctx context.Context, api API, from, to geo.Point) (*Route, error) {
	if c.base == "" {
		return nil, fmt.Errorf("%w: no routing service configured", ErrRoutingFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(api, from, to), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRoutingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRoutingFailed, resp.StatusCode)
	}
	switch api {
	case OpenRouteService:
		return decodeORS(body)
	default:
		return decodeGH(body)
	}
}

// routeURL builds the proxy request. ORS takes lng,lat pairs and GraphHopper
// lat,lng.
func (c *Client) routeURL(api API, from, to geo.Point) string {
	pair := func(p geo.Point) string {
		if api == OpenRouteService {
			return fmt.Sprintf("%f,%f", p.Lng, p.Lat)
		}
		return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
	}
	q := url.Values{}
	q.Set("start", pair(from))
	q.Set("end", pair(to))
	q.Set("mode", c.profile)
	q.Set("apitype", string(api))
	return c.base + "/route?" + q.Encode()
}

type orsResponse struct {
	Error    json.RawMessage `json:"error"`
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"` // m
				Duration float64 `json:"duration"` // s
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

type ghResponse struct {
	Error json.RawMessage `json:"error"`
	Paths []struct {
		Distance float64 `json:"distance"` // m
		Time     float64 `json:"time"`     // ms
		Points   struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"points"`
	} `json:"paths"`
}

func decodeORS(body []byte) (*Route, error) {
	var obj orsResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRoutingFailed, err)
	}
	if len(obj.Error) > 0 && string(obj.Error) != "null" {
		return nil, fmt.Errorf("%w: %s", ErrRoutingFailed, obj.Error)
	}
	if len(obj.Features) == 0 {
		return nil, fmt.Errorf("%w: no route", ErrRoutingFailed)
	}
	f := obj.Features[0]
	return &Route{
		Coords:      flipLngLat(f.Geometry.Coordinates),
		DistanceKm:  f.Properties.Summary.Distance / 1000,
		DurationMin: f.Properties.Summary.Duration / 60,
	}, nil
}

func decodeGH(body []byte) (*Route, error) {
	var obj ghResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRoutingFailed, err)
	}
	if len(obj.Error) > 0 && string(obj.Error) != "null" {
		return nil, fmt.Errorf("%w: %s", ErrRoutingFailed, obj.Error)
	}
	if len(obj.Paths) == 0 {
		return nil, fmt.Errorf("%w: no route", ErrRoutingFailed)
	}
	p := obj.Paths[0]
	return &Route{
		Coords:      flipLngLat(p.Points.Coordinates),
		DistanceKm:  p.Distance / 1000,
		DurationMin: p.Time / 1000 / 60,
	}, nil
}

// flipLngLat turns GeoJSON [lng, lat(, ele)] positions into points.
func flipLngLat(coords [][]float64) []geo.Point {
	out := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		out = append(out, geo.Point{Lat: c[1], Lng: c[0]})
	}
	return out
}

// quantizeCoord rounds coordinates to 4 decimal places (~11m precision) for cache key generation
func quantizeCoord(coord float64) float64 {
	return math.Round(coord*10000) / 10000
}

// makeCacheKey quantises the user position and keeps the destination exact.
func makeCacheKey(api API, from, to geo.Point) string {
	return fmt.Sprintf("%s:%.4f,%.4f,%.6f,%.6f", api, quantizeCoord(from.Lat), quantizeCoord(from.Lng), to.Lat, to.Lng)
}
