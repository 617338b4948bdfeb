package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"subway-congestion-map/internal/chat"
	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/mapview"
	"subway-congestion-map/internal/publisher"
	"subway-congestion-map/internal/routing"
	"subway-congestion-map/internal/schedule"
	"subway-congestion-map/internal/transit"
)

// RouteService finds walking routes.
type RouteService interface {
	Route(ctx context.Context, api routing.API, from, to geo.Point) (*routing.Route, error)
}

// ChatService produces a conversational note about a route.
type ChatService interface {
	Enabled() bool
	Info(ctx context.Context, q chat.Query) (string, error)
}

// EventPublisher delivers route summaries and chat replies to clients.
type EventPublisher interface {
	PublishRoute(msg publisher.RouteMessage) error
	PublishChat(msg publisher.ChatMessage) error
}

type ChatMetrics interface {
	ChatObserve(err error)
}

// MapConfig is handed to map clients so they drive the engine with the
// server's settings.
type MapConfig struct {
	MinZoom        float64 `json:"minZoom"`
	FocusZoom      float64 `json:"focusZoom"`
	FlyDurationMs  int64   `json:"flyDurationMs"`
	FocusRetryMs   int64   `json:"focusRetryMs"`
	FocusTimeoutMs int64   `json:"focusTimeoutMs"`
	NearbyRadiusKm float64 `json:"nearbyRadiusKm"`
}

type Deps struct {
	Stations    *transit.Catalog
	Schedule    *schedule.Table
	Routes      RouteService
	Chat        ChatService
	Events      EventPublisher
	ChatMetrics ChatMetrics
	MapEvents   mapview.Observer
	Map         MapConfig
	RoutingAPI  routing.API
	Location    *time.Location
	ChatTimeout time.Duration
}

type Handler struct {
	deps Deps
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.RoutingAPI == "" {
		d.RoutingAPI = routing.GraphHopper
	}
	if d.ChatTimeout <= 0 {
		d.ChatTimeout = 30 * time.Second
	}
	return &Handler{deps: d, now: time.Now}
}

// Wait blocks until background chat lookups have finished.
func (h *Handler) Wait() { h.wg.Wait() }

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"stations":     h.deps.Stations.Len(),
		"scheduleRows": h.deps.Schedule.Len(),
		"timestamp":    time.Now().UTC(),
	})
}

// MapSettings handles GET /api/map/config
func (h *Handler) MapSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.deps.Map)
}

// MapEvent is reported by map clients: a marker visibility transition or
// the end of a fly-to-and-open request.
type MapEvent struct {
	Type      string `json:"type"` // visibility|focus
	State     string `json:"state,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Key       string `json:"key,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

// MapEvents handles POST /api/map/events
func (h *Handler) MapEvents(w http.ResponseWriter, r *http.Request) {
	var ev MapEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event", map[string]interface{}{"internal": err.Error()})
		return
	}
	switch ev.Type {
	case "visibility":
		v, err := mapview.ParseVisibility(ev.State)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event", map[string]interface{}{"internal": err.Error()})
			return
		}
		if h.deps.MapEvents != nil {
			h.deps.MapEvents.VisibilityChanged(v)
		}
	case "focus":
		report := mapview.FocusReport{
			RequestID: ev.RequestID,
			Key:       transit.Key(ev.Key),
			Attempts:  ev.Attempts,
			Elapsed:   time.Duration(ev.ElapsedMs) * time.Millisecond,
		}
		if report.RequestID == "" {
			report.RequestID = uuid.NewString()
		}
		if err := report.SetOutcome(ev.Outcome); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event", map[string]interface{}{"internal": err.Error()})
			return
		}
		if h.deps.MapEvents != nil {
			h.deps.MapEvents.FocusFinished(report)
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid event", map[string]interface{}{"type": ev.Type})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type StationsResponse struct {
	Stations []transit.Station `json:"stations"`
	Count    int               `json:"count"`
}

// SearchStations handles GET /api/stations?q=prefix
func (h *Handler) SearchStations(w http.ResponseWriter, r *http.Request) {
	stations := h.deps.Stations.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, StationsResponse{Stations: stations, Count: len(stations)})
}

type NearbyStation struct {
	transit.Station
	Key        transit.Key `json:"key"`
	DistanceKm float64     `json:"distanceKm"`
}

type NearbyResponse struct {
	Origin   geo.Point       `json:"origin"`
	RadiusKm float64         `json:"radiusKm"`
	Stations []NearbyStation `json:"stations"`
	Count    int             `json:"count"`
}

// NearbyStations handles GET /api/stations/nearby?lat=&lng=&radius_km=
// Without a usable position the request fails rather than guessing one.
func (h *Handler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	origin, err := parseLatLng(q.Get("lat"), q.Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "location unavailable", map[string]interface{}{"internal": err.Error()})
		return
	}
	radius := h.deps.Map.NearbyRadiusKm
	if v := q.Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "invalid radius_km", map[string]interface{}{"radius_km": v})
			return
		}
		radius = f
	}

	found := geo.Nearby(&origin, h.deps.Stations.All(), radius)
	out := make([]NearbyStation, 0, len(found))
	for _, s := range found {
		d := geo.DistanceKm(origin, geo.StationPoint(s))
		log.Printf("nearby %s (%s) %.3fkm", s.Name, s.Line, d)
		out = append(out, NearbyStation{Station: s, Key: s.Key(), DistanceKm: d})
	}
	writeJSON(w, http.StatusOK, NearbyResponse{Origin: origin, RadiusKm: radius, Stations: out, Count: len(out)})
}

type IntervalsResponse struct {
	Station    transit.Station              `json:"station"`
	Day        transit.DayType              `json:"day"`
	Time       string                       `json:"time"`
	Directions []schedule.DirectionInterval `json:"directions"`
}

// StationIntervals handles GET /api/stations/{key}/intervals?day=&time=
// day and time default to now in the configured time zone.
func (h *Handler) StationIntervals(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "key")
	key, err := url.PathUnescape(raw)
	if err != nil {
		key = raw
	}
	station, err := h.deps.Stations.Lookup(transit.Key(key))
	if err != nil {
		writeError(w, http.StatusNotFound, "station not found", map[string]interface{}{"key": key})
		return
	}

	now := h.now().In(h.deps.Location)
	day := transit.DayTypeFor(now)
	if v := r.URL.Query().Get("day"); v != "" {
		if day, err = transit.ParseDayType(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid day", map[string]interface{}{"day": v})
			return
		}
	}
	selected := r.URL.Query().Get("time")
	if selected == "" {
		selected = schedule.Clock(now)
	}

	writeJSON(w, http.StatusOK, IntervalsResponse{
		Station:    station,
		Day:        day,
		Time:       selected,
		Directions: h.deps.Schedule.Resolve(station, day, selected),
	})
}

type RouteResponse struct {
	RequestID   string        `json:"requestId"`
	API         routing.API   `json:"api"`
	Route       routing.Route `json:"route"`
	DistanceKm  string        `json:"distanceKm"`
	DurationMin string        `json:"durationMin"`
	Chat        string        `json:"chat"` // pending|disabled
}

// Route handles GET /api/route?from=lat,lng&to=lat,lng&name=&api=
// The chat reply is published asynchronously under the returned requestId.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parsePoint(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "location unavailable", map[string]interface{}{"internal": err.Error()})
		return
	}
	to, err := parsePoint(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid destination", map[string]interface{}{"internal": err.Error()})
		return
	}
	api := h.deps.RoutingAPI
	if v := q.Get("api"); v != "" {
		if api, err = routing.ParseAPI(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid api", map[string]interface{}{"api": v})
			return
		}
	}
	name := strings.TrimSpace(q.Get("name"))

	route, err := h.deps.Routes.Route(r.Context(), api, from, to)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, routing.ErrRoutingFailed) {
			status = http.StatusBadGateway
		}
		writeError(w, status, "route lookup failed", map[string]interface{}{"internal": err.Error()})
		return
	}

	resp := RouteResponse{
		RequestID:   uuid.NewString(),
		API:         api,
		Route:       *route,
		DistanceKm:  route.Distance(),
		DurationMin: route.Duration(),
		Chat:        "disabled",
	}
	if h.deps.Events != nil {
		if err := h.deps.Events.PublishRoute(publisher.RouteMessage{
			RequestID: resp.RequestID,
			API:       string(api),
			Station:   name,
			DistanceM: route.DistanceKm * 1000,
			DurationS: route.DurationMin * 60,
			Points:    len(route.Coords),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			log.Printf("publish route %s: %v", resp.RequestID, err)
		}
		if h.deps.Chat != nil && h.deps.Chat.Enabled() {
			resp.Chat = "pending"
			h.enrich(resp.RequestID, chat.Query{
				DistanceKm:  resp.DistanceKm,
				DurationMin: resp.DurationMin,
				Destination: to,
				StationName: name,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// enrich asks the chat service in the background and publishes whatever it
// answers, including failures, so the client can stop waiting.
func (h *Handler) enrich(requestID string, q chat.Query) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.deps.ChatTimeout)
		defer cancel()

		reply, err := h.deps.Chat.Info(ctx, q)
		if h.deps.ChatMetrics != nil {
			h.deps.ChatMetrics.ChatObserve(err)
		}
		msg := publisher.ChatMessage{RequestID: requestID, Station: q.StationName, Reply: reply, Timestamp: time.Now().UTC()}
		if err != nil {
			log.Printf("chat %s: %v", requestID, err)
			msg.Error = "chat unavailable"
		}
		if err := h.deps.Events.PublishChat(msg); err != nil {
			log.Printf("publish chat %s: %v", requestID, err)
		}
	}()
}

// parsePoint parses "lat,lng".
func parsePoint(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	return parseLatLng(lat, lng)
}

func parseLatLng(lat, lng string) (geo.Point, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude %q", lat)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude %q", lng)
	}
	p := geo.Point{Lat: la, Lng: ln}
	if !geo.Valid(p) {
		return geo.Point{}, fmt.Errorf("coordinates out of range: %v,%v", la, ln)
	}
	return p, nil
}
