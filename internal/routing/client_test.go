package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subway-congestion-map/internal/geo"
)

var (
	home    = geo.Point{Lat: 37.53812, Lng: 126.84551}
	hwagok  = geo.Point{Lat: 37.5415, Lng: 126.8402}
	ghBody  = `{"paths":[{"distance":1234.5,"time":960000,"points":{"coordinates":[[126.84551,37.53812],[126.8402,37.5415]]}}]}`
	orsBody = `{"features":[{"geometry":{"coordinates":[[126.84551,37.53812,12.0],[126.843,37.539],[126.8402,37.5415]]},"properties":{"summary":{"distance":987.0,"duration":702.0}}}]}`
)

type recordingMetrics struct {
	observed []string
	hits     int
}

func (m *recordingMetrics) RouteObserve(api string, _ time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.observed = append(m.observed, api+":"+result)
}

func (m *recordingMetrics) RouteCacheHit() { m.hits++ }

func newTestServer(t *testing.T, calls *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouteGraphHopper(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route", r.URL.Path)
		assert.Equal(t, "37.538120,126.845510", r.URL.Query().Get("start"))
		assert.Equal(t, "37.541500,126.840200", r.URL.Query().Get("end"))
		assert.Equal(t, "foot-walking", r.URL.Query().Get("mode"))
		assert.Equal(t, "gh", r.URL.Query().Get("apitype"))
		w.Write([]byte(ghBody))
	})
	m := &recordingMetrics{}
	c := NewClient(Options{BaseURL: srv.URL + "/"}, m)

	r, err := c.Route(context.Background(), GraphHopper, home, hwagok)
	require.NoError(t, err)
	assert.Equal(t, "1.23", r.Distance())
	assert.Equal(t, "16", r.Duration())
	require.Len(t, r.Coords, 2)
	assert.Equal(t, home, r.Coords[0])
	assert.Equal(t, []string{"gh:ok"}, m.observed)
}

func TestRouteOpenRouteService(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "126.845510,37.538120", r.URL.Query().Get("start"))
		assert.Equal(t, "ors", r.URL.Query().Get("apitype"))
		w.Write([]byte(orsBody))
	})
	c := NewClient(Options{BaseURL: srv.URL}, nil)

	r, err := c.Route(context.Background(), OpenRouteService, home, hwagok)
	require.NoError(t, err)
	assert.Equal(t, "0.99", r.Distance())
	assert.Equal(t, "12", r.Duration())
	require.Len(t, r.Coords, 3)
	assert.Equal(t, hwagok, r.Coords[2])
}

func TestRouteCachesByQuantisedOrigin(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ghBody))
	})
	m := &recordingMetrics{}
	c := NewClient(Options{BaseURL: srv.URL, CacheTTL: time.Minute}, m)

	_, err := c.Route(context.Background(), GraphHopper, home, hwagok)
	require.NoError(t, err)
	nearby := geo.Point{Lat: home.Lat + 0.00001, Lng: home.Lng - 0.00001}
	_, err = c.Route(context.Background(), GraphHopper, nearby, hwagok)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, m.hits)

	// a different back-end is a different entry
	_, err = c.Route(context.Background(), OpenRouteService, home, hwagok)
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRouteFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error field", http.StatusOK, `{"error":"Point not found"}`},
		{"error object", http.StatusOK, `{"error":{"code":2010,"message":"Could not find routable point"}}`},
		{"no paths", http.StatusOK, `{"paths":[]}`},
		{"bad status", http.StatusBadGateway, `upstream down`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			m := &recordingMetrics{}
			c := NewClient(Options{BaseURL: srv.URL}, m)

			_, err := c.Route(context.Background(), GraphHopper, home, hwagok)
			assert.True(t, errors.Is(err, ErrRoutingFailed), "got %v", err)
			assert.Equal(t, []string{"gh:error"}, m.observed)

			// failures are not cached
			_, _ = c.Route(context.Background(), GraphHopper, home, hwagok)
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		})
	}
}

func TestRouteWithoutBaseURL(t *testing.T) {
	c := NewClient(Options{}, nil)
	_, err := c.Route(context.Background(), GraphHopper, home, hwagok)
	assert.ErrorIs(t, err, ErrRoutingFailed)
}

func TestParseAPI(t *testing.T) {
	api, err := ParseAPI(" ORS ")
	require.NoError(t, err)
	assert.Equal(t, OpenRouteService, api)
	_, err = ParseAPI("osrm")
	assert.Error(t, err)
}

func TestMakeCacheKey(t *testing.T) {
	assert.Equal(t, "gh:37.5381,126.8455,37.541500,126.840200", makeCacheKey(GraphHopper, home, hwagok))
	assert.Equal(t, 40.7128, quantizeCoord(40.71284))
}
