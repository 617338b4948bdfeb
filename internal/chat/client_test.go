package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subway-congestion-map/internal/geo"
)

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1.23", q.Get("distance"))
		assert.Equal(t, "16", q.Get("time"))
		assert.Equal(t, "126.840200,37.541500", q.Get("lnglat"))
		assert.Equal(t, "화곡", q.Get("name"))
		w.Write([]byte(`{"reply":"화곡역까지 약 16분 걸려요."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0)
	require.True(t, c.Enabled())
	reply, err := c.Info(context.Background(), Query{
		DistanceKm:  "1.23",
		DurationMin: "16",
		Destination: geo.Point{Lat: 37.5415, Lng: 126.8402},
		StationName: "화곡",
	})
	require.NoError(t, err)
	assert.Equal(t, "화곡역까지 약 16분 걸려요.", reply)
}

func TestInfoOmitsEmptyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["name"]
		assert.False(t, ok)
		w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Info(context.Background(), Query{DistanceKm: "0.50", DurationMin: "7"})
	require.NoError(t, err)
}

func TestInfoErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Info(context.Background(), Query{})
	assert.ErrorContains(t, err, "status 503")

	var disabled *Client
	assert.False(t, disabled.Enabled())
	_, err = NewClient("", 0).Info(context.Background(), Query{})
	assert.Error(t, err)
}
