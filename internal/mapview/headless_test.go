package mapview

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/transit"
)

var (
	cityHallPt = geo.Point{Lat: 37.5657, Lng: 126.9769}
	testLine5  = []transit.Station{
		{Name: "화곡", Line: "5", Lat: 37.5415, Lng: 126.8402},
		{Name: "까치산", Line: "5", Lat: 37.5317, Lng: 126.8467},
		{Name: "광화문", Line: "5", Lat: 37.5710, Lng: 126.9768},
	}
)

func TestHeadlessCameraFlyTo(t *testing.T) {
	cam := NewHeadlessCamera(cityHallPt, 20, 7, 18)
	assert.Equal(t, 18.0, cam.Zoom())

	var moves, zooms atomic.Int32
	offMove := cam.OnMoveEnd(func() { moves.Add(1) })
	cam.OnZoomEnd(func() { zooms.Add(1) })

	cam.FlyTo(hwagokPt, 15, time.Hour)
	cam.FlyTo(hwagokPt, 30, 10*time.Millisecond)
	// zoom end fires after move end
	require.Eventually(t, func() bool { return zooms.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, hwagokPt, cam.Center())
	assert.Equal(t, 18.0, cam.Zoom())
	assert.Equal(t, int32(1), moves.Load())

	cam.SetZoom(3)
	assert.Equal(t, 7.0, cam.Zoom())
	assert.Equal(t, int32(2), zooms.Load())

	offMove()
	cam.FlyTo(cityHallPt, 12, 5*time.Millisecond)
	require.Eventually(t, func() bool { return zooms.Load() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), moves.Load())

	cam.FlyTo(hwagokPt, 12, 5*time.Millisecond)
	cam.Stop()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, cityHallPt, cam.Center())
	assert.Equal(t, int32(3), zooms.Load())
}

func TestViewportSync(t *testing.T) {
	cam := NewHeadlessCamera(hwagokPt, 12, 7, 18)
	s := NewSession(cam, testOptions(), nil)
	defer s.Close()
	vp := NewViewport(s, testLine5, 2)

	added, removed := vp.Sync(hwagokPt)
	assert.Equal(t, 2, added)
	assert.Zero(t, removed)
	assert.Equal(t, 2, s.Registry().Len())

	m, ok := vp.Marker(transit.KeyOf("화곡", "5"))
	require.True(t, ok)
	assert.False(t, m.Interactive())

	added, removed = vp.Sync(hwagokPt)
	assert.Zero(t, added)
	assert.Zero(t, removed)

	added, removed = vp.Sync(cityHallPt)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, removed)
	_, ok = s.Registry().Get(transit.KeyOf("화곡", "5"))
	assert.False(t, ok)
	_, ok = vp.Marker(transit.KeyOf("광화문", "5"))
	assert.True(t, ok)
}

func TestHeadlessSessionFocusWithLazyMount(t *testing.T) {
	cam := NewHeadlessCamera(cityHallPt, 11, 7, 18)
	obs := &recordingObserver{}
	s := NewSession(cam, testOptions(), obs)
	defer s.Close()
	vp := NewViewport(s, testLine5, 2)

	// the view renders markers a little after the camera settles
	off := cam.OnMoveEnd(func() {
		center := cam.Center()
		time.AfterFunc(15*time.Millisecond, func() { vp.Sync(center) })
	})
	defer off()

	key := transit.KeyOf("까치산", "5")
	require.NoError(t, s.FocusStation(context.Background(), key, geo.StationPoint(testLine5[1])))

	m, ok := vp.Marker(key)
	require.True(t, ok)
	assert.Equal(t, 1, m.Popups())
	assert.True(t, m.Interactive())
	assert.Equal(t, Visible, s.Visibility())
	r := obs.lastReport()
	assert.Equal(t, "opened", r.Outcome())
	assert.Greater(t, r.Attempts, 1)
}
