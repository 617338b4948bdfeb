package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subway-congestion-map/internal/transit"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	key := transit.KeyOf("신도림", "2")

	_, ok := r.Get(key)
	assert.False(t, ok)

	first, second := &fakeMarker{}, &fakeMarker{}
	r.Register(key, first)
	r.Register(transit.KeyOf("신도림", "1"), &fakeMarker{})
	assert.Equal(t, 2, r.Len())

	// last writer wins
	r.Register(key, second)
	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 2, r.Len())

	r.Unregister(key)
	_, ok = r.Get(key)
	assert.False(t, ok)
	r.Unregister(key)

	seen := 0
	r.Each(func(transit.Key, Marker) { seen++ })
	assert.Equal(t, 1, seen)

	r.Clear()
	assert.Equal(t, 0, r.Len())
}
