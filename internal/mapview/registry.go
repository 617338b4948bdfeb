package mapview

import (
	"log"
	"sync"

	"subway-congestion-map/internal/transit"
)

// Lookup resolves a station key to its mounted marker. A miss means the
// marker is not mounted yet.
type Lookup interface {
	Get(key transit.Key) (Marker, bool)
}

// Registry maps station keys to mounted markers. It never owns a marker:
// entries are added on mount and dropped on unmount by the view.
type Registry struct {
	mu      sync.RWMutex
	markers map[transit.Key]Marker
}

func NewRegistry() *Registry {
	return &Registry{markers: make(map[transit.Key]Marker)}
}

// Register records m under key. A second registration replaces the first.
func (r *Registry) Register(key transit.Key, m Marker) {
	r.mu.Lock()
	_, dup := r.markers[key]
	r.markers[key] = m
	r.mu.Unlock()
	if dup {
		log.Printf("marker registry: duplicate station key %q, keeping latest", key)
	}
}

func (r *Registry) Unregister(key transit.Key) {
	r.mu.Lock()
	delete(r.markers, key)
	r.mu.Unlock()
}

func (r *Registry) Get(key transit.Key) (Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[key]
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

// Each calls fn for a snapshot of the registered markers.
func (r *Registry) Each(fn func(key transit.Key, m Marker)) {
	r.mu.RLock()
	snapshot := make(map[transit.Key]Marker, len(r.markers))
	for k, m := range r.markers {
		snapshot[k] = m
	}
	r.mu.RUnlock()
	for k, m := range snapshot {
		fn(k, m)
	}
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.markers = make(map[transit.Key]Marker)
	r.mu.Unlock()
}
