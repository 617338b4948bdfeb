package transit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrStationNotFound = errors.New("station not found")

// Catalog is an immutable, keyed view of the loaded stations.
type Catalog struct {
	stations []Station
	byKey    map[Key]int
}

// NewCatalog indexes stations by key. When two stations share a key the
// first one is kept.
func NewCatalog(stations []Station) *Catalog {
	c := &Catalog{byKey: make(map[Key]int, len(stations))}
	for _, s := range stations {
		if _, ok := c.byKey[s.Key()]; ok {
			continue
		}
		c.byKey[s.Key()] = len(c.stations)
		c.stations = append(c.stations, s)
	}
	return c
}

func (c *Catalog) Len() int { return len(c.stations) }

// All returns the stations in load order. Callers must not modify the slice.
func (c *Catalog) All() []Station { return c.stations }

func (c *Catalog) Get(key Key) (Station, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// Lookup is Get with an ErrStationNotFound error for unknown keys.
func (c *Catalog) Lookup(key Key) (Station, error) {
	s, ok := c.Get(key)
	if !ok {
		return Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, key)
	}
	return s, nil
}

// Search returns the stations whose name starts with prefix, ignoring case,
// sorted by name then line. An empty prefix matches everything.
func (c *Catalog) Search(prefix string) []Station {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]Station, 0)
	for _, s := range c.stations {
		if strings.HasPrefix(strings.ToLower(s.Name), prefix) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Line < out[j].Line
	})
	return out
}
