package geo

import "subway-congestion-map/internal/transit"

func StationPoint(s transit.Station) Point { return Point{Lat: s.Lat, Lng: s.Lng} }

// Nearby returns the stations within radiusKm of ref (inclusive), in input
// order. A nil ref yields an empty result.
func Nearby(ref *Point, stations []transit.Station, radiusKm float64) []transit.Station {
	out := []transit.Station{}
	if ref == nil {
		return out
	}
	for _, s := range stations {
		if DistanceKm(*ref, StationPoint(s)) <= radiusKm {
			out = append(out, s)
		}
	}
	return out
}
