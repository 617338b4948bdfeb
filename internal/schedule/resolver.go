package schedule

import (
	"math"
	"strconv"
	"strings"
	"time"

	"subway-congestion-map/internal/transit"
)

// DirectionInterval is the popup content for one direction of a station.
type DirectionInterval struct {
	Direction       string `json:"direction"`
	IntervalMinutes int    `json:"intervalMinutes"`
	MatchedColumn   string `json:"matchedColumn,omitempty"`
	NoService       bool   `json:"noService"`
}

// ParseClock parses "H:MM" or "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// IsClockLabel reports whether a column label looks like a time-of-day column.
func IsClockLabel(s string) bool {
	_, ok := ParseClock(s)
	return ok
}

// Clock formats t as HH:MM.
func Clock(t time.Time) string { return t.Format("15:04") }

// Now returns the day type and HH:MM for the current wall-clock time in loc.
func Now(loc *time.Location) (transit.DayType, string) {
	t := time.Now().In(loc)
	return transit.DayTypeFor(t), Clock(t)
}

// NearestTimeColumn returns the column closest to selected. Ties go to the
// column encountered first. Columns that do not parse are skipped.
func NearestTimeColumn(selected string, columns []string) (string, bool) {
	target, ok := ParseClock(selected)
	if !ok {
		return "", false
	}
	best := ""
	bestDiff := math.MaxInt
	for _, col := range columns {
		minutes, ok := ParseClock(col)
		if !ok {
			continue
		}
		diff := target - minutes
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = col, diff
		}
	}
	return best, best != ""
}

// Resolve computes the per-direction intervals for station on day at the
// selected time. Rows for other stations or days are ignored. Every direction
// present for the station is reported, in first-seen order, even when it has
// no service at the selected time.
func Resolve(rows []transit.ScheduleRow, station transit.Station, day transit.DayType, selected string) []DirectionInterval {
	type group struct {
		direction string
		columns   []string
		values    map[string]int
	}
	var groups []*group
	byDirection := make(map[string]*group)
	for _, r := range rows {
		if r.Day != day || r.Line != station.Line || r.Station != station.Name {
			continue
		}
		g, ok := byDirection[r.Direction]
		if !ok {
			g = &group{direction: r.Direction, values: make(map[string]int)}
			byDirection[r.Direction] = g
			groups = append(groups, g)
		}
		for _, col := range r.Columns {
			if _, seen := g.values[col]; seen {
				continue
			}
			g.columns = append(g.columns, col)
			g.values[col] = r.Intervals[col]
		}
	}

	out := make([]DirectionInterval, 0, len(groups))
	for _, g := range groups {
		di := DirectionInterval{Direction: g.direction}
		if col, ok := NearestTimeColumn(selected, g.columns); ok {
			di.MatchedColumn = col
			di.IntervalMinutes = g.values[col]
		}
		di.NoService = di.IntervalMinutes <= 0
		if di.NoService {
			di.IntervalMinutes = 0
		}
		out = append(out, di)
	}
	return out
}
