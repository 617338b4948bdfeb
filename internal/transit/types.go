package transit

import (
	"fmt"
	"strings"
	"time"
)

type Station struct {
	Name string  `json:"name"`
	Line string  `json:"line"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Key identifies a station across the whole station set. Two stations sharing
// a name on different lines have different keys.
type Key string

func KeyOf(name, line string) Key {
	return Key(name + "-" + line)
}

func (s Station) Key() Key { return KeyOf(s.Name, s.Line) }

type DayType string

const (
	Weekday  DayType = "평일"
	Saturday DayType = "토요일"
	Sunday   DayType = "일요일"
)

// DayTypeFor classifies a wall-clock date.
func DayTypeFor(t time.Time) DayType {
	switch t.Weekday() {
	case time.Saturday:
		return Saturday
	case time.Sunday:
		return Sunday
	default:
		return Weekday
	}
}

// ParseDayType accepts the labels used in the schedule data as well as
// their English names.
func ParseDayType(s string) (DayType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Weekday), "weekday":
		return Weekday, nil
	case string(Saturday), "saturday", "sat":
		return Saturday, nil
	case string(Sunday), "sunday", "sun":
		return Sunday, nil
	}
	return "", fmt.Errorf("unknown day type %q", s)
}

// ScheduleRow holds the interval-in-minutes per time-of-day column for one
// (day, line, station, direction). Columns keeps the source order of labels;
// an interval of 0 means no service.
type ScheduleRow struct {
	Day       DayType
	Line      string
	Station   string
	Direction string
	Columns   []string
	Intervals map[string]int
}

func (r ScheduleRow) StationKey() Key { return KeyOf(r.Station, r.Line) }

// Set records a column value, keeping the first position of a label.
func (r *ScheduleRow) Set(label string, minutes int) {
	if r.Intervals == nil {
		r.Intervals = make(map[string]int)
	}
	if _, ok := r.Intervals[label]; !ok {
		r.Columns = append(r.Columns, label)
	}
	r.Intervals[label] = minutes
}
