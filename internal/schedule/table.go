package schedule

import (
	"subway-congestion-map/internal/transit"
)

// Table is the parsed schedule, indexed by station key. It is built once at
// startup and only read afterwards; resolved views are computed per request.
type Table struct {
	rows    []transit.ScheduleRow
	byKey   map[transit.Key][]int
	columns int
}

func NewTable(rows []transit.ScheduleRow) *Table {
	t := &Table{
		rows:  rows,
		byKey: make(map[transit.Key][]int),
	}
	for i, r := range rows {
		k := r.StationKey()
		t.byKey[k] = append(t.byKey[k], i)
		t.columns += len(r.Columns)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Cells returns the number of populated interval cells.
func (t *Table) Cells() int { return t.columns }

// RowsFor returns the rows recorded for a station, across all days and
// directions.
func (t *Table) RowsFor(key transit.Key) []transit.ScheduleRow {
	idx := t.byKey[key]
	out := make([]transit.ScheduleRow, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.rows[i])
	}
	return out
}

func (t *Table) Resolve(station transit.Station, day transit.DayType, selected string) []DirectionInterval {
	return Resolve(t.RowsFor(station.Key()), station, day, selected)
}
