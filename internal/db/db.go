package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"subway-congestion-map/internal/geo"
	"subway-congestion-map/internal/schedule"
	"subway-congestion-map/internal/transit"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to Postgres for postgres:// DSNs and to SQLite for
// sqlite:// DSNs, file: URIs and plain paths.
func Open(dsn string) (*sql.DB, error) {
	driver, source := driverFor(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one writer; the tables are only read after startup
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func driverFor(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return "pgx", dsn
	default:
		return "sqlite", dsn
	}
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchStations loads the station list. Rows with blank names, unparseable or
// out-of-range coordinates, or a key already seen are dropped; the number of
// dropped rows is returned alongside.
func FetchStations(ctx context.Context, db *sql.DB) ([]transit.Station, int, error) {
	q := `SELECT name, line, lat, lng FROM stations ORDER BY row_index`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []transit.Station
	seen := make(map[transit.Key]bool)
	dropped := 0
	for rows.Next() {
		var name, line, lat, lng sql.NullString
		if err := rows.Scan(&name, &line, &lat, &lng); err != nil {
			return nil, 0, fmt.Errorf("scan station: %w", err)
		}
		s, ok := parseStation(name.String, line.String, lat.String, lng.String)
		if !ok {
			dropped++
			continue
		}
		if seen[s.Key()] {
			log.Printf("duplicate station key %q dropped", s.Key())
			dropped++
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, dropped, nil
}

func parseStation(name, line, lat, lng string) (transit.Station, bool) {
	name, line = strings.TrimSpace(name), strings.TrimSpace(line)
	if name == "" || line == "" {
		return transit.Station{}, false
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return transit.Station{}, false
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return transit.Station{}, false
	}
	if !geo.Valid(geo.Point{Lat: la, Lng: ln}) {
		return transit.Station{}, false
	}
	return transit.Station{Name: name, Line: line, Lat: la, Lng: ln}, true
}

// FetchScheduleRows loads the interval table, stored one cell per row, and
// folds it back into one ScheduleRow per (day, line, station, direction) in
// source order. Cells with an unknown day, a label that is not a clock time
// or a non-numeric interval are dropped and counted.
func FetchScheduleRows(ctx context.Context, db *sql.DB) ([]transit.ScheduleRow, int, error) {
	q := `SELECT day_type, line, name, direction, time_slot, interval_min
          FROM schedule_intervals
          ORDER BY row_index, slot_index`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("query schedule_intervals: %w", err)
	}
	defer rows.Close()

	type groupKey struct {
		day       transit.DayType
		line      string
		station   string
		direction string
	}
	var out []transit.ScheduleRow
	index := make(map[groupKey]int)
	dropped := 0
	for rows.Next() {
		var day, line, name, dir, slot, interval sql.NullString
		if err := rows.Scan(&day, &line, &name, &dir, &slot, &interval); err != nil {
			return nil, 0, fmt.Errorf("scan schedule cell: %w", err)
		}
		dt, err := transit.ParseDayType(day.String)
		if err != nil {
			dropped++
			continue
		}
		label := strings.TrimSpace(slot.String)
		minutes, err := strconv.Atoi(strings.TrimSpace(interval.String))
		if !schedule.IsClockLabel(label) || err != nil || minutes < 0 {
			dropped++
			continue
		}
		k := groupKey{
			day:       dt,
			line:      strings.TrimSpace(line.String),
			station:   strings.TrimSpace(name.String),
			direction: strings.TrimSpace(dir.String),
		}
		i, ok := index[k]
		if !ok {
			out = append(out, transit.ScheduleRow{Day: k.day, Line: k.line, Station: k.station, Direction: k.direction})
			i = len(out) - 1
			index[k] = i
		}
		out[i].Set(label, minutes)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, dropped, nil
}
