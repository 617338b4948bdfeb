package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subway-congestion-map/internal/transit"
)

const testSchema = `
CREATE TABLE stations (
	row_index INTEGER PRIMARY KEY,
	name      TEXT,
	line      TEXT,
	lat       TEXT,
	lng       TEXT
);
CREATE TABLE schedule_intervals (
	row_index    INTEGER NOT NULL,
	slot_index   INTEGER NOT NULL,
	day_type     TEXT,
	line         TEXT,
	name         TEXT,
	direction    TEXT,
	time_slot    TEXT,
	interval_min TEXT
);`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "transit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, Ping(context.Background(), conn))
	_, err = conn.Exec(testSchema)
	require.NoError(t, err)
	return conn
}

func TestFetchStationsDropsMalformedRows(t *testing.T) {
	conn := openTestDB(t)
	_, err := conn.Exec(`INSERT INTO stations (row_index, name, line, lat, lng) VALUES
		(1, '화곡', '5', '37.5415', '126.8402'),
		(2, '까치산', '2', 'n/a', '126.8467'),
		(3, '까치산', '5', '37.5318', '126.8467'),
		(4, '', '5', '37.5', '126.8'),
		(5, '북극', '1', '95.0', '0'),
		(6, '화곡', '5', '37.5415', '126.8402'),
		(7, '신정', '5', ' 37.5250 ', '126.8560')`)
	require.NoError(t, err)

	stations, dropped, err := FetchStations(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, 4, dropped)
	require.Len(t, stations, 3)
	assert.Equal(t, transit.Station{Name: "화곡", Line: "5", Lat: 37.5415, Lng: 126.8402}, stations[0])
	assert.Equal(t, transit.KeyOf("까치산", "5"), stations[1].Key())
	assert.Equal(t, 37.525, stations[2].Lat)
}

func TestFetchScheduleRowsFoldsCells(t *testing.T) {
	conn := openTestDB(t)
	_, err := conn.Exec(`INSERT INTO schedule_intervals
		(row_index, slot_index, day_type, line, name, direction, time_slot, interval_min) VALUES
		(1, 2, '평일', '5', '화곡', '상행', '08:30', '6'),
		(1, 1, '평일', '5', '화곡', '상행', '08:00', '4'),
		(1, 3, '평일', '5', '화곡', '상행', '09:00', 'x'),
		(2, 1, '평일', '5', '화곡', '하행', '08:00', '0'),
		(3, 1, 'holiday', '5', '화곡', '하행', '08:00', '5'),
		(4, 1, '토요일', '5', '화곡', '상행', 'date', '5'),
		(5, 1, 'saturday', '5', '화곡', '상행', '8:15', '7')`)
	require.NoError(t, err)

	rows, dropped, err := FetchScheduleRows(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	require.Len(t, rows, 3)

	assert.Equal(t, transit.Weekday, rows[0].Day)
	assert.Equal(t, "상행", rows[0].Direction)
	assert.Equal(t, []string{"08:00", "08:30"}, rows[0].Columns)
	assert.Equal(t, map[string]int{"08:00": 4, "08:30": 6}, rows[0].Intervals)

	assert.Equal(t, "하행", rows[1].Direction)
	assert.Equal(t, 0, rows[1].Intervals["08:00"])

	assert.Equal(t, transit.Saturday, rows[2].Day)
	assert.Equal(t, []string{"8:15"}, rows[2].Columns)
}

func TestLoadDataset(t *testing.T) {
	conn := openTestDB(t)
	_, err := conn.Exec(`INSERT INTO stations (row_index, name, line, lat, lng) VALUES (1, '화곡', '5', '37.5415', '126.8402');
		INSERT INTO schedule_intervals (row_index, slot_index, day_type, line, name, direction, time_slot, interval_min)
		VALUES (1, 1, '평일', '5', '화곡', '상행', '08:05', '4')`)
	require.NoError(t, err)

	ds, err := LoadDataset(context.Background(), conn)
	require.NoError(t, err)
	assert.Len(t, ds.Stations, 1)
	assert.Len(t, ds.Schedule, 1)
	assert.Zero(t, ds.DroppedStations)
	assert.Zero(t, ds.DroppedCells)
}

func TestLoadDatasetMissingTables(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = LoadDataset(context.Background(), conn)
	assert.ErrorContains(t, err, "query stations")
}

func TestOpenDatasetWithoutName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transit.db")
	conn, err := OpenDataset(context.Background(), "sqlite://"+path, "")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(testSchema)
	require.NoError(t, err)

	_, err = LoadDataset(context.Background(), conn)
	assert.NoError(t, err)
}

func TestOpenDatasetRejectsBadBaseDSN(t *testing.T) {
	_, err := OpenDataset(context.Background(), "sqlite:///data/transit.db", "seoul")
	assert.ErrorContains(t, err, "invalid base DSN")
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		dsn    string
		driver string
		source string
	}{
		{"postgres://u@h:5432/transit", "pgx", "postgres://u@h:5432/transit"},
		{"postgresql://u@h/transit", "pgx", "postgresql://u@h/transit"},
		{"host=localhost dbname=transit", "pgx", "host=localhost dbname=transit"},
		{"sqlite:///data/transit.db", "sqlite", "/data/transit.db"},
		{"../../data/transit.db", "sqlite", "../../data/transit.db"},
		{":memory:", "sqlite", ":memory:"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, source := driverFor(tt.dsn)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://user:pw@127.0.0.1:5432/postgres?sslmode=disable", "seoul_20261001")
	require.NoError(t, err)
	assert.Equal(t, "postgres://user:pw@127.0.0.1:5432/seoul_20261001?sslmode=disable", got)

	_, err = WithDBName("", "x")
	assert.Error(t, err)
	_, err = WithDBName("/data/transit.db", "x")
	assert.Error(t, err)
}
