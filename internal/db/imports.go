package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"subway-congestion-map/internal/transit"
)

// ResolveLatestImportDBName returns the db_name with the most recent imported_at
// from public.latest_successful_imports where db_name ILIKE '%dataset%'. The
// congestion table loader creates one database per import and records it in
// that catalogue on the cluster's 'postgres' database.
func ResolveLatestImportDBName(ctx context.Context, meta *sql.DB, dataset string) (string, error) {
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return "", fmt.Errorf("dataset is required")
	}
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var dbName sql.NullString
	if err := meta.QueryRowContext(ctx, q, dataset).Scan(&dbName); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no database found for dataset like %q", dataset)
		}
		return "", err
	}
	if !dbName.Valid || dbName.String == "" {
		return "", fmt.Errorf("empty db_name for dataset like %q", dataset)
	}
	return dbName.String, nil
}

// OpenDataset connects to databaseURL. With a dataset name, the newest
// imported database matching it is looked up on the cluster's 'postgres'
// database first and opened instead.
func OpenDataset(ctx context.Context, databaseURL, dataset string) (*sql.DB, error) {
	finalDSN := databaseURL
	if dataset != "" {
		rootDSN, err := WithDBName(databaseURL, "postgres")
		if err != nil {
			return nil, fmt.Errorf("invalid base DSN: %w", err)
		}
		metaDB, err := Open(rootDSN)
		if err != nil {
			return nil, fmt.Errorf("open meta db: %w", err)
		}
		defer metaDB.Close()
		if err := Ping(ctx, metaDB); err != nil {
			return nil, fmt.Errorf("ping meta db: %w", err)
		}
		name, err := ResolveLatestImportDBName(ctx, metaDB, dataset)
		if err != nil {
			return nil, fmt.Errorf("resolve latest import for dataset %q: %w", dataset, err)
		}
		if finalDSN, err = WithDBName(databaseURL, name); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
		log.Printf("Using database %q for dataset %q", name, dataset)
	}

	sqlDB, err := Open(finalDSN)
	if err != nil {
		return nil, err
	}
	if err := Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// Dataset is everything loaded from the data source at startup.
type Dataset struct {
	Stations        []transit.Station
	Schedule        []transit.ScheduleRow
	DroppedStations int
	DroppedCells    int
}

func LoadDataset(ctx context.Context, db *sql.DB) (*Dataset, error) {
	stations, droppedStations, err := FetchStations(ctx, db)
	if err != nil {
		return nil, err
	}
	rows, droppedCells, err := FetchScheduleRows(ctx, db)
	if err != nil {
		return nil, err
	}
	if droppedStations > 0 || droppedCells > 0 {
		log.Printf("dataset: dropped %d station rows and %d schedule cells", droppedStations, droppedCells)
	}
	return &Dataset{
		Stations:        stations,
		Schedule:        rows,
		DroppedStations: droppedStations,
		DroppedCells:    droppedCells,
	}, nil
}
