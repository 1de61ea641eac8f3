// Package sqlite is the relational store for stations and measurements.
//
// Every public method opens the database file, does its work and closes the
// handle before returning, so nothing is held open across the orchestrator's
// retry waits.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/hydro-ingest/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS Stations (
	identifier TEXT PRIMARY KEY,
	name       TEXT
);
CREATE TABLE IF NOT EXISTS Measurements (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id TEXT,
	type       TEXT,
	value      REAL,
	unit       TEXT,
	timestamp  TEXT,
	FOREIGN KEY (station_id) REFERENCES Stations (identifier)
);
CREATE UNIQUE INDEX IF NOT EXISTS unique_measurement
	ON Measurements (station_id, type, unit, timestamp);
`

const (
	insertStation = `INSERT OR IGNORE INTO Stations (identifier, name) VALUES (?, ?)`

	upsertMeasurement = `INSERT INTO Measurements (station_id, type, value, unit, timestamp)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (station_id, type, unit, timestamp) DO UPDATE SET value = excluded.value`
)

// Store persists to a single SQLite file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a Store for the database file at path. The file is created
// on first use.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", s.path, err)
	}
	return db, nil
}

// CreateSchema creates the tables and the uniqueness index if absent.
func (s *Store) CreateSchema(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// UpsertStation inserts a station. An existing station keeps its name.
func (s *Store) UpsertStation(ctx context.Context, id, name string) error {
	return s.UpsertStations(ctx, []domain.Station{{Identifier: id, Name: name}})
}

// UpsertStations inserts every station in one transaction, ignoring the ones
// already present.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertStation)
		if err != nil {
			return fmt.Errorf("prepare station insert: %w", err)
		}
		defer stmt.Close()

		for _, st := range stations {
			if _, err := stmt.ExecContext(ctx, st.Identifier, st.Name); err != nil {
				return fmt.Errorf("insert station %s: %w", st.Identifier, classify(err))
			}
		}
		return nil
	})
}

// UpsertMeasurements writes the batch atomically. Rows whose
// (station_id, type, unit, timestamp) already exist get the new value; the
// others are inserted. Either the whole batch commits or none of it does.
func (s *Store) UpsertMeasurements(ctx context.Context, batch []domain.Measurement) error {
	if len(batch) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertMeasurement)
		if err != nil {
			return fmt.Errorf("prepare measurement upsert: %w", err)
		}
		defer stmt.Close()

		for _, m := range batch {
			if _, err := stmt.ExecContext(ctx, m.StationID, m.Type, m.Value, m.Unit, m.Timestamp); err != nil {
				return fmt.Errorf("upsert measurement %s: %w", m.Key(), classify(err))
			}
		}
		return nil
	})
}

// CountMeasurements returns the number of stored measurement rows.
func (s *Store) CountMeasurements(ctx context.Context) (int, error) {
	db, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Measurements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count measurements: %w", err)
	}
	return n, nil
}

// StationNames returns identifier → name for every stored station.
func (s *Store) StationNames(ctx context.Context) (map[string]string, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT identifier, name FROM Stations`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

// Measurements returns the stored measurements of one station ordered by
// type, unit and timestamp.
func (s *Store) Measurements(ctx context.Context, stationID string) ([]domain.Measurement, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT station_id, type, value, unit, timestamp
FROM Measurements WHERE station_id = ? ORDER BY type, unit, timestamp`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []domain.Measurement
	for rows.Next() {
		var m domain.Measurement
		if err := rows.Scan(&m.StationID, &m.Type, &m.Value, &m.Unit, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping opens and closes the database, reporting whether the file is usable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// classify maps SQLite constraint failures to domain.ErrStoreIntegrity.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", domain.ErrStoreIntegrity, err)
	}
	return err
}
