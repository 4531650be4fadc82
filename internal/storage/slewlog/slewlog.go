// Package slewlog persists finished slews to a local SQLite database so the
// REST API can serve pointing history across restarts.
package slewlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chrissnell/remotescope/internal/log"
	"github.com/chrissnell/remotescope/internal/types"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS slews (
	session_id  TEXT PRIMARY KEY,
	mount_name  TEXT NOT NULL,
	ra_hours    REAL NOT NULL,
	dec_degrees REAL NOT NULL,
	pier_side   TEXT NOT NULL,
	result      TEXT NOT NULL,
	loops       INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS slews_finished_at ON slews (finished_at);
`

// Storage is a slew-history backend on a single SQLite file.
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema exists.
// The path ":memory:" gives an ephemeral database.
func New(path string) (*Storage, error) {
	log.Info("opening slew log database:", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening slew log %s: %w", path, err)
	}

	// modernc's driver is not safe for concurrent writes on one file; a
	// single connection serializes everything through database/sql.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating slew log schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Record stores one finished slew.
func (s *Storage) Record(rec types.SlewRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO slews (session_id, mount_name, ra_hours, dec_degrees, pier_side, result, loops, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.MountName, rec.RAHours, rec.DECDegrees, rec.PierSide,
		rec.Result, rec.Loops, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		log.Error("could not store slew record:", err)
		return err
	}
	return nil
}

// Recent returns up to limit slews, most recently finished first.
func (s *Storage) Recent(limit int) ([]types.SlewRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT session_id, mount_name, ra_hours, dec_degrees, pier_side, result, loops, started_at, finished_at
		 FROM slews ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying slew log: %w", err)
	}
	defer rows.Close()

	var recs []types.SlewRecord
	for rows.Next() {
		var rec types.SlewRecord
		var started, finished time.Time
		if err := rows.Scan(&rec.SessionID, &rec.MountName, &rec.RAHours, &rec.DECDegrees,
			&rec.PierSide, &rec.Result, &rec.Loops, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning slew record: %w", err)
		}
		rec.StartedAt = started
		rec.FinishedAt = finished
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close releases the database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}
