// Package archive is the local flight recorder: every published snapshot
// is appended to a sqlite database so telemetry survives link outages and
// can be replayed after recovery. Only the publisher goroutine writes to
// it; other tools may read the file concurrently.
package archive

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	_ "modernc.org/sqlite"

	"github.com/blobcode/novaGround/internal/telemetry"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Archive is an open flight recorder database.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies any
// pending schema migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	return &Archive{db: db}, nil
}

// StoreBatch appends one published batch. All readings of the batch share
// the publish timestamp, so a replay can reconstruct snapshot boundaries.
func (a *Archive) StoreBatch(publishedAt time.Time, b telemetry.Batch) error {
	if len(b) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("archive batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO readings (published_at, channel_id, value, captured_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("archive batch: %w", err)
	}
	defer stmt.Close()

	published := publishedAt.UnixMilli()
	for _, r := range b {
		if _, err := stmt.Exec(published, r.ID, r.Value, r.CapturedAt); err != nil {
			return fmt.Errorf("archive reading for channel %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive batch: %w", err)
	}
	return nil
}

// CountReadings returns the number of stored readings.
func (a *Archive) CountReadings() (int64, error) {
	var n int64
	if err := a.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
