package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Single connection: concurrent sqlite writers otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneClipCache removes clip cache rows older than the given age and returns
// the file paths they referenced so the caller can delete them.
func (d *DB) PruneClipCache(olderThan time.Duration) ([]string, error) {
	// Same layout as sqlite's CURRENT_TIMESTAMP.
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")

	rows, err := d.Query("SELECT path FROM clip_cache WHERE created_at < ?", deadline)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := d.Exec("DELETE FROM clip_cache WHERE created_at < ?", deadline); err != nil {
		return nil, err
	}
	return paths, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS poi (
			id TEXT PRIMARY KEY,
			name TEXT,
			lat REAL,
			lon REAL,
			audio_ref TEXT,
			duration_s REAL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_poi_lat_lon ON poi (lat, lon);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS clip_cache (
			key TEXT PRIMARY KEY,
			url TEXT,
			path TEXT,
			size INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: duration_s arrived after the first catalogue imports.
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('poi') WHERE name='duration_s'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE poi ADD COLUMN duration_s REAL DEFAULT 0"); err != nil {
			return fmt.Errorf("failed to add duration_s column: %w", err)
		}
	}

	return nil
}
