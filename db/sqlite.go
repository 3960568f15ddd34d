package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite report archive
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the archive at dbPath
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations
func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			history_id INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			generated_at TEXT NOT NULL DEFAULT '',
			archived_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		)`,

		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			date TEXT NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			submitted_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reports_type_generated ON reports(type, generated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_date ON reports(date)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_type_date ON submissions(type, date)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// Vacuum optimizes the database file
func (db *DB) Vacuum() error {
	if _, err := db.conn.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
