package db

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// DBStats represents archive statistics
type DBStats struct {
	ReportCount     int64
	SubmissionCount int64
	ByType          map[string]int64
	ByMethod        map[string]int64
	LatestReport    string // generated_at of the newest report
	DBSizeBytes     int64
}

// HumanSize renders the database size for display
func (s *DBStats) HumanSize() string {
	return humanize.Bytes(uint64(s.DBSizeBytes))
}

// LatestAgo renders how long ago the newest report was generated
func (s *DBStats) LatestAgo() string {
	if s.LatestReport == "" {
		return "never"
	}
	t, err := time.Parse(time.RFC3339, s.LatestReport)
	if err != nil {
		return s.LatestReport
	}
	return humanize.Time(t)
}

// GetStats returns archive statistics
func (db *DB) GetStats() (*DBStats, error) {
	stats := &DBStats{
		ByType:   make(map[string]int64),
		ByMethod: make(map[string]int64),
	}

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM reports").Scan(&stats.ReportCount); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM submissions").Scan(&stats.SubmissionCount); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(generated_at), '') FROM reports").Scan(&stats.LatestReport); err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}

	if err := db.countBy("type", stats.ByType); err != nil {
		return nil, err
	}
	if err := db.countBy("method", stats.ByMethod); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	stats.DBSizeBytes = pageCount * pageSize

	return stats, nil
}

// countBy fills into with report counts grouped by column
func (db *DB) countBy(column string, into map[string]int64) error {
	rows, err := db.conn.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM reports GROUP BY %s", column, column))
	if err != nil {
		return fmt.Errorf("failed to count reports by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}
