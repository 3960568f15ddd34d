package db

import (
	"database/sql"
	"errors"
	"fmt"
)

const reportColumns = "id, history_id, type, date, content, method, generated_at, archived_at"

// SaveReport archives a report and sets its ID
func (db *DB) SaveReport(r *Report) error {
	result, err := db.conn.Exec(
		"INSERT INTO reports (history_id, type, date, content, method, generated_at) VALUES (?, ?, ?, ?, ?, ?)",
		r.HistoryID, r.Type, r.Date, r.Content, r.Method, r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get report ID: %w", err)
	}
	r.ID = id
	return nil
}

// GetReport returns one archived report
func (db *DB) GetReport(id int64) (*Report, error) {
	row := db.conn.QueryRow("SELECT "+reportColumns+" FROM reports WHERE id = ?", id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d not found", id)
	}
	return r, err
}

// ListReports returns archived reports newest first
// An empty reportType lists every type; limit <= 0 means no limit.
func (db *DB) ListReports(reportType string, limit int) ([]*Report, error) {
	query := "SELECT " + reportColumns + " FROM reports"
	var args []interface{}
	if reportType != "" {
		query += " WHERE type = ?"
		args = append(args, reportType)
	}
	query += " ORDER BY generated_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// DeleteReport removes one archived report
func (db *DB) DeleteReport(id int64) error {
	if _, err := db.conn.Exec("DELETE FROM reports WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// DeleteByHistoryID removes the archived copies of the given history records
func (db *DB) DeleteByHistoryID(historyIDs ...int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range historyIDs {
		if _, err := tx.Exec("DELETE FROM reports WHERE history_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete archived report %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// RecordSubmission logs an automatic submission attempt
func (db *DB) RecordSubmission(s *Submission) error {
	result, err := db.conn.Exec(
		"INSERT INTO submissions (type, date, success, message, submitted_at) VALUES (?, ?, ?, ?, ?)",
		s.Type, s.Date, s.Success, s.Message, s.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	s.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get submission ID: %w", err)
	}
	return nil
}

// ListSubmissions returns the most recent submission attempts
func (db *DB) ListSubmissions(limit int) ([]*Submission, error) {
	rows, err := db.conn.Query(
		"SELECT id, type, date, success, message, submitted_at FROM submissions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.Type, &s.Date, &s.Success, &s.Message, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(s scanner) (*Report, error) {
	var r Report
	if err := s.Scan(&r.ID, &r.HistoryID, &r.Type, &r.Date, &r.Content, &r.Method, &r.GeneratedAt, &r.ArchivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}
	return &r, nil
}
