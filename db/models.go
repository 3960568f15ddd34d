package db

import "daily-report-assistant/models"

// Report is an archived report row
type Report struct {
	ID          int64  `json:"id"`
	HistoryID   int64  `json:"history_id"` // identifier in the config report history
	Type        string `json:"type"`
	Date        string `json:"date"`
	Content     string `json:"content"`
	Method      string `json:"method"`
	GeneratedAt string `json:"generated_at"`
	ArchivedAt  string `json:"archived_at"`
}

// FromRecord converts a history record into an archive row
func FromRecord(r models.ReportRecord) *Report {
	return &Report{
		HistoryID:   r.ID,
		Type:        string(r.Type),
		Date:        r.Date,
		Content:     r.Content,
		Method:      r.Method,
		GeneratedAt: r.GeneratedAt,
	}
}

// Submission is one automatic submission attempt
type Submission struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SubmittedAt string `json:"submitted_at"`
}
