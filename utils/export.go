package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daily-report-assistant/models"

	"gopkg.in/yaml.v3"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
	FormatYAML     ExportFormat = "yaml"
	FormatText     ExportFormat = "txt"
)

// ParseExportFormat maps a user supplied name or extension to a format
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "txt", "text", "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ReportExport represents a report export structure
type ReportExport struct {
	ID          int64  `json:"id" yaml:"id"`
	Type        string `json:"type" yaml:"type"`
	Label       string `json:"label" yaml:"label"`
	Date        string `json:"date" yaml:"date"`
	Method      string `json:"method" yaml:"method"`
	GeneratedAt string `json:"generated_at" yaml:"generated_at"`
	ExportedAt  string `json:"exported_at" yaml:"exported_at"`
	Content     string `json:"content" yaml:"content"`
}

// WorkLogExport represents a work log export structure
type WorkLogExport struct {
	ExportedAt string            `json:"exported_at" yaml:"exported_at"`
	Count      int               `json:"count" yaml:"count"`
	Entries    []models.LogEntry `json:"entries" yaml:"entries"`
}

// ExportReport writes one report to path in the given format
func ExportReport(record models.ReportRecord, path string, format ExportFormat) error {
	export := ReportExport{
		ID:          record.ID,
		Type:        string(record.Type),
		Label:       record.Type.Label(),
		Date:        record.Date,
		Method:      record.Method,
		GeneratedAt: record.GeneratedAt,
		ExportedAt:  models.FormatTimestamp(time.Now()),
		Content:     record.Content,
	}

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = marshalJSON(export)
	case FormatYAML:
		data, err = yaml.Marshal(export)
	case FormatMarkdown:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# %s %s\n\n", export.Label, export.Date))
		sb.WriteString(fmt.Sprintf("**Generated:** %s  \n", export.GeneratedAt))
		if export.Method != "" {
			sb.WriteString(fmt.Sprintf("**Method:** %s  \n", export.Method))
		}
		sb.WriteString("\n---\n\n")
		sb.WriteString(export.Content)
		sb.WriteString("\n")
		data = []byte(sb.String())
	default:
		data = []byte(export.Content)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return WriteTextFile(path, string(data))
}

// ExportWorkLogs writes entries to path in the given format
func ExportWorkLogs(entries []models.LogEntry, path string, format ExportFormat) error {
	export := WorkLogExport{
		ExportedAt: models.FormatTimestamp(time.Now()),
		Count:      len(entries),
		Entries:    SortedByDate(entries),
	}

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = marshalJSON(export)
	case FormatYAML:
		data, err = yaml.Marshal(export)
	case FormatMarkdown:
		var sb strings.Builder
		sb.WriteString("# 工作日志\n\n")
		lastDate := ""
		for _, e := range export.Entries {
			if e.Date != lastDate {
				sb.WriteString(fmt.Sprintf("\n## %s\n\n", e.Date))
				lastDate = e.Date
			}
			sb.WriteString(fmt.Sprintf("- %s %s [%s/%s/%s]", e.Time, e.Content, e.Category, e.Priority, e.Status))
			if len(e.Tags) > 0 {
				sb.WriteString(" #" + strings.Join(e.Tags, " #"))
			}
			sb.WriteString("\n")
		}
		data = []byte(sb.String())
	default:
		var sb strings.Builder
		for _, e := range export.Entries {
			sb.WriteString(fmt.Sprintf("%s %s\t%s\t%s\t%s\t%s\n", e.Date, e.Time, e.Category, e.Priority, e.Status, e.Content))
		}
		data = []byte(sb.String())
	}
	if err != nil {
		return fmt.Errorf("failed to marshal work logs: %w", err)
	}

	return WriteTextFile(path, string(data))
}

func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			return '_'
		}
		return r
	}, title)

	if runes := []rune(sanitized); len(runes) > 50 {
		sanitized = string(runes[:50])
	}

	timestamp := time.Now().Format("20060102_150405")
	ext := string(format)
	switch format {
	case FormatMarkdown:
		ext = "md"
	case FormatYAML:
		ext = "yaml"
	}

	return fmt.Sprintf("%s_%s.%s", sanitized, timestamp, ext)
}

// GetDefaultExportPath returns the default export directory
func GetDefaultExportPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(homeDir, "Documents", "WorkReports")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}

	return exportDir, nil
}
