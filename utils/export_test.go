package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"daily-report-assistant/models"

	"gopkg.in/yaml.v3"
)

func sampleReport() models.ReportRecord {
	return models.ReportRecord{
		ID:          7,
		Type:        models.PeriodWeekly,
		Date:        "2024-06-05",
		Content:     "本周工作总结：\n\n主要成果：\n- 上线新版本",
		GeneratedAt: "2024-06-07T20:00:00+08:00",
		Method:      models.MethodTemplate,
	}
}

func TestExportReport_Formats(t *testing.T) {
	dir := t.TempDir()
	record := sampleReport()

	jsonPath := filepath.Join(dir, "r.json")
	if err := ExportReport(record, jsonPath, FormatJSON); err != nil {
		t.Fatalf("json export failed: %v", err)
	}
	var fromJSON ReportExport
	data, _ := os.ReadFile(jsonPath)
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("json export unreadable: %v", err)
	}
	if fromJSON.Content != record.Content || fromJSON.Label != "周报" {
		t.Errorf("Unexpected json export: %+v", fromJSON)
	}

	yamlPath := filepath.Join(dir, "r.yaml")
	if err := ExportReport(record, yamlPath, FormatYAML); err != nil {
		t.Fatalf("yaml export failed: %v", err)
	}
	var fromYAML ReportExport
	data, _ = os.ReadFile(yamlPath)
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("yaml export unreadable: %v", err)
	}
	if fromYAML.Content != record.Content || fromYAML.ID != 7 {
		t.Errorf("Unexpected yaml export: %+v", fromYAML)
	}

	mdPath := filepath.Join(dir, "r.md")
	if err := ExportReport(record, mdPath, FormatMarkdown); err != nil {
		t.Fatalf("markdown export failed: %v", err)
	}
	data, _ = os.ReadFile(mdPath)
	if !strings.HasPrefix(string(data), "# 周报 2024-06-05") {
		t.Errorf("Unexpected markdown header: %s", data)
	}
}

func TestExportWorkLogs_MarkdownGroupsByDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.md")
	entries := []models.LogEntry{
		{ID: 2, Date: "2024-06-05", Time: "10:00", Content: "评审", Category: "会议", Priority: "中", Status: "已完成"},
		{ID: 1, Date: "2024-06-03", Time: "09:00", Content: "编码", Category: "工作", Priority: "高", Status: "进行中", Tags: []string{"api"}},
	}
	if err := ExportWorkLogs(entries, path, FormatMarkdown); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Index(out, "## 2024-06-03") > strings.Index(out, "## 2024-06-05") {
		t.Errorf("Dates should be ascending:\n%s", out)
	}
	if !strings.Contains(out, "#api") {
		t.Errorf("Tags missing:\n%s", out)
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := map[string]ExportFormat{"md": FormatMarkdown, "JSON": FormatJSON, "yml": FormatYAML, "": FormatText}
	for in, want := range tests {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseExportFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseExportFormat("pdf"); err == nil {
		t.Errorf("Expected error for pdf")
	}
}

func TestGenerateExportFilename(t *testing.T) {
	name := GenerateExportFilename("周报:2024/06", FormatMarkdown)
	if strings.ContainsAny(name, ":/") {
		t.Errorf("Filename not sanitized: %s", name)
	}
	if !strings.HasSuffix(name, ".md") {
		t.Errorf("Expected .md suffix: %s", name)
	}
}

func TestExportWorkLogs_YAMLUsesDocumentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.yaml")
	entries := []models.LogEntry{
		{ID: 7, Date: "2024-06-03", Time: "09:00", Content: "站会", Category: "会议", Priority: "中", Status: "已完成", Tags: []string{}, CreatedAt: "2024-06-03T09:00:00.000000000+08:00"},
	}
	if err := ExportWorkLogs(entries, path, FormatYAML); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	out := string(data)
	for _, key := range []string{"type: 会议", "created_at:", "exported_at:"} {
		if !strings.Contains(out, key) {
			t.Errorf("Expected %q in yaml export:\n%s", key, out)
		}
	}
	for _, key := range []string{"category:", "createdat:", "updatedat:"} {
		if strings.Contains(out, key) {
			t.Errorf("Unexpected key %q in yaml export:\n%s", key, out)
		}
	}
}
