package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"daily-report-assistant/db"
	"daily-report-assistant/llm"
	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

var (
	// ErrNoEntries means the requested range holds no log entries
	ErrNoEntries = errors.New("no work log entries in range")
	// ErrAIUnavailable means AI generation was required but is not configured
	ErrAIUnavailable = errors.New("AI generation is not configured")
)

// Store is the configuration access the generator needs
type Store interface {
	WorkLogs() []models.LogEntry
	Template(name string) string
	AIConfig() utils.AIConfig
	PrivacyConfig() utils.PrivacyConfig
	ReportHistory() []models.ReportRecord
	AddReportHistory(record models.ReportRecord) (models.ReportRecord, error)
	DeleteReportHistory(id int64) error
	ClearReportHistory() error
}

// Archive mirrors the saved report history
type Archive interface {
	SaveReport(r *db.Report) error
	DeleteByHistoryID(historyIDs ...int64) error
}

// CompleterFactory builds the AI backend from the persisted settings
type CompleterFactory func(cfg utils.AIConfig, privacy utils.PrivacyConfig, logger *utils.Logger) (llm.Completer, error)

// Options configures a Generator
type Options struct {
	Archive      Archive
	Clock        utils.Clock
	Logger       *utils.Logger
	NewCompleter CompleterFactory
}

// Report is one generated report before it is saved
type Report struct {
	Period  models.Period
	Date    string // target date
	Start   string
	End     string
	Content string
	Method  string
	Entries int
}

// Generator assembles reports from the work log
type Generator struct {
	store        Store
	archive      Archive
	clock        utils.Clock
	logger       *utils.Logger
	newCompleter CompleterFactory

	mu           sync.RWMutex
	writer       *llm.ReportWriter
	systemPrompt string
}

// NewGenerator creates a generator and builds the AI backend if configured
func NewGenerator(store Store, opts Options) *Generator {
	g := &Generator{
		store:        store,
		archive:      opts.Archive,
		clock:        opts.Clock,
		logger:       opts.Logger,
		newCompleter: opts.NewCompleter,
	}
	if g.clock == nil {
		g.clock = utils.SystemClock{}
	}
	if g.newCompleter == nil {
		g.newCompleter = DefaultCompleter
	}
	g.Refresh()
	return g
}

// DefaultCompleter builds an llm.Client with redaction enabled per privacy
func DefaultCompleter(cfg utils.AIConfig, privacy utils.PrivacyConfig, logger *utils.Logger) (llm.Completer, error) {
	clientCfg := llm.ConfigFromAI(cfg)
	clientCfg.Logger = logger
	if privacy.AnonymizeSensitiveData {
		clientCfg.Anonymizer = utils.NewAnonymizer(privacy)
	}
	return llm.NewClient(clientCfg)
}

// Refresh rebuilds the AI backend from the current settings
func (g *Generator) Refresh() {
	cfg := g.store.AIConfig()

	var writer *llm.ReportWriter
	if cfg.Enabled && cfg.APIKey != "" {
		completer, err := g.newCompleter(cfg, g.store.PrivacyConfig(), g.logger)
		if err != nil {
			g.logger.Error("Failed to initialize AI client: %v", err)
		} else {
			writer = llm.NewReportWriter(completer)
		}
	}

	prompt := cfg.SystemPrompt
	if prompt == utils.DefaultSystemPrompt {
		prompt = ""
	}

	g.mu.Lock()
	g.writer = writer
	g.systemPrompt = prompt
	g.mu.Unlock()
}

// AIAvailable reports whether AI generation is configured
func (g *Generator) AIAvailable() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.writer != nil
}

func (g *Generator) aiWriter() (*llm.ReportWriter, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.writer, g.systemPrompt
}

// DateRange returns the inclusive date range of period around target
func DateRange(period models.Period, target time.Time) (string, string) {
	day := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, target.Location())
	switch period {
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return start.Format(models.DateLayout), start.AddDate(0, 0, 6).Format(models.DateLayout)
	case models.PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return start.Format(models.DateLayout), end.Format(models.DateLayout)
	default:
		d := day.Format(models.DateLayout)
		return d, d
	}
}

// PeriodStart returns the first day of the period containing t
func PeriodStart(period models.Period, t time.Time) string {
	start, _ := DateRange(period, t)
	return start
}

// EntriesInRange returns entries dated within [start, end], ascending by date
func (g *Generator) EntriesInRange(start, end string) []models.LogEntry {
	var out []models.LogEntry
	for _, e := range g.store.WorkLogs() {
		if e.Date >= start && e.Date <= end {
			out = append(out, e)
		}
	}
	return utils.SortedByDate(out)
}

// Generate returns the report text for period around target
func (g *Generator) Generate(ctx context.Context, period models.Period, target time.Time, useAI bool) (string, error) {
	r, err := g.GenerateReport(ctx, period, target, useAI)
	if err != nil {
		return "", err
	}
	return r.Content, nil
}

// GenerateReport is Generate with the range and method attached
func (g *Generator) GenerateReport(ctx context.Context, period models.Period, target time.Time, useAI bool) (*Report, error) {
	start, end := DateRange(period, target)
	entries := g.EntriesInRange(start, end)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s %s..%s: %w", period, start, end, ErrNoEntries)
	}

	r := &Report{
		Period:  period,
		Date:    target.Format(models.DateLayout),
		Start:   start,
		End:     end,
		Entries: len(entries),
	}

	writer, prompt := g.aiWriter()
	if useAI && writer != nil {
		content, err := g.writeWithAI(ctx, writer, period, entries, prompt)
		if err != nil {
			g.logger.Error("AI %s report failed: %v", period, err)
			return nil, err
		}
		r.Content, r.Method = content, models.MethodAI
		return r, nil
	}

	r.Content = g.renderTemplate(period, entries)
	r.Method = models.MethodTemplate
	return r, nil
}

func (g *Generator) writeWithAI(ctx context.Context, w *llm.ReportWriter, period models.Period, entries []models.LogEntry, prompt string) (string, error) {
	switch period {
	case models.PeriodWeekly:
		return w.WeeklyReport(ctx, entries, prompt)
	case models.PeriodMonthly:
		return w.MonthlyReport(ctx, entries, prompt)
	default:
		return w.DailyReport(ctx, entries, prompt)
	}
}

func (g *Generator) renderTemplate(period models.Period, entries []models.LogEntry) string {
	name := string(period)
	if period == models.PeriodCustom {
		name = string(models.PeriodDaily)
	}
	tmpl := g.store.Template(name)
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate(period)
	}
	return RenderTemplate(tmpl, FormatForTemplate(entries))
}

// GenerateSmart builds content for an automatic submission
// The range runs from the start of the current period to today. Without AI the
// template path is used; an empty period yields the canned filler text.
func (g *Generator) GenerateSmart(ctx context.Context, period models.Period) (string, error) {
	now := g.clock.Now()
	today := now.Format(models.DateLayout)
	entries := g.EntriesInRange(PeriodStart(period, now), today)

	writer, _ := g.aiWriter()
	if writer != nil {
		content, err := writer.SmartReport(ctx, entries, period)
		if err == nil {
			return content, nil
		}
		g.logger.Warn("AI %s report failed, falling back to template: %v", period, err)
	}

	if len(entries) == 0 {
		return llm.FillerText(period), nil
	}
	return g.renderTemplate(period, entries), nil
}

// GenerateCustom answers a free-form request over an arbitrary range
func (g *Generator) GenerateCustom(ctx context.Context, start, end, prompt string) (string, error) {
	writer, systemPrompt := g.aiWriter()
	if writer == nil {
		return "", ErrAIUnavailable
	}
	entries := g.EntriesInRange(start, end)
	if len(entries) == 0 {
		return "", fmt.Errorf("%s..%s: %w", start, end, ErrNoEntries)
	}
	return writer.CustomReport(ctx, entries, prompt, systemPrompt)
}

// Enhance rewrites text in one of the llm enhancement styles
func (g *Generator) Enhance(ctx context.Context, text, style string) (string, error) {
	writer, _ := g.aiWriter()
	if writer == nil {
		return "", ErrAIUnavailable
	}
	return writer.EnhanceReport(ctx, text, style)
}

// Save appends content to the report history
// The method is recorded as ai whenever AI generation is configured.
func (g *Generator) Save(content string, period models.Period, date string) (models.ReportRecord, error) {
	method := models.MethodTemplate
	if g.AIAvailable() {
		method = models.MethodAI
	}
	return g.SaveReport(&Report{Period: period, Date: date, Content: content, Method: method})
}

// SaveReport appends r to the history and mirrors it into the archive
func (g *Generator) SaveReport(r *Report) (models.ReportRecord, error) {
	date := r.Date
	if date == "" {
		date = g.clock.Now().Format(models.DateLayout)
	}

	record, err := g.store.AddReportHistory(models.ReportRecord{
		Type:        r.Period,
		Date:        date,
		Content:     r.Content,
		GeneratedAt: models.FormatTimestamp(g.clock.Now()),
		Method:      r.Method,
	})
	if err != nil {
		return record, fmt.Errorf("failed to save report: %w", err)
	}

	if g.archive != nil {
		if err := g.archive.SaveReport(db.FromRecord(record)); err != nil {
			g.logger.Warn("Failed to archive report %d: %v", record.ID, err)
		}
	}
	return record, nil
}

// History returns saved reports newest first, optionally filtered by period
func (g *Generator) History(period models.Period, limit int) []models.ReportRecord {
	var out []models.ReportRecord
	for _, r := range g.store.ReportHistory() {
		if period == "" || r.Type == period {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt > out[j].GeneratedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delete removes one saved report and its archived copy
func (g *Generator) Delete(id int64) error {
	if err := g.store.DeleteReportHistory(id); err != nil {
		return err
	}
	g.unarchive(id)
	return nil
}

// Clear removes every saved report and their archived copies
func (g *Generator) Clear() error {
	var ids []int64
	for _, r := range g.store.ReportHistory() {
		ids = append(ids, r.ID)
	}
	if err := g.store.ClearReportHistory(); err != nil {
		return err
	}
	g.unarchive(ids...)
	return nil
}

func (g *Generator) unarchive(ids ...int64) {
	if g.archive == nil || len(ids) == 0 {
		return
	}
	if err := g.archive.DeleteByHistoryID(ids...); err != nil {
		g.logger.Warn("Failed to remove archived reports %v: %v", ids, err)
	}
}

// Statistics summarizes the report history
type Statistics struct {
	Total             int    `json:"total_reports"`
	Daily             int    `json:"daily_reports"`
	Weekly            int    `json:"weekly_reports"`
	Monthly           int    `json:"monthly_reports"`
	AIGenerated       int    `json:"ai_generated"`
	TemplateGenerated int    `json:"template_generated"`
	LatestReportDate  string `json:"latest_report_date"`
}

// Statistics counts the saved reports
func (g *Generator) Statistics() Statistics {
	var s Statistics
	for _, r := range g.store.ReportHistory() {
		s.Total++
		switch r.Type {
		case models.PeriodDaily:
			s.Daily++
		case models.PeriodWeekly:
			s.Weekly++
		case models.PeriodMonthly:
			s.Monthly++
		}
		switch r.Method {
		case models.MethodAI:
			s.AIGenerated++
		case models.MethodTemplate:
			s.TemplateGenerated++
		}
		if r.GeneratedAt > s.LatestReportDate {
			s.LatestReportDate = r.GeneratedAt
		}
	}
	return s
}

// ExportToFile writes content to filename, or to a timestamped file when empty
func (g *Generator) ExportToFile(content, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("report_%s.txt", g.clock.Now().Format("20060102_150405"))
	}
	if err := utils.WriteTextFile(filename, content); err != nil {
		g.logger.Error("Failed to export report: %v", err)
		return "", err
	}
	return filename, nil
}

// Request describes one user-triggered generation
type Request struct {
	Period models.Period
	Target time.Time
	UseAI  bool
}

// Result is delivered once per GenerateAsync call
type Result struct {
	Report *Report
	Err    error
}

// GenerateAsync runs one generation on a short-lived goroutine
// Exactly one Result is sent on done, even if generation panics.
func (g *Generator) GenerateAsync(ctx context.Context, req Request, done chan<- Result) {
	utils.SafeGo(g.logger, "report generation", func() {
		var r *Report
		err := utils.CatchPanic(g.logger, "report generation", func() error {
			var err error
			r, err = g.GenerateReport(ctx, req.Period, req.Target, req.UseAI)
			return err
		})
		done <- Result{Report: r, Err: err}
	})
}
