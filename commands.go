package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"daily-report-assistant/feishu"
	"daily-report-assistant/llm"
	"daily-report-assistant/models"
	"daily-report-assistant/report"
	"daily-report-assistant/scheduler"
	"daily-report-assistant/utils"
)

var errArchiveDisabled = errors.New("report archive is disabled")

func (a *app) printf(format string, v ...interface{}) {
	fmt.Fprintf(a.out, format, v...)
}

func (a *app) backupConfig(path string) error {
	if err := a.store.Backup(path); err != nil {
		return err
	}
	a.printf("%s 配置已备份到 %s\n", okMark(true), path)
	return nil
}

func (a *app) restoreConfig(path string) error {
	if err := a.store.Restore(path); err != nil {
		return err
	}
	a.printf("%s 已从 %s 恢复配置\n", okMark(true), path)
	return nil
}

func (a *app) deleteEntry(id int64) error {
	if err := a.store.DeleteWorkLog(id); err != nil {
		return err
	}
	a.printf("%s 已删除工作记录 #%d\n", okMark(true), id)
	return nil
}

func (a *app) deleteReport(id int64) error {
	if err := a.generator.Delete(id); err != nil {
		return err
	}
	a.printf("%s 已删除报告 #%d\n", okMark(true), id)
	return nil
}

func (a *app) clearHistory() error {
	n := len(a.store.ReportHistory())
	if err := a.generator.Clear(); err != nil {
		return err
	}
	a.printf("%s 已清空 %d 份报告\n", okMark(true), n)
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (a *app) addEntry(opts options) error {
	entry := models.LogEntry{
		Date:     opts.date,
		Content:  strings.TrimSpace(opts.add),
		Category: orDefault(opts.category, models.CategoryWork),
		Priority: orDefault(opts.priority, models.PriorityMedium),
		Status:   orDefault(opts.status, models.StatusInProgress),
		Tags:     splitTags(opts.tags),
	}
	if entry.Content == "" {
		return errors.New("work log content is empty")
	}
	if entry.Date != "" {
		if _, err := time.Parse(models.DateLayout, entry.Date); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", entry.Date)
		}
	}
	if !oneOf(entry.Priority, models.Priorities) {
		return fmt.Errorf("invalid priority %q, want one of %s", entry.Priority, strings.Join(models.Priorities, "/"))
	}
	if !oneOf(entry.Status, models.Statuses) {
		return fmt.Errorf("invalid status %q, want one of %s", entry.Status, strings.Join(models.Statuses, "/"))
	}

	saved, err := a.store.AddWorkLog(entry)
	if err != nil {
		return err
	}
	a.printf("%s 已添加工作记录 #%d (%s %s)\n", okMark(true), saved.ID, saved.Date, saved.Time)
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (a *app) listEntries(date string) error {
	var entries []models.LogEntry
	for _, e := range a.store.WorkLogs() {
		if date == "" || e.Date == date {
			entries = append(entries, e)
		}
	}
	entries = utils.SortedByDate(entries)

	if len(entries) == 0 {
		a.printf("%s\n", subtitleStyle.Render("暂无工作记录"))
		return nil
	}

	a.printf("%s\n", titleStyle.Render(fmt.Sprintf("工作记录 (%d)", len(entries))))
	for _, e := range entries {
		line := fmt.Sprintf("#%-4d %s %s [%s] %s %s %s",
			e.ID, e.Date, e.Time, e.Category,
			priorityStyle(e.Priority).Render(e.Priority), e.Status, e.Content)
		if len(e.Tags) > 0 {
			line += subtitleStyle.Render(" #" + strings.Join(e.Tags, " #"))
		}
		a.printf("%s\n", line)
	}
	return nil
}

func (a *app) targetDate(date string) (time.Time, error) {
	if date == "" {
		return a.clock.Now(), nil
	}
	t, err := time.ParseInLocation(models.DateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return t, nil
}

func (a *app) generateReport(ctx context.Context, opts options) error {
	period, ok := models.ParsePeriod(opts.report)
	if !ok || period == models.PeriodCustom {
		return fmt.Errorf("unknown report type %q, want daily, weekly or monthly", opts.report)
	}
	target, err := a.targetDate(opts.date)
	if err != nil {
		return err
	}
	if (opts.useAI || opts.enhance != "") && !a.generator.AIAvailable() {
		return report.ErrAIUnavailable
	}

	r, err := a.generator.GenerateReport(ctx, period, target, opts.useAI)
	if err != nil {
		return err
	}
	if opts.enhance != "" {
		enhanced, err := a.generator.Enhance(ctx, r.Content, opts.enhance)
		if err != nil {
			return fmt.Errorf("failed to enhance report: %w", err)
		}
		r.Content, r.Method = enhanced, models.MethodAI
	}

	a.printf("%s %s\n", titleStyle.Render("工作"+period.Label()), subtitleStyle.Render(fmt.Sprintf("%s ~ %s · %d 条记录 · %s", r.Start, r.End, r.Entries, r.Method)))
	a.printf("%s\n", reportStyle.Render(r.Content))

	record := models.ReportRecord{
		Type:        r.Period,
		Date:        r.Date,
		Content:     r.Content,
		Method:      r.Method,
		GeneratedAt: models.FormatTimestamp(a.clock.Now()),
	}
	if opts.save {
		if record, err = a.generator.SaveReport(r); err != nil {
			return err
		}
		a.printf("%s 报告已保存 #%d\n", okMark(true), record.ID)
	}

	if opts.export != "" {
		path, format, err := exportTarget(opts, "工作"+period.Label())
		if err != nil {
			return err
		}
		if err := utils.ExportReport(record, path, format); err != nil {
			return err
		}
		a.printf("%s 报告已导出到 %s\n", okMark(true), path)
	}

	if opts.send {
		if err := a.sendReport(ctx, r.Content, period); err != nil {
			return err
		}
		a.printf("%s %s已发送到飞书\n", okMark(true), period.Label())
	}
	return nil
}

// exportFormat prefers the -format flag and falls back to the file extension
func exportFormat(flagValue, path string) (utils.ExportFormat, error) {
	if flagValue != "" {
		return utils.ParseExportFormat(flagValue)
	}
	return utils.ParseExportFormat(filepath.Ext(path))
}

const autoExport = "auto"

// exportTarget resolves -export and -format into a file path and format.
// "auto" writes a timestamped file into the default export directory.
func exportTarget(opts options, title string) (string, utils.ExportFormat, error) {
	if opts.export != autoExport {
		format, err := exportFormat(opts.format, opts.export)
		return opts.export, format, err
	}
	format := utils.FormatMarkdown
	if opts.format != "" {
		var err error
		if format, err = utils.ParseExportFormat(opts.format); err != nil {
			return "", "", err
		}
	}
	dir, err := utils.GetDefaultExportPath()
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve export directory: %w", err)
	}
	return filepath.Join(dir, utils.GenerateExportFilename(title, format)), format, nil
}

func (a *app) customReport(ctx context.Context, opts options) error {
	end, err := a.targetDate(opts.date)
	if err != nil {
		return err
	}
	start := end
	if opts.from != "" {
		if start, err = a.targetDate(opts.from); err != nil {
			return err
		}
	}
	if start.After(end) {
		return fmt.Errorf("-from %s is after %s", opts.from, end.Format(models.DateLayout))
	}

	from, to := start.Format(models.DateLayout), end.Format(models.DateLayout)
	content, err := a.generator.GenerateCustom(ctx, from, to, opts.custom)
	if err != nil {
		return err
	}
	a.printf("%s %s\n", titleStyle.Render("自定义报告"), subtitleStyle.Render(from+" ~ "+to))
	a.printf("%s\n", reportStyle.Render(content))

	r := &report.Report{Period: models.PeriodCustom, Date: from + "~" + to, Content: content, Method: models.MethodAI}
	record := models.ReportRecord{
		Type:        r.Period,
		Date:        r.Date,
		Content:     content,
		Method:      r.Method,
		GeneratedAt: models.FormatTimestamp(a.clock.Now()),
	}
	if opts.save {
		if record, err = a.generator.SaveReport(r); err != nil {
			return err
		}
		a.printf("%s 报告已保存 #%d\n", okMark(true), record.ID)
	}
	if opts.export != "" {
		path, format, err := exportTarget(opts, "自定义报告")
		if err != nil {
			return err
		}
		if err := utils.ExportReport(record, path, format); err != nil {
			return err
		}
		a.printf("%s 报告已导出到 %s\n", okMark(true), path)
	}
	return nil
}

func (a *app) feishuOptions() feishu.Options {
	opts := feishu.Options{Clock: a.clock, Logger: a.logger}
	if a.database != nil {
		opts.Recorder = a.database
	}
	return opts
}

func (a *app) sendReport(ctx context.Context, content string, period models.Period) error {
	cfg := a.store.FeishuConfig()
	if !cfg.Enabled {
		return scheduler.ErrFeishuDisabled
	}
	return feishu.Submit(ctx, cfg, content, period.Label(), a.feishuOptions())
}

func (a *app) exportWorkLogs(opts options) error {
	path, format, err := exportTarget(opts, "工作记录")
	if err != nil {
		return err
	}
	var entries []models.LogEntry
	for _, e := range a.store.WorkLogs() {
		if opts.date == "" || e.Date == opts.date {
			entries = append(entries, e)
		}
	}
	if err := utils.ExportWorkLogs(utils.SortedByDate(entries), path, format); err != nil {
		return err
	}
	a.printf("%s 已导出 %d 条工作记录到 %s\n", okMark(true), len(entries), path)
	return nil
}

var markPattern = regexp.MustCompile(`<mark>(.*?)</mark>`)

func (a *app) searchReports(query string) error {
	if a.database == nil {
		return errArchiveDisabled
	}
	results, err := a.database.SearchReports(query, 20)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		a.printf("%s\n", subtitleStyle.Render("没有找到匹配的报告"))
		return nil
	}

	for _, res := range results {
		period := models.Period(res.Report.Type)
		a.printf("%s %s\n", titleStyle.Render(fmt.Sprintf("#%d %s", res.Report.ID, period.Label())), subtitleStyle.Render(res.Report.Date))
		snippet := markPattern.ReplaceAllStringFunc(res.Snippet, func(m string) string {
			return warningStyle.Render(markPattern.FindStringSubmatch(m)[1])
		})
		a.printf("  %s\n", strings.ReplaceAll(snippet, "\n", " "))
	}
	return nil
}

func (a *app) row(label string, value interface{}) {
	a.printf("%s%v\n", labelStyle.Render(label), value)
}

func (a *app) showStats() error {
	s := a.generator.Statistics()
	a.printf("%s\n", titleStyle.Render("报告统计"))
	a.row("总报告数", s.Total)
	a.row("日报 / 周报 / 月报", fmt.Sprintf("%d / %d / %d", s.Daily, s.Weekly, s.Monthly))
	a.row("AI / 模板", fmt.Sprintf("%d / %d", s.AIGenerated, s.TemplateGenerated))
	a.row("最近生成", orDefault(s.LatestReportDate, "-"))
	a.row("工作记录数", len(a.store.WorkLogs()))

	status := scheduler.NewReminder(a.store).Status(a.clock.Now())
	a.printf("\n%s\n", titleStyle.Render("自动提交"))
	a.row("已启用", okMark(status.Enabled))
	a.row("提交时间", status.SubmitTime)
	a.row("上次提交", orDefault(status.LastSubmitDate, "-"))
	a.row("提交次数", status.SubmitCount)
	a.row("距下次提交", status.NextSubmitIn)

	if a.database == nil {
		return nil
	}
	dbStats, err := a.database.GetStats()
	if err != nil {
		return err
	}
	a.printf("\n%s\n", titleStyle.Render("报告归档"))
	a.row("归档报告", dbStats.ReportCount)
	a.row("提交记录", dbStats.SubmissionCount)
	a.row("数据库大小", dbStats.HumanSize())
	a.row("最近归档", dbStats.LatestAgo())
	return nil
}

func (a *app) vacuumArchive() error {
	if a.database == nil {
		return errArchiveDisabled
	}
	before, _ := utils.GetFileSize(a.dbPath)
	if err := a.database.Vacuum(); err != nil {
		return err
	}
	after, err := utils.GetFileSize(a.dbPath)
	if err != nil {
		return err
	}
	a.printf("%s 归档已压缩: %s → %s\n", okMark(true), humanize.Bytes(uint64(before)), humanize.Bytes(uint64(after)))
	return nil
}

func (a *app) testAI(ctx context.Context) error {
	cfg := a.store.AIConfig()
	if cfg.APIKey == "" {
		return llm.ErrNoAPIKey
	}
	clientCfg := llm.ConfigFromAI(cfg)
	clientCfg.Logger = a.logger
	client, err := llm.NewClient(clientCfg)
	if err != nil {
		return err
	}

	res := client.TestConnection(ctx)
	a.printf("%s %s\n", okMark(res.Success), res.Message)
	if res.Response != "" {
		a.printf("  %s\n", subtitleStyle.Render(res.Response))
	}
	if !res.Success {
		return errors.New("AI connection test failed")
	}
	return nil
}

func (a *app) testFeishu(ctx context.Context, reportType string) error {
	cfg := a.store.FeishuConfig()
	res := feishu.TestConnection(ctx, cfg)
	a.printf("%s %s\n", okMark(res.Success), res.Message)

	keys := make([]string, 0, len(res.Details))
	for k := range res.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.printf("  %s\n", res.Details[k])
	}
	if !res.Success {
		return errors.New("feishu connection test failed")
	}
	if reportType == "" {
		return nil
	}

	period, ok := models.ParsePeriod(reportType)
	if !ok || period == models.PeriodCustom {
		return fmt.Errorf("unknown report type %q, want daily, weekly or monthly", reportType)
	}
	client, err := feishu.NewClient(cfg, a.feishuOptions())
	if err != nil {
		return err
	}
	status := client.ReportSubmissionStatus(ctx, period)
	a.printf("%s %s\n", okMark(status.Success), status.Message)
	a.row("提交窗口", fmt.Sprintf("%s ~ %s", status.Deadline.SubmitStart.Format("01-02 15:04"), status.Deadline.Deadline.Format("01-02 15:04")))
	for _, rule := range status.Rules {
		a.row("汇报规则", fmt.Sprintf("%s (%s)", rule.Name, rule.RuleID))
	}

	sched := scheduler.New(a.store, a.generator.GenerateSmart, scheduler.Options{
		Clock:  a.clock,
		Logger: a.logger,
		NewNotifier: func(utils.FeishuConfig) (scheduler.Notifier, error) {
			return client, nil
		},
	})
	sent := sched.TestSubmission(ctx, period)
	a.printf("%s %s\n", okMark(sent.Success), sent.Message)
	if !sent.Success {
		return errors.New("feishu test submission failed")
	}
	return nil
}

func (a *app) runDaemon(ctx context.Context) error {
	sched := scheduler.New(a.store, a.generator.GenerateSmart, scheduler.Options{
		Clock:  a.clock,
		Logger: a.logger,
		NewNotifier: func(cfg utils.FeishuConfig) (scheduler.Notifier, error) {
			return feishu.NewClient(cfg, a.feishuOptions())
		},
		OnReminder: func(msg string) {
			a.printf("%s %s\n", warningStyle.Render("⏰"), msg)
		},
		AutoSave: func(ctx context.Context) error {
			content, err := a.generator.GenerateSmart(ctx, models.PeriodDaily)
			if err != nil {
				return err
			}
			record, err := a.generator.Save(content, models.PeriodDaily, a.clock.Now().Format(models.DateLayout))
			if err != nil {
				return err
			}
			a.logger.Info("Daily report #%d saved automatically", record.ID)
			return nil
		},
		OnResult: func(r feishu.SubmitResult) {
			a.printf("%s %s\n", okMark(r.Success), r.Message)
		},
	})

	err := sched.Start(ctx)
	switch {
	case errors.Is(err, scheduler.ErrFeishuDisabled):
		a.logger.Info("Feishu integration disabled, running reminders only")
		if err := sched.StartReminders(ctx); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		deadlines, _ := sched.NextDeadlines()
		for _, p := range models.Cadences {
			info := deadlines[p]
			a.logger.Info("%s window %s - %s (opens %s)", p.Label(),
				info.SubmitStart.Format("01-02 15:04"), info.Deadline.Format("01-02 15:04"), humanize.Time(info.SubmitStart))
		}
	}

	<-ctx.Done()
	a.logger.Info("Shutting down scheduler")
	return sched.Stop()
}
