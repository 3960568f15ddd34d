package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"daily-report-assistant/models"
)

// ErrEmptyInput is returned when a writer is given nothing to work with
var ErrEmptyInput = errors.New("no input to generate from")

// Completer is the part of Client the report writer needs
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Enhancement styles
const (
	StylePolish    = "polish"
	StyleExpand    = "expand"
	StyleSummarize = "summarize"
	StyleFormat    = "format"
)

const (
	dailySystemPrompt = "你是一个专业的工作报告助手。请根据提供的工作日志生成简洁、专业的日报。" +
		"报告应包含：1. 今日完成的主要工作；2. 遇到的问题和解决方案；3. 明日工作计划。" +
		"语言要简洁明了，突出重点，避免冗余。"
	weeklySystemPrompt = "你是一个专业的工作报告助手。请根据提供的一周工作日志生成专业的周报。" +
		"报告应包含：1. 本周主要成果和完成的项目；2. 重要进展和里程碑；3. 遇到的挑战和解决方案；4. 下周工作重点。" +
		"请按重要性排序，突出关键成果。"
	monthlySystemPrompt = "你是一个专业的工作报告助手。请根据提供的一个月工作日志生成全面的月报。" +
		"报告应包含：1. 月度主要成果和完成的重要项目；2. 关键指标和数据；3. 重要里程碑和突破；" +
		"4. 遇到的主要挑战和解决方案；5. 经验总结和改进建议；6. 下月工作目标和计划。" +
		"请突出重点成果，提供数据支撑，体现工作价值。"
	customSystemPrompt = "你是一个专业的工作报告助手。请根据用户的具体要求和提供的工作日志生成报告。" +
		"确保报告内容准确、专业、符合用户需求。"
	editorSystemPrompt = "你是一个专业的文档编辑助手，擅长优化和改进工作报告的质量。"
)

var enhancementPrompts = map[string]string{
	StylePolish:    "请对以下工作报告进行润色，使其更加专业、简洁、有条理：",
	StyleExpand:    "请对以下工作报告进行扩展，增加更多细节和分析：",
	StyleSummarize: "请对以下工作报告进行精简，提取核心要点：",
	StyleFormat:    "请对以下工作报告进行格式优化，使其结构更清晰：",
}

// ReportWriter builds report prompts from log entries and delegates to a Completer
type ReportWriter struct {
	completer Completer
}

// NewReportWriter creates a writer backed by c
func NewReportWriter(c Completer) *ReportWriter {
	return &ReportWriter{completer: c}
}

func (w *ReportWriter) run(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return w.completer.Complete(ctx, []Message{
		SystemMessage(systemPrompt),
		UserMessage(userPrompt),
	})
}

func orDefault(prompt, fallback string) string {
	if strings.TrimSpace(prompt) == "" {
		return fallback
	}
	return prompt
}

func field(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// FormatEntryLine renders one entry the way every prompt lists it
func FormatEntryLine(e models.LogEntry) string {
	tags := "[]"
	if len(e.Tags) > 0 {
		tags = "[" + strings.Join(e.Tags, ", ") + "]"
	}
	return fmt.Sprintf("- %s (类型: %s, 优先级: %s, 标签: %s)",
		e.Content, field(e.Category, models.CategoryWork), field(e.Priority, models.PriorityMedium), tags)
}

func shortLine(e models.LogEntry) string {
	return fmt.Sprintf("  - %s (类型: %s, 优先级: %s)\n",
		e.Content, field(e.Category, models.CategoryWork), field(e.Priority, models.PriorityMedium))
}

// DailyReport generates a daily report
func (w *ReportWriter) DailyReport(ctx context.Context, entries []models.LogEntry, systemPrompt string) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyInput
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = FormatEntryLine(e)
	}
	return w.run(ctx, orDefault(systemPrompt, dailySystemPrompt),
		"请根据以下工作日志生成今日工作日报：\n\n"+strings.Join(lines, "\n"))
}

// WeeklyReport generates a weekly report with entries grouped by date
func (w *ReportWriter) WeeklyReport(ctx context.Context, entries []models.LogEntry, systemPrompt string) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyInput
	}

	byDate := map[string][]models.LogEntry{}
	var dates []string
	for _, e := range entries {
		if _, ok := byDate[e.Date]; !ok {
			dates = append(dates, e.Date)
		}
		byDate[e.Date] = append(byDate[e.Date], e)
	}
	sort.Strings(dates)

	var sb strings.Builder
	for _, date := range dates {
		sb.WriteString("\n" + date + ":\n")
		for _, e := range byDate[date] {
			sb.WriteString(shortLine(e))
		}
	}
	return w.run(ctx, orDefault(systemPrompt, weeklySystemPrompt),
		"请根据以下一周的工作日志生成周报：\n"+sb.String())
}

// MonthlyReport generates a monthly report with entries grouped by ISO week
func (w *ReportWriter) MonthlyReport(ctx context.Context, entries []models.LogEntry, systemPrompt string) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyInput
	}

	type weekKey struct{ year, week int }
	byWeek := map[weekKey][]models.LogEntry{}
	var keys []weekKey
	var undated []models.LogEntry
	for _, e := range entries {
		d, err := time.Parse(models.DateLayout, e.Date)
		if err != nil {
			undated = append(undated, e)
			continue
		}
		year, week := d.ISOWeek()
		k := weekKey{year, week}
		if _, ok := byWeek[k]; !ok {
			keys = append(keys, k)
		}
		byWeek[k] = append(byWeek[k], e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\n第%d周：\n", k.week))
		for _, e := range byWeek[k] {
			sb.WriteString(shortLine(e))
		}
	}
	if len(undated) > 0 {
		sb.WriteString("\n其他：\n")
		for _, e := range undated {
			sb.WriteString(shortLine(e))
		}
	}
	return w.run(ctx, orDefault(systemPrompt, monthlySystemPrompt),
		"请根据以下一个月的工作日志生成月报：\n"+sb.String())
}

// CustomReport answers a free-form request over the given entries
func (w *ReportWriter) CustomReport(ctx context.Context, entries []models.LogEntry, prompt, systemPrompt string) (string, error) {
	if len(entries) == 0 || strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("- %s (日期: %s, 类型: %s, 优先级: %s)",
			e.Content, e.Date, field(e.Category, models.CategoryWork), field(e.Priority, models.PriorityMedium))
	}
	return w.run(ctx, orDefault(systemPrompt, customSystemPrompt),
		prompt+"\n\n工作日志：\n"+strings.Join(lines, "\n"))
}

// FillerText is the canned report used when a period has no entries
func FillerText(period models.Period) string {
	switch period {
	case models.PeriodDaily:
		return "今日暂无具体工作记录，主要进行了日常工作和任务处理。明日将继续推进相关项目进展。"
	case models.PeriodWeekly:
		return "本周主要进行了日常工作和项目推进，具体工作内容待补充记录。下周将加强工作日志记录，提高工作效率。"
	default:
		return "本期间主要进行了日常工作，具体内容待补充。后续将完善工作记录机制。"
	}
}

// SmartReport never comes back empty-handed for an empty period
func (w *ReportWriter) SmartReport(ctx context.Context, entries []models.LogEntry, period models.Period) (string, error) {
	if len(entries) == 0 {
		return FillerText(period), nil
	}
	switch period {
	case models.PeriodWeekly:
		return w.WeeklyReport(ctx, entries, "")
	case models.PeriodMonthly:
		return w.MonthlyReport(ctx, entries, "")
	default:
		return w.DailyReport(ctx, entries, "")
	}
}

// EnhanceReport rewrites an existing report in the given style
// Unknown styles fall back to polish.
func (w *ReportWriter) EnhanceReport(ctx context.Context, report, style string) (string, error) {
	if strings.TrimSpace(report) == "" {
		return "", ErrEmptyInput
	}
	instruction, ok := enhancementPrompts[style]
	if !ok {
		instruction = enhancementPrompts[StylePolish]
	}
	return w.run(ctx, editorSystemPrompt, instruction+"\n\n"+report)
}
