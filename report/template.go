package report

import (
	"regexp"
	"strconv"
	"strings"

	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

// Placeholder fallbacks
const (
	noRecords = "暂无记录"
	toBePlan  = "待规划"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultTemplate returns the built-in template for period
func DefaultTemplate(period models.Period) string {
	switch period {
	case models.PeriodWeekly:
		return utils.DefaultWeeklyTemplate
	case models.PeriodMonthly:
		return utils.DefaultMonthlyTemplate
	default:
		return utils.DefaultDailyTemplate
	}
}

// RenderTemplate substitutes {name} placeholders from values
// Placeholders without a value are left as written.
func RenderTemplate(tmpl string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if v, ok := values[match[1:len(match)-1]]; ok {
			return v
		}
		return match
	})
}

func bullets(entries []models.LogEntry, limit int, empty string) string {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return empty
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = "- " + e.Content
	}
	return strings.Join(lines, "\n")
}

func filter(entries []models.LogEntry, keep func(models.LogEntry) bool) []models.LogEntry {
	var out []models.LogEntry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// FormatForTemplate groups entries into every named placeholder value
// All keys are always present, so no default template can be left with a hole.
func FormatForTemplate(entries []models.LogEntry) map[string]string {
	if len(entries) == 0 {
		return map[string]string{
			"completed_tasks":      noRecords,
			"ongoing_tasks":        noRecords,
			"tomorrow_plan":        toBePlan,
			"achievements":         noRecords,
			"completed_projects":   noRecords,
			"next_week_plan":       toBePlan,
			"monthly_achievements": noRecords,
			"milestones":           noRecords,
			"next_month_goals":     toBePlan,
			"high_priority":        noRecords,
			"by_category":          noRecords,
			"entry_count":          "0",
		}
	}

	highPriority := filter(entries, func(e models.LogEntry) bool { return e.Priority == models.PriorityHigh })
	completed := filter(entries, func(e models.LogEntry) bool { return e.Status == models.StatusDone })
	inProgress := filter(entries, func(e models.LogEntry) bool { return e.Status == models.StatusInProgress })
	work := filter(entries, func(e models.LogEntry) bool { return e.Category == models.CategoryWork })
	completedProjects := filter(completed, func(e models.LogEntry) bool { return e.Category == models.CategoryProject })

	return map[string]string{
		"completed_tasks":      bullets(completed, 0, "暂无完成事项"),
		"ongoing_tasks":        bullets(inProgress, 0, "暂无进行中事项"),
		"tomorrow_plan":        "根据今日进展制定明日计划",
		"achievements":         bullets(highPriority, 0, "暂无重要成果"),
		"completed_projects":   bullets(completedProjects, 0, "暂无完成项目"),
		"next_week_plan":       "基于本周进展制定下周计划",
		"monthly_achievements": bullets(work, 5, "暂无月度成果"),
		"milestones":           bullets(highPriority, 3, "暂无重要里程碑"),
		"next_month_goals":     "基于本月总结制定下月目标",
		"high_priority":        bullets(highPriority, 0, "暂无高优先级事项"),
		"by_category":          byCategory(entries),
		"entry_count":          strconv.Itoa(len(entries)),
	}
}

// byCategory lists entries under each category label, known labels first
func byCategory(entries []models.LogEntry) string {
	groups := map[string][]models.LogEntry{}
	order := append([]string{}, models.Categories...)
	for _, e := range entries {
		c := e.Category
		if c == "" {
			c = models.CategoryOther
		}
		if _, known := groups[c]; !known && !contains(order, c) {
			order = append(order, c)
		}
		groups[c] = append(groups[c], e)
	}

	var sections []string
	for _, c := range order {
		if len(groups[c]) == 0 {
			continue
		}
		sections = append(sections, c+"：\n"+bullets(groups[c], 0, ""))
	}
	return strings.Join(sections, "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
