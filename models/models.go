package models

import "time"

// DateLayout is the calendar date format used for every stored date
const DateLayout = "2006-01-02"

// TimeLayout is the time-of-day format used for log entries and settings
const TimeLayout = "15:04"

// Category labels
const (
	CategoryWork    = "工作"
	CategoryStudy   = "学习"
	CategoryMeeting = "会议"
	CategoryProject = "项目"
	CategoryOther   = "其他"
)

// Priority labels
const (
	PriorityHigh   = "高"
	PriorityMedium = "中"
	PriorityLow    = "低"
)

// Status labels
const (
	StatusNotStarted = "未开始"
	StatusInProgress = "进行中"
	StatusDone       = "已完成"
	StatusPaused     = "暂停"
	StatusCancelled  = "取消"
)

// Categories lists the category labels offered to the user
var Categories = []string{CategoryWork, CategoryStudy, CategoryMeeting, CategoryProject, CategoryOther}

// Priorities lists the priority labels offered to the user
var Priorities = []string{PriorityHigh, PriorityMedium, PriorityLow}

// Statuses lists the status labels offered to the user
var Statuses = []string{StatusNotStarted, StatusInProgress, StatusDone, StatusPaused, StatusCancelled}

// LogEntry represents one recorded unit of work
type LogEntry struct {
	ID        int64    `json:"id" yaml:"id"`
	Date      string   `json:"date" yaml:"date"`
	Time      string   `json:"time" yaml:"time"`
	Content   string   `json:"content" yaml:"content"`
	Category  string   `json:"type" yaml:"type"`
	Priority  string   `json:"priority" yaml:"priority"`
	Status    string   `json:"status" yaml:"status"`
	Tags      []string `json:"tags" yaml:"tags"`
	CreatedAt string   `json:"created_at" yaml:"created_at"`
	UpdatedAt string   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Period is a reporting cadence
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodCustom  Period = "custom"
)

// Cadences are the periods the scheduler submits automatically, in check order
var Cadences = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Label returns the display label of the period
func (p Period) Label() string {
	switch p {
	case PeriodDaily:
		return "日报"
	case PeriodWeekly:
		return "周报"
	case PeriodMonthly:
		return "月报"
	default:
		return "报告"
	}
}

// ParsePeriod accepts either the period name or its display label
func ParsePeriod(s string) (Period, bool) {
	switch s {
	case "daily", "日报":
		return PeriodDaily, true
	case "weekly", "周报":
		return PeriodWeekly, true
	case "monthly", "月报":
		return PeriodMonthly, true
	case "custom", "报告":
		return PeriodCustom, true
	}
	return "", false
}

// Generation methods recorded on a ReportRecord
const (
	MethodAI       = "ai"
	MethodTemplate = "template"
)

// ReportRecord is one generated report retained in history
type ReportRecord struct {
	ID          int64  `json:"id" yaml:"id"`
	Type        Period `json:"type" yaml:"type"`
	Date        string `json:"date" yaml:"date"`
	Content     string `json:"content" yaml:"content"`
	GeneratedAt string `json:"generated_at" yaml:"generated_at"`
	Method      string `json:"method" yaml:"method"`
	CreatedAt   string `json:"created_at" yaml:"created_at"`
}

// TimestampLayout is RFC 3339 with fixed nanosecond precision
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t the way stored timestamps are written
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
