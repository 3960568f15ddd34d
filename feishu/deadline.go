package feishu

import (
	"time"

	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

// Schedule holds the submission windows of each cadence
type Schedule struct {
	DailyDeadline     string // HH:MM
	DailyAdvance      time.Duration
	WeeklySubmitTime  string // HH:MM on Friday
	MonthlySubmitTime string // HH:MM on the last day of the month
}

// DefaultSchedule submits daily reports 16:00-18:00 and the others from 20:00
var DefaultSchedule = Schedule{
	DailyDeadline:     "18:00",
	DailyAdvance:      2 * time.Hour,
	WeeklySubmitTime:  "20:00",
	MonthlySubmitTime: "20:00",
}

// ScheduleFromConfig reads the windows from the Feishu settings
func ScheduleFromConfig(cfg utils.FeishuConfig) Schedule {
	s := DefaultSchedule
	if cfg.DailyDeadline != "" {
		s.DailyDeadline = cfg.DailyDeadline
	}
	if cfg.DailyAdvanceHours > 0 {
		s.DailyAdvance = time.Duration(cfg.DailyAdvanceHours) * time.Hour
	}
	if cfg.WeeklySubmitTime != "" {
		s.WeeklySubmitTime = cfg.WeeklySubmitTime
	}
	if cfg.MonthlySubmitTime != "" {
		s.MonthlySubmitTime = cfg.MonthlySubmitTime
	}
	return s
}

// DeadlineInfo is the submission window of one cadence
type DeadlineInfo struct {
	Period       models.Period `json:"report_type"`
	Now          time.Time     `json:"current_time"`
	Deadline     time.Time     `json:"deadline"`
	SubmitStart  time.Time     `json:"submit_time"`
	ShouldSubmit bool          `json:"should_submit"`
}

// at returns day at the HH:MM clock time, falling back to fallback when unparsable
func at(day time.Time, hhmm, fallback string) time.Time {
	t, err := time.Parse(models.TimeLayout, hhmm)
	if err != nil {
		t, _ = time.Parse(models.TimeLayout, fallback)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
}

func within(now, start, end time.Time) bool {
	return !now.Before(start) && !now.After(end)
}

// Deadline computes the window of period as seen at now
// Weekly and monthly windows only open on their qualifying day.
func (s Schedule) Deadline(period models.Period, now time.Time) DeadlineInfo {
	info := DeadlineInfo{Period: period, Now: now}

	switch period {
	case models.PeriodWeekly:
		friday := now.AddDate(0, 0, (int(time.Friday)-int(now.Weekday())+7)%7)
		info.Deadline = endOfDay(friday)
		info.SubmitStart = at(friday, s.WeeklySubmitTime, DefaultSchedule.WeeklySubmitTime)
		info.ShouldSubmit = now.Weekday() == time.Friday && within(now, info.SubmitStart, info.Deadline)

	case models.PeriodMonthly:
		lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location())
		info.Deadline = endOfDay(lastDay)
		info.SubmitStart = at(lastDay, s.MonthlySubmitTime, DefaultSchedule.MonthlySubmitTime)
		info.ShouldSubmit = now.Day() == lastDay.Day() && within(now, info.SubmitStart, info.Deadline)

	default:
		info.Deadline = at(now, s.DailyDeadline, DefaultSchedule.DailyDeadline)
		info.SubmitStart = info.Deadline.Add(-s.DailyAdvance)
		info.ShouldSubmit = within(now, info.SubmitStart, info.Deadline)
	}
	return info
}

// Deadline computes the window of period for now using the client's settings
func (c *Client) Deadline(period models.Period, now time.Time) DeadlineInfo {
	return c.schedule.Deadline(period, now)
}
