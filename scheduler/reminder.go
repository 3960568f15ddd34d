package scheduler

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

// ErrInvalidTime is returned for a reminder time that is not HH:MM
var ErrInvalidTime = errors.New("time must be HH:MM")

// IntervalReminderMessage is emitted by the periodic work log reminder
const IntervalReminderMessage = "记录工作日志提醒"

var weekdayLabels = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// WeekdayLabel returns the label used in work_days for d
func WeekdayLabel(d time.Weekday) string {
	return weekdayLabels[d]
}

// SettingsStore is the configuration access reminders need
type SettingsStore interface {
	Settings() utils.Settings
	UpdateSettings(settings utils.Settings) error
	SubmitStatus() utils.SubmitStatus
}

// Reminder evaluates work log reminders and the local auto save
type Reminder struct {
	store SettingsStore
}

// NewReminder creates a reminder over store
func NewReminder(store SettingsStore) *Reminder {
	return &Reminder{store: store}
}

// IsWorkDay reports whether t falls on a configured work day
func (r *Reminder) IsWorkDay(t time.Time) bool {
	label := WeekdayLabel(t.Weekday())
	for _, d := range r.store.Settings().WorkDays {
		if d == label {
			return true
		}
	}
	return false
}

// IsWorkTime reports whether t lies within the work hours, inclusive
func (r *Reminder) IsWorkTime(t time.Time) bool {
	s := r.store.Settings()
	now := t.Format(models.TimeLayout)
	return s.WorkStartTime <= now && now <= s.WorkEndTime
}

// Due returns the reminder messages that fire at now
// Nothing fires outside work days and hours.
func (r *Reminder) Due(now time.Time) []string {
	s := r.store.Settings()
	if !s.ReminderEnabled || !r.IsWorkDay(now) || !r.IsWorkTime(now) {
		return nil
	}

	var out []string
	hhmm := now.Format(models.TimeLayout)
	for _, c := range s.CustomReminders {
		if c.Enabled && c.Time == hhmm {
			msg := c.Message
			if msg == "" {
				msg = "工作提醒"
			}
			out = append(out, msg)
		}
	}
	if s.ReminderInterval > 0 && now.Minute()%s.ReminderInterval == 0 {
		out = append(out, IntervalReminderMessage)
	}
	return out
}

// AddCustomReminder appends a daily reminder at hhmm
func (r *Reminder) AddCustomReminder(hhmm, message string, enabled bool) error {
	if _, err := time.Parse(models.TimeLayout, hhmm); err != nil {
		return ErrInvalidTime
	}
	s := r.store.Settings()
	s.CustomReminders = append(s.CustomReminders, utils.CustomReminder{
		Time:    hhmm,
		Message: message,
		Enabled: enabled,
	})
	return r.store.UpdateSettings(s)
}

// RemoveCustomReminder drops every reminder set for hhmm
func (r *Reminder) RemoveCustomReminder(hhmm string) error {
	s := r.store.Settings()
	kept := s.CustomReminders[:0]
	for _, c := range s.CustomReminders {
		if c.Time != hhmm {
			kept = append(kept, c)
		}
	}
	s.CustomReminders = kept
	return r.store.UpdateSettings(s)
}

// NextCustomReminder returns the next enabled reminder later today
func (r *Reminder) NextCustomReminder(now time.Time) (string, bool) {
	current := now.Format(models.TimeLayout)
	var upcoming []string
	for _, c := range r.store.Settings().CustomReminders {
		if !c.Enabled {
			continue
		}
		if _, err := time.Parse(models.TimeLayout, c.Time); err != nil {
			continue
		}
		if c.Time > current {
			upcoming = append(upcoming, c.Time)
		}
	}
	if len(upcoming) == 0 {
		return "", false
	}
	sort.Strings(upcoming)
	return upcoming[0], true
}

// AutoSubmitDue reports whether the local end-of-day auto save should run at now
func (r *Reminder) AutoSubmitDue(now time.Time) bool {
	status := r.store.SubmitStatus()
	if !status.AutoSubmitEnabled || !r.IsWorkDay(now) {
		return false
	}
	if now.Format(models.TimeLayout) != r.store.Settings().AutoSubmitTime {
		return false
	}
	return status.LastSubmitDate != now.Format(models.DateLayout)
}

// AutoSubmitStatus summarizes the local auto save
type AutoSubmitStatus struct {
	Enabled        bool   `json:"enabled"`
	SubmitTime     string `json:"submit_time"`
	LastSubmitDate string `json:"last_submit_date"`
	SubmitCount    int    `json:"submit_count"`
	IsWorkDay      bool   `json:"is_work_day"`
	IsWorkTime     bool   `json:"is_work_time"`
	NextSubmitIn   string `json:"next_submit_in"`
}

// Status describes the local auto save as seen at now
func (r *Reminder) Status(now time.Time) AutoSubmitStatus {
	settings := r.store.Settings()
	submit := r.store.SubmitStatus()
	st := AutoSubmitStatus{
		Enabled:        submit.AutoSubmitEnabled,
		SubmitTime:     settings.AutoSubmitTime,
		LastSubmitDate: submit.LastSubmitDate,
		SubmitCount:    submit.SubmitCount,
		IsWorkDay:      r.IsWorkDay(now),
		IsWorkTime:     r.IsWorkTime(now),
	}

	if !st.Enabled || !st.IsWorkDay {
		st.NextSubmitIn = "未启用或非工作日"
		return st
	}
	t, err := time.Parse(models.TimeLayout, settings.AutoSubmitTime)
	if err != nil {
		st.NextSubmitIn = "时间格式错误"
		return st
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if now.Before(at) {
		st.NextSubmitIn = strings.TrimSpace(humanize.RelTime(now, at, "", ""))
	} else {
		st.NextSubmitIn = "明日 " + settings.AutoSubmitTime
	}
	return st
}
