package feishu

import (
	"testing"
	"time"

	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

func at24(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.Local)
}

func TestDeadline_DailyWindowBoundaries(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"one second before start", at24(2024, 6, 5, 15, 59, 59), false},
		{"window start", at24(2024, 6, 5, 16, 0, 0), true},
		{"inside", at24(2024, 6, 5, 17, 12, 0), true},
		{"deadline", at24(2024, 6, 5, 18, 0, 0), true},
		{"one second after deadline", at24(2024, 6, 5, 18, 0, 1), false},
		{"weekend is not special", at24(2024, 6, 8, 17, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DefaultSchedule.Deadline(models.PeriodDaily, tt.now)
			if info.ShouldSubmit != tt.want {
				t.Errorf("ShouldSubmit = %v, want %v", info.ShouldSubmit, tt.want)
			}
			if !info.Deadline.Equal(at24(tt.now.Year(), tt.now.Month(), tt.now.Day(), 18, 0, 0)) {
				t.Errorf("Unexpected deadline %v", info.Deadline)
			}
		})
	}
}

func TestDeadline_WeeklyOnlyOnFriday(t *testing.T) {
	// 2024-06-07 is a Friday
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"friday before window", at24(2024, 6, 7, 19, 59, 59), false},
		{"friday window start", at24(2024, 6, 7, 20, 0, 0), true},
		{"friday last second", at24(2024, 6, 7, 23, 59, 59), true},
		{"thursday same time", at24(2024, 6, 6, 21, 0, 0), false},
		{"saturday same time", at24(2024, 6, 8, 21, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DefaultSchedule.Deadline(models.PeriodWeekly, tt.now)
			if info.ShouldSubmit != tt.want {
				t.Errorf("ShouldSubmit = %v, want %v", info.ShouldSubmit, tt.want)
			}
		})
	}

	info := DefaultSchedule.Deadline(models.PeriodWeekly, at24(2024, 6, 4, 10, 0, 0))
	if !info.SubmitStart.Equal(at24(2024, 6, 7, 20, 0, 0)) || !info.Deadline.Equal(at24(2024, 6, 7, 23, 59, 59)) {
		t.Errorf("Upcoming Friday window expected, got %v..%v", info.SubmitStart, info.Deadline)
	}
}

func TestDeadline_MonthlyOnlyOnLastDay(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"leap february last day", at24(2024, 2, 29, 20, 0, 0), true},
		{"leap february 28th", at24(2024, 2, 28, 21, 0, 0), false},
		{"plain february last day", at24(2023, 2, 28, 21, 0, 0), true},
		{"30 day month", at24(2024, 4, 30, 23, 59, 59), true},
		{"31 day month 30th", at24(2024, 5, 30, 21, 0, 0), false},
		{"last day before window", at24(2024, 5, 31, 19, 59, 59), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DefaultSchedule.Deadline(models.PeriodMonthly, tt.now)
			if info.ShouldSubmit != tt.want {
				t.Errorf("ShouldSubmit = %v, want %v", info.ShouldSubmit, tt.want)
			}
		})
	}
}

func TestScheduleFromConfig(t *testing.T) {
	s := ScheduleFromConfig(utils.FeishuConfig{DailyDeadline: "17:30", DailyAdvanceHours: 1, WeeklySubmitTime: "bogus"})

	if s.Deadline(models.PeriodDaily, at24(2024, 6, 5, 16, 29, 59)).ShouldSubmit {
		t.Errorf("Window should open at 16:30")
	}
	if !s.Deadline(models.PeriodDaily, at24(2024, 6, 5, 16, 30, 0)).ShouldSubmit {
		t.Errorf("Window should be open at 16:30")
	}

	info := s.Deadline(models.PeriodWeekly, at24(2024, 6, 7, 20, 0, 0))
	if !info.ShouldSubmit {
		t.Errorf("Unparsable weekly time should fall back to 20:00")
	}
}
