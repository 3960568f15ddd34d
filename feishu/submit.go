package feishu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"daily-report-assistant/db"
	"daily-report-assistant/models"
	"daily-report-assistant/utils"
)

// SubmitResult is the outcome of one automatic submission
type SubmitResult struct {
	Period      models.Period `json:"period"`
	Label       string        `json:"type"`
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	SubmittedAt time.Time     `json:"submitted_at,omitempty"`
}

// GenerateFunc produces the report content for a cadence
type GenerateFunc func(ctx context.Context, period models.Period) (string, error)

// AutoSubmit sends content if period's window is open right now
// Outside the window nothing is sent.
func (c *Client) AutoSubmit(ctx context.Context, chatID, content string, period models.Period) SubmitResult {
	label := period.Label()
	result := SubmitResult{Period: period, Label: label}

	now := c.clock.Now()
	if !c.schedule.Deadline(period, now).ShouldSubmit {
		result.Message = fmt.Sprintf("当前时间不在%s提交时间范围内", label)
		return result
	}

	if err := c.SendReport(ctx, chatID, content, c.format, label); err != nil {
		result.Message = fmt.Sprintf("%s自动提交失败: %v", label, err)
		c.record(result, now)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("%s自动提交成功", label)
	result.SubmittedAt = c.clock.Now()
	c.record(result, now)
	return result
}

func (c *Client) record(r SubmitResult, at time.Time) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.RecordSubmission(&db.Submission{
		Type:        string(r.Period),
		Date:        at.Format(models.DateLayout),
		Success:     r.Success,
		Message:     r.Message,
		SubmittedAt: models.FormatTimestamp(at),
	})
	if err != nil {
		c.logger.Warn("Failed to record %s submission: %v", r.Period, err)
	}
}

// SubmitCadence generates and submits one cadence if its window is open
// The bool is false when the window is closed or generation produced nothing.
// Generation errors and panics become a failed result.
func (c *Client) SubmitCadence(ctx context.Context, chatID string, period models.Period, generate GenerateFunc) (SubmitResult, bool) {
	if !c.schedule.Deadline(period, c.clock.Now()).ShouldSubmit {
		return SubmitResult{}, false
	}

	label := period.Label()
	var result SubmitResult
	attempted := false
	err := utils.CatchPanic(c.logger, label+" submission", func() error {
		content, err := generate(ctx, period)
		if err != nil {
			return err
		}
		if strings.TrimSpace(content) == "" {
			return nil
		}
		result = c.AutoSubmit(ctx, chatID, content, period)
		attempted = true
		return nil
	})
	if err != nil {
		return SubmitResult{
			Period:  period,
			Label:   label,
			Message: fmt.Sprintf("%s生成失败: %v", label, err),
		}, true
	}
	return result, attempted
}

// CheckAndAutoSubmit checks every cadence and submits those whose window is open
// A failure in one cadence does not stop the others.
func (c *Client) CheckAndAutoSubmit(ctx context.Context, chatID string, generate GenerateFunc) []SubmitResult {
	var results []SubmitResult
	for _, period := range models.Cadences {
		if r, ok := c.SubmitCadence(ctx, chatID, period, generate); ok {
			results = append(results, r)
		}
	}
	return results
}
