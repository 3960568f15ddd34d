package feishu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"daily-report-assistant/models"
)

// ReportRule is a report rule configured in the Feishu report app
type ReportRule struct {
	RuleID          string      `json:"rule_id"`
	Name            string      `json:"name"`
	IconName        string      `json:"icon_name"`
	CreatedAt       int64       `json:"created_at"`
	CreatorUserName string      `json:"creator_user_name"`
	OwnerUserName   string      `json:"owner_user_name"`
	IsDeleted       int         `json:"is_deleted"`
	FormSchema      []FormField `json:"form_schema"`
}

// FormField is one field of a report rule form
type FormField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type rulesData struct {
	Rules []ReportRule `json:"rules"`
}

// RuleName returns the report rule name used for period
func RuleName(period models.Period) string {
	return "工作" + period.Label()
}

// QueryReportRules lists the report rules, optionally filtered by name
func (c *Client) QueryReportRules(ctx context.Context, ruleName string, includeDeleted bool) ([]ReportRule, error) {
	query := url.Values{
		"include_deleted": {"0"},
		"user_id_type":    {"open_id"},
	}
	if includeDeleted {
		query.Set("include_deleted", "1")
	}
	if ruleName != "" {
		query.Set("rule_name", ruleName)
	}

	var data rulesData
	if err := c.call(ctx, http.MethodGet, "/report/v1/rules/query", query, nil, &data); err != nil {
		c.logger.Error("Failed to query report rules: %v", err)
		return nil, err
	}
	return data.Rules, nil
}

// SubmissionStatus describes the report rule and window of one cadence
type SubmissionStatus struct {
	Period   models.Period `json:"period"`
	RuleName string        `json:"rule_name"`
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Deadline DeadlineInfo  `json:"deadline"`
	Rules    []ReportRule  `json:"rules,omitempty"`
}

// ReportSubmissionStatus looks up the report rule of period and its current window.
// The report API exposes rules only, so whether a report was filed is not known here.
func (c *Client) ReportSubmissionStatus(ctx context.Context, period models.Period) SubmissionStatus {
	status := SubmissionStatus{
		Period:   period,
		RuleName: RuleName(period),
		Deadline: c.Deadline(period, c.clock.Now()),
	}

	rules, err := c.QueryReportRules(ctx, status.RuleName, false)
	switch {
	case err != nil:
		status.Message = fmt.Sprintf("查询汇报规则失败: %v", err)
	case len(rules) == 0:
		status.Message = "未找到汇报规则: " + status.RuleName
	default:
		status.Success = true
		status.Rules = rules
		status.Message = fmt.Sprintf("找到%d条汇报规则: %s", len(rules), status.RuleName)
	}
	return status
}
