package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"daily-report-assistant/models"
)

// Document is the whole persisted configuration
type Document struct {
	WorkLogs      []models.LogEntry         `json:"work_logs"`
	Templates     map[string]string         `json:"templates"`
	Settings      Settings                  `json:"settings"`
	Feishu        FeishuConfig              `json:"feishu_config"`
	AI            AIConfig                  `json:"ai_config"`
	AIProviders   map[string]ProviderConfig `json:"ai_providers_config"`
	ReportHistory []models.ReportRecord     `json:"report_history"`
	SubmitStatus  SubmitStatus              `json:"submit_status"`
	Counters      Counters                  `json:"counters"`
	Archive       ArchiveConfig             `json:"archive"`
	Privacy       PrivacyConfig             `json:"privacy"`
}

// Settings represents application settings
type Settings struct {
	ReminderEnabled   bool             `json:"reminder_enabled"`
	ReminderInterval  int              `json:"reminder_interval"` // minutes
	WorkDays          []string         `json:"work_days"`
	WorkStartTime     string           `json:"work_start_time"`
	WorkEndTime       string           `json:"work_end_time"`
	AutoSubmitTime    string           `json:"auto_submit_time"`
	StartupWithSystem bool             `json:"startup_with_system"`
	MinimizeToTray    bool             `json:"minimize_to_tray"`
	ShowNotifications bool             `json:"show_notifications"`
	QuickAddPosition  Position         `json:"quick_add_position"`
	CustomReminders   []CustomReminder `json:"custom_reminders"`
}

// Position is a window position remembered between runs
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CustomReminder fires once a day at Time
type CustomReminder struct {
	Time    string `json:"time"`
	Message string `json:"message"`
	Enabled bool   `json:"enabled"`
}

// FeishuConfig represents chat platform integration settings
type FeishuConfig struct {
	Enabled           bool   `json:"enabled"`
	AppID             string `json:"app_id"`
	AppSecret         string `json:"app_secret"`
	ChatID            string `json:"chat_id"`
	BaseURL           string `json:"base_url"`
	AutoReportEnabled bool   `json:"auto_report_enabled"`
	CheckInterval     int    `json:"check_interval"` // minutes
	DailyDeadline     string `json:"daily_deadline"`
	DailyAdvanceHours int    `json:"daily_advance_hours"`
	WeeklySubmitTime  string `json:"weekly_submit_time"`
	MonthlySubmitTime string `json:"monthly_submit_time"`
	MessageFormat     string `json:"message_format"` // card, text or markdown
}

// AIConfig represents the active language model settings
type AIConfig struct {
	Enabled      bool    `json:"enabled"`
	Provider     string  `json:"provider"`
	APIKey       string  `json:"api_key"`
	APIBaseURL   string  `json:"api_base_url"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Timeout      int     `json:"timeout"` // seconds
	RetryCount   int     `json:"retry_count"`
	SystemPrompt string  `json:"system_prompt"`
}

// ProviderConfig holds credentials saved per provider
type ProviderConfig struct {
	APIKey     string `json:"api_key"`
	APIBaseURL string `json:"api_base_url"`
	Model      string `json:"model"`
}

// SubmitStatus tracks automatic submissions per cadence
type SubmitStatus struct {
	LastSubmitDate    string `json:"last_submit_date"`
	LastDailySubmit   string `json:"last_daily_submit"`
	LastWeeklySubmit  string `json:"last_weekly_submit"`
	LastMonthlySubmit string `json:"last_monthly_submit"`
	AutoSubmitEnabled bool   `json:"auto_submit_enabled"`
	SubmitCount       int    `json:"submit_count"`
}

// LastSubmit returns the last submit date recorded for period
func (s SubmitStatus) LastSubmit(period models.Period) string {
	switch period {
	case models.PeriodDaily:
		return s.LastDailySubmit
	case models.PeriodWeekly:
		return s.LastWeeklySubmit
	case models.PeriodMonthly:
		return s.LastMonthlySubmit
	}
	return s.LastSubmitDate
}

// MarkSubmitted records a successful submission for period on date
func (s *SubmitStatus) MarkSubmitted(period models.Period, date string) {
	switch period {
	case models.PeriodDaily:
		s.LastDailySubmit = date
	case models.PeriodWeekly:
		s.LastWeeklySubmit = date
	case models.PeriodMonthly:
		s.LastMonthlySubmit = date
	}
	s.LastSubmitDate = date
	s.SubmitCount++
}

// Counters hold the next identifiers to hand out
type Counters struct {
	NextLogID    int64 `json:"next_log_id"`
	NextReportID int64 `json:"next_report_id"`
}

// ArchiveConfig controls the sqlite report archive
type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"db_path"`
}

// PrivacyConfig controls redaction of log text sent to providers
type PrivacyConfig struct {
	AnonymizeSensitiveData bool `json:"anonymize_sensitive_data"`
	AnonymizeURLs          bool `json:"anonymize_urls"`
	AnonymizeEmails        bool `json:"anonymize_emails"`
	AnonymizeIPAddresses   bool `json:"anonymize_ip_addresses"`
	AnonymizeAPIKeys       bool `json:"anonymize_api_keys"`
	AnonymizeFilePaths     bool `json:"anonymize_file_paths"`
}

// Provider names
const (
	ProviderDeepSeek = "DeepSeek"
	ProviderZhipu    = "智谱AI"
	ProviderBaidu    = "百度文心"
	ProviderQwen     = "阿里通义"
	ProviderDoubao   = "Doubao"
)

// DefaultSystemPrompt is used when the user has not configured one
const DefaultSystemPrompt = "你是一个专业的工作报告助手，请根据提供的工作日志生成简洁、专业的工作报告。"

// Default report templates
const (
	DefaultDailyTemplate   = "今日工作总结：\n\n完成事项：\n{completed_tasks}\n\n进行中事项：\n{ongoing_tasks}\n\n明日计划：\n{tomorrow_plan}"
	DefaultWeeklyTemplate  = "本周工作总结：\n\n主要成果：\n{achievements}\n\n完成项目：\n{completed_projects}\n\n下周计划：\n{next_week_plan}"
	DefaultMonthlyTemplate = "本月工作总结：\n\n月度成果：\n{monthly_achievements}\n\n重要里程碑：\n{milestones}\n\n下月目标：\n{next_month_goals}"
)

// DefaultFeishuBaseURL is the Feishu open platform API root
const DefaultFeishuBaseURL = "https://open.feishu.cn/open-apis"

// DefaultDocument returns the hardcoded default configuration
func DefaultDocument() *Document {
	return &Document{
		WorkLogs: []models.LogEntry{},
		Templates: map[string]string{
			string(models.PeriodDaily):   DefaultDailyTemplate,
			string(models.PeriodWeekly):  DefaultWeeklyTemplate,
			string(models.PeriodMonthly): DefaultMonthlyTemplate,
		},
		Settings: Settings{
			ReminderEnabled:   true,
			ReminderInterval:  60,
			WorkDays:          []string{"周一", "周二", "周三", "周四", "周五"},
			WorkStartTime:     "09:00",
			WorkEndTime:       "18:00",
			AutoSubmitTime:    "20:00",
			StartupWithSystem: false,
			MinimizeToTray:    true,
			ShowNotifications: true,
			QuickAddPosition:  Position{X: 100, Y: 100},
			CustomReminders:   []CustomReminder{},
		},
		Feishu: FeishuConfig{
			BaseURL:           DefaultFeishuBaseURL,
			CheckInterval:     30,
			DailyDeadline:     "18:00",
			DailyAdvanceHours: 2,
			WeeklySubmitTime:  "20:00",
			MonthlySubmitTime: "20:00",
			MessageFormat:     "card",
		},
		AI: AIConfig{
			Provider:     ProviderDeepSeek,
			APIBaseURL:   "https://api.deepseek.com/v1",
			Model:        "deepseek-chat",
			Temperature:  0.7,
			MaxTokens:    1000,
			Timeout:      30,
			RetryCount:   3,
			SystemPrompt: DefaultSystemPrompt,
		},
		AIProviders: map[string]ProviderConfig{
			ProviderDeepSeek: {APIBaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
			ProviderZhipu:    {APIBaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4"},
			ProviderBaidu:    {APIBaseURL: "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat", Model: "ernie-bot-turbo"},
			ProviderQwen:     {APIBaseURL: "https://dashscope.aliyuncs.com/api/v1", Model: "qwen-turbo"},
			ProviderDoubao:   {APIBaseURL: "https://ark.cn-beijing.volces.com/api/v3", Model: "doubao-lite-4k"},
		},
		ReportHistory: []models.ReportRecord{},
		SubmitStatus: SubmitStatus{
			AutoSubmitEnabled: true,
		},
		Counters: Counters{NextLogID: 1, NextReportID: 1},
		Archive: ArchiveConfig{
			Enabled: true,
			DBPath:  "./data/reports.db",
		},
		Privacy: PrivacyConfig{
			AnonymizeURLs:        true,
			AnonymizeEmails:      true,
			AnonymizeIPAddresses: true,
			AnonymizeAPIKeys:     true,
			AnonymizeFilePaths:   true,
		},
	}
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		return DefaultDocument()
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return DefaultDocument()
	}
	return &out
}

// toTree converts v into a generic JSON tree
func toTree(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return decodeTree(data)
}

func decodeTree(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if tree == nil {
		tree = map[string]interface{}{}
	}
	return tree, nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// ExpandPath is the exported form of expandPath used by main
func ExpandPath(path string) string {
	return expandPath(path)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/work_logs.json"
	}

	return filepath.Join(configDir, "daily-report-assistant", "work_logs.json")
}
