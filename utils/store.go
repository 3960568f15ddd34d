package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"daily-report-assistant/models"
)

var (
	// ErrNotFound is returned when an identifier matches no record
	ErrNotFound = errors.New("record not found")
	// ErrMissingAPIKey is returned when AI is enabled without a credential
	ErrMissingAPIKey = errors.New("API key is required when AI is enabled")
	// ErrMissingCredentials is returned when Feishu is enabled without app credentials
	ErrMissingCredentials = errors.New("app_id and app_secret are required when Feishu is enabled")
)

// ConfigStore owns the configuration document
// Every mutation runs read-modify-write-save under one mutex.
type ConfigStore struct {
	mu          sync.Mutex
	path        string
	logger      *Logger
	clock       Clock
	doc         *Document
	raw         map[string]interface{}
	subscribers []func(*Document)
}

// NewConfigStore creates a store bound to path and loads it
func NewConfigStore(path string, logger *Logger) *ConfigStore {
	s := &ConfigStore{
		path:   path,
		logger: logger,
		clock:  SystemClock{},
	}
	s.Load()
	return s
}

// SetClock replaces the time source used for timestamps
func (s *ConfigStore) SetClock(c Clock) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// Path returns the file backing the store
func (s *ConfigStore) Path() string {
	return s.path
}

// Subscribe registers fn to receive a snapshot after every successful save
func (s *ConfigStore) Subscribe(fn func(*Document)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Load reads the document from disk, falling back to defaults
func (s *ConfigStore) Load() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s.doc.Clone()
}

func (s *ConfigStore) load() {
	defaults := DefaultDocument()
	defaultTree, err := toTree(defaults)
	if err != nil {
		s.logger.Error("Failed to build default config: %v", err)
		s.doc, s.raw = defaults, map[string]interface{}{}
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read config file %s: %v", s.path, err)
		}
		s.doc, s.raw = defaults, defaultTree
		return
	}

	loaded, err := decodeTree(data)
	if err != nil {
		s.logger.Error("Config file %s is not valid JSON, using defaults: %v", s.path, err)
		s.doc, s.raw = defaults, defaultTree
		return
	}

	merged := MergeTree(defaultTree, loaded)
	mergedData, err := json.Marshal(merged)
	if err != nil {
		s.logger.Error("Failed to marshal merged config: %v", err)
		s.doc, s.raw = defaults, defaultTree
		return
	}

	var doc Document
	if err := json.Unmarshal(mergedData, &doc); err != nil {
		s.logger.Error("Config file %s has unexpected field types, using defaults: %v", s.path, err)
		s.doc, s.raw = defaults, defaultTree
		return
	}

	normalize(&doc)
	s.doc, s.raw = &doc, merged
}

// normalize raises counters past existing identifiers and fills nil collections
func normalize(doc *Document) {
	if doc.WorkLogs == nil {
		doc.WorkLogs = []models.LogEntry{}
	}
	if doc.ReportHistory == nil {
		doc.ReportHistory = []models.ReportRecord{}
	}
	if doc.Templates == nil {
		doc.Templates = map[string]string{}
	}
	if doc.AIProviders == nil {
		doc.AIProviders = map[string]ProviderConfig{}
	}
	for _, e := range doc.WorkLogs {
		if e.ID >= doc.Counters.NextLogID {
			doc.Counters.NextLogID = e.ID + 1
		}
	}
	for _, r := range doc.ReportHistory {
		if r.ID >= doc.Counters.NextReportID {
			doc.Counters.NextReportID = r.ID + 1
		}
	}
	if doc.Counters.NextLogID < 1 {
		doc.Counters.NextLogID = 1
	}
	if doc.Counters.NextReportID < 1 {
		doc.Counters.NextReportID = 1
	}
}

// Save writes the whole document to disk
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *ConfigStore) save() error {
	tree, err := toTree(s.doc)
	if err != nil {
		s.logger.Error("Failed to save config: %v", err)
		return err
	}
	merged := MergeTree(s.raw, tree)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(merged); err != nil {
		s.logger.Error("Failed to marshal config: %v", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.Error("Failed to create config directory: %v", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		s.logger.Error("Failed to write config file: %v", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		s.logger.Error("Failed to replace config file: %v", err)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.raw = merged
	return nil
}

// mutate applies fn and persists; subscribers run after the lock is released
func (s *ConfigStore) mutate(fn func(doc *Document) error) error {
	s.mu.Lock()
	if err := fn(s.doc); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.save()
	var snapshot *Document
	subs := append([]func(*Document){}, s.subscribers...)
	if err == nil && len(subs) > 0 {
		snapshot = s.doc.Clone()
	}
	s.mu.Unlock()

	if snapshot != nil {
		for _, fn := range subs {
			fn(snapshot)
		}
	}
	return err
}

// read runs fn under the lock
func (s *ConfigStore) read(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Snapshot returns a deep copy of the current document
func (s *ConfigStore) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *ConfigStore) now() string {
	return models.FormatTimestamp(s.clock.Now())
}

// WorkLogs returns a copy of every log entry
func (s *ConfigStore) WorkLogs() []models.LogEntry {
	var out []models.LogEntry
	s.read(func(doc *Document) {
		out = make([]models.LogEntry, len(doc.WorkLogs))
		for i, e := range doc.WorkLogs {
			out[i] = e
			out[i].Tags = append([]string{}, e.Tags...)
		}
	})
	return out
}

// AddWorkLog assigns an identifier and creation time to entry and stores it
func (s *ConfigStore) AddWorkLog(entry models.LogEntry) (models.LogEntry, error) {
	err := s.mutate(func(doc *Document) error {
		now := s.clock.Now()
		entry.ID = doc.Counters.NextLogID
		doc.Counters.NextLogID++
		entry.CreatedAt = models.FormatTimestamp(now)
		entry.UpdatedAt = ""
		if entry.Date == "" {
			entry.Date = now.Format(models.DateLayout)
		}
		if entry.Time == "" {
			entry.Time = now.Format(models.TimeLayout)
		}
		if entry.Tags == nil {
			entry.Tags = []string{}
		}
		doc.WorkLogs = append(doc.WorkLogs, entry)
		return nil
	})
	return entry, err
}

// UpdateWorkLog replaces the entry with the given identifier
func (s *ConfigStore) UpdateWorkLog(id int64, entry models.LogEntry) error {
	return s.mutate(func(doc *Document) error {
		for i, e := range doc.WorkLogs {
			if e.ID != id {
				continue
			}
			entry.ID = id
			if entry.CreatedAt == "" {
				entry.CreatedAt = e.CreatedAt
			}
			if entry.Tags == nil {
				entry.Tags = []string{}
			}
			entry.UpdatedAt = s.now()
			doc.WorkLogs[i] = entry
			return nil
		}
		return fmt.Errorf("work log %d: %w", id, ErrNotFound)
	})
}

// DeleteWorkLog removes the entry with the given identifier
func (s *ConfigStore) DeleteWorkLog(id int64) error {
	return s.mutate(func(doc *Document) error {
		kept := doc.WorkLogs[:0:0]
		for _, e := range doc.WorkLogs {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(doc.WorkLogs) {
			return fmt.Errorf("work log %d: %w", id, ErrNotFound)
		}
		doc.WorkLogs = kept
		return nil
	})
}

// Templates returns every named template
func (s *ConfigStore) Templates() map[string]string {
	out := map[string]string{}
	s.read(func(doc *Document) {
		for k, v := range doc.Templates {
			out[k] = v
		}
	})
	return out
}

// Template returns the template for name, or "" when none is stored
func (s *ConfigStore) Template(name string) string {
	var out string
	s.read(func(doc *Document) { out = doc.Templates[name] })
	return out
}

// UpdateTemplate stores one named template
func (s *ConfigStore) UpdateTemplate(name, template string) error {
	return s.mutate(func(doc *Document) error {
		doc.Templates[name] = template
		return nil
	})
}

// SaveTemplates stores several templates at once
func (s *ConfigStore) SaveTemplates(templates map[string]string) error {
	return s.mutate(func(doc *Document) error {
		for k, v := range templates {
			doc.Templates[k] = v
		}
		return nil
	})
}

// Settings returns the application settings
func (s *ConfigStore) Settings() Settings {
	var out Settings
	s.read(func(doc *Document) {
		out = doc.Settings
		out.WorkDays = append([]string{}, doc.Settings.WorkDays...)
		out.CustomReminders = append([]CustomReminder{}, doc.Settings.CustomReminders...)
	})
	return out
}

// UpdateSettings replaces the application settings
func (s *ConfigStore) UpdateSettings(settings Settings) error {
	return s.mutate(func(doc *Document) error {
		doc.Settings = settings
		return nil
	})
}

// FeishuConfig returns the chat platform settings
func (s *ConfigStore) FeishuConfig() FeishuConfig {
	var out FeishuConfig
	s.read(func(doc *Document) { out = doc.Feishu })
	return out
}

// UpdateFeishuConfig validates and replaces the chat platform settings
func (s *ConfigStore) UpdateFeishuConfig(cfg FeishuConfig) error {
	if cfg.Enabled && (cfg.AppID == "" || cfg.AppSecret == "") {
		s.logger.Warn("Refusing Feishu settings: %v", ErrMissingCredentials)
		return ErrMissingCredentials
	}
	return s.mutate(func(doc *Document) error {
		doc.Feishu = cfg
		return nil
	})
}

// AIConfig returns the active language model settings
func (s *ConfigStore) AIConfig() AIConfig {
	var out AIConfig
	s.read(func(doc *Document) { out = doc.AI })
	return out
}

// UpdateAIConfig validates and replaces the language model settings
// The credentials are also remembered under the provider's name.
func (s *ConfigStore) UpdateAIConfig(cfg AIConfig) error {
	if cfg.Enabled && cfg.APIKey == "" {
		s.logger.Warn("Refusing AI settings: %v", ErrMissingAPIKey)
		return ErrMissingAPIKey
	}
	return s.mutate(func(doc *Document) error {
		doc.AI = cfg
		if cfg.Provider != "" {
			doc.AIProviders[cfg.Provider] = ProviderConfig{
				APIKey:     cfg.APIKey,
				APIBaseURL: cfg.APIBaseURL,
				Model:      cfg.Model,
			}
		}
		return nil
	})
}

// AIProviderConfigs returns the saved credentials keyed by provider
func (s *ConfigStore) AIProviderConfigs() map[string]ProviderConfig {
	out := map[string]ProviderConfig{}
	s.read(func(doc *Document) {
		for k, v := range doc.AIProviders {
			out[k] = v
		}
	})
	return out
}

// AIProviderConfig returns the saved credentials for one provider
func (s *ConfigStore) AIProviderConfig(name string) (ProviderConfig, bool) {
	var (
		out ProviderConfig
		ok  bool
	)
	s.read(func(doc *Document) { out, ok = doc.AIProviders[name] })
	return out, ok
}

// UpdateAIProviderConfig stores the credentials for one provider
func (s *ConfigStore) UpdateAIProviderConfig(name string, cfg ProviderConfig) error {
	return s.mutate(func(doc *Document) error {
		doc.AIProviders[name] = cfg
		return nil
	})
}

// ReportHistory returns every saved report, oldest first
func (s *ConfigStore) ReportHistory() []models.ReportRecord {
	var out []models.ReportRecord
	s.read(func(doc *Document) {
		out = append([]models.ReportRecord{}, doc.ReportHistory...)
	})
	return out
}

// AddReportHistory assigns an identifier to record and stores it
func (s *ConfigStore) AddReportHistory(record models.ReportRecord) (models.ReportRecord, error) {
	err := s.mutate(func(doc *Document) error {
		now := s.now()
		record.ID = doc.Counters.NextReportID
		doc.Counters.NextReportID++
		record.CreatedAt = now
		if record.GeneratedAt == "" {
			record.GeneratedAt = now
		}
		doc.ReportHistory = append(doc.ReportHistory, record)
		return nil
	})
	return record, err
}

// DeleteReportHistory removes one saved report
func (s *ConfigStore) DeleteReportHistory(id int64) error {
	return s.mutate(func(doc *Document) error {
		for i, r := range doc.ReportHistory {
			if r.ID == id {
				doc.ReportHistory = append(doc.ReportHistory[:i:i], doc.ReportHistory[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("report %d: %w", id, ErrNotFound)
	})
}

// ClearReportHistory removes every saved report
func (s *ConfigStore) ClearReportHistory() error {
	return s.mutate(func(doc *Document) error {
		doc.ReportHistory = []models.ReportRecord{}
		return nil
	})
}

// SubmitStatus returns the automatic submission state
func (s *ConfigStore) SubmitStatus() SubmitStatus {
	var out SubmitStatus
	s.read(func(doc *Document) { out = doc.SubmitStatus })
	return out
}

// UpdateSubmitStatus replaces the automatic submission state
func (s *ConfigStore) UpdateSubmitStatus(status SubmitStatus) error {
	return s.mutate(func(doc *Document) error {
		doc.SubmitStatus = status
		return nil
	})
}

// MarkSubmitted records a successful submission for period on date
func (s *ConfigStore) MarkSubmitted(period models.Period, date string) error {
	return s.mutate(func(doc *Document) error {
		doc.SubmitStatus.MarkSubmitted(period, date)
		return nil
	})
}

// MarkAutoSaved records the local end-of-day auto save without touching per-cadence dates
func (s *ConfigStore) MarkAutoSaved(date string) error {
	return s.mutate(func(doc *Document) error {
		doc.SubmitStatus.LastSubmitDate = date
		doc.SubmitStatus.SubmitCount++
		return nil
	})
}

// PrivacyConfig returns the redaction settings
func (s *ConfigStore) PrivacyConfig() PrivacyConfig {
	var out PrivacyConfig
	s.read(func(doc *Document) { out = doc.Privacy })
	return out
}

// ArchiveConfig returns the report archive settings
func (s *ConfigStore) ArchiveConfig() ArchiveConfig {
	var out ArchiveConfig
	s.read(func(doc *Document) { out = doc.Archive })
	return out
}

// Backup copies the config file to path
func (s *ConfigStore) Backup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return err
		}
	}
	if err := CopyFile(s.path, path); err != nil {
		s.logger.Error("Failed to back up config to %s: %v", path, err)
		return err
	}
	s.logger.Info("Config backed up to %s", path)
	return nil
}

// Restore replaces the config file with the one at path and reloads it
func (s *ConfigStore) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("backup %s is not valid JSON", path)
	}

	s.mu.Lock()
	if err := CopyFile(path, s.path); err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to restore config from %s: %v", path, err)
		return err
	}
	s.load()
	snapshot := s.doc.Clone()
	subs := append([]func(*Document){}, s.subscribers...)
	s.mu.Unlock()

	s.logger.Info("Config restored from %s", path)
	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// SortedByDate returns entries sorted ascending by date; ties keep insertion order
func SortedByDate(entries []models.LogEntry) []models.LogEntry {
	out := append([]models.LogEntry{}, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}
