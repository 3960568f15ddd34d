package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Anonymizer replaces sensitive values in log text with stable placeholders
// before it is sent to a language model, and restores them in the reply.
type Anonymizer struct {
	mu       sync.RWMutex
	mapping  map[string]string // placeholder -> original
	reverse  map[string]string // original -> placeholder
	config   PrivacyConfig
	patterns []AnonymizationPattern
}

// AnonymizationPattern defines a pattern to detect and anonymize
type AnonymizationPattern struct {
	Name        string
	Kind        string // which PrivacyConfig switch governs it
	Regex       *regexp.Regexp
	Replacement string // e.g. "URL_%s"
	Priority    int
}

const (
	kindAPIKey = "api_key"
	kindURL    = "url"
	kindEmail  = "email"
	kindIP     = "ip"
	kindPath   = "path"
	kindOther  = "other"
)

// NewAnonymizer creates an anonymizer with the default patterns
func NewAnonymizer(config PrivacyConfig) *Anonymizer {
	a := &Anonymizer{
		mapping: make(map[string]string),
		reverse: make(map[string]string),
		config:  config,
	}

	a.patterns = []AnonymizationPattern{
		{"Bearer Token", kindAPIKey, regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]{20,}`), "BEARER_TOKEN_%s", 100},
		{"API Key", kindAPIKey, regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?key|secret[_-]?key)[\s:=]+[a-zA-Z0-9_\-]{20,}`), "API_KEY_%s", 95},
		{"Provider Key", kindAPIKey, regexp.MustCompile(`\bsk-[a-zA-Z0-9]{20,}\b`), "API_KEY_%s", 94},
		{"JWT Token", kindAPIKey, regexp.MustCompile(`eyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`), "JWT_TOKEN_%s", 90},
		{"URL with Auth", kindURL, regexp.MustCompile(`https?://[^:\s]+:[^@\s]+@[^\s\)\"\']+`), "URL_WITH_AUTH_%s", 80},
		{"URL", kindURL, regexp.MustCompile(`https?://[^\s\)\"\'<>，。]+`), "URL_%s", 75},
		{"Password", kindOther, regexp.MustCompile(`(?i)(password|passwd|pwd|密码)[\s:=：]+[^\s,\)\"\'，]+`), "PASSWORD_%s", 70},
		{"IPv4 Address", kindIP, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`), "IP_ADDRESS_%s", 60},
		{"Email", kindEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), "EMAIL_%s", 55},
		{"Phone Number", kindOther, regexp.MustCompile(`(?:\+?86)?[-\s]?1[3-9]\d{9}\b`), "PHONE_%s", 50},
		{"Windows Path", kindPath, regexp.MustCompile(`[a-zA-Z]:\\(?:[^\s\)\"\'<>|*?]+\\)*[^\s\)\"\'<>|*?]+`), "WIN_PATH_%s", 40},
		{"Unix Path", kindPath, regexp.MustCompile(`/(?:home|root|usr|var|etc|opt)/[^\s\)\"\'<>]+`), "UNIX_PATH_%s", 39},
	}
	sort.SliceStable(a.patterns, func(i, j int) bool {
		return a.patterns[i].Priority > a.patterns[j].Priority
	})

	return a
}

// Anonymize replaces sensitive information in the text
func (a *Anonymizer) Anonymize(text string) string {
	if a == nil || text == "" {
		return text
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.config.AnonymizeSensitiveData {
		return text
	}

	result := text
	for _, pattern := range a.patterns {
		if !a.isPatternEnabled(pattern) {
			continue
		}
		for _, original := range pattern.Regex.FindAllString(result, -1) {
			if _, isPlaceholder := a.mapping[original]; isPlaceholder {
				continue
			}
			placeholder, exists := a.reverse[original]
			if !exists {
				placeholder = a.generatePlaceholder(pattern.Replacement, original)
				a.mapping[placeholder] = original
				a.reverse[original] = placeholder
			}
			result = strings.ReplaceAll(result, original, placeholder)
		}
	}

	return result
}

// Deanonymize restores original sensitive information in the text
func (a *Anonymizer) Deanonymize(text string) string {
	if a == nil || text == "" {
		return text
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	// longest placeholders first so one never clobbers a prefix of another
	placeholders := make([]string, 0, len(a.mapping))
	for p := range a.mapping {
		placeholders = append(placeholders, p)
	}
	sort.Slice(placeholders, func(i, j int) bool { return len(placeholders[i]) > len(placeholders[j]) })

	result := text
	for _, p := range placeholders {
		result = strings.ReplaceAll(result, p, a.mapping[p])
	}
	return result
}

// Clear clears all stored mappings
func (a *Anonymizer) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mapping = make(map[string]string)
	a.reverse = make(map[string]string)
}

// IsEnabled returns whether anonymization is enabled
func (a *Anonymizer) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.AnonymizeSensitiveData
}

// MappingCount returns the number of anonymized values
func (a *Anonymizer) MappingCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.mapping)
}

func (a *Anonymizer) generatePlaceholder(template, value string) string {
	hash := md5.Sum([]byte(value))
	return fmt.Sprintf(template, hex.EncodeToString(hash[:])[:8])
}

func (a *Anonymizer) isPatternEnabled(pattern AnonymizationPattern) bool {
	switch pattern.Kind {
	case kindURL:
		return a.config.AnonymizeURLs
	case kindAPIKey:
		return a.config.AnonymizeAPIKeys
	case kindEmail:
		return a.config.AnonymizeEmails
	case kindIP:
		return a.config.AnonymizeIPAddresses
	case kindPath:
		return a.config.AnonymizeFilePaths
	default:
		return a.config.AnonymizeSensitiveData
	}
}
