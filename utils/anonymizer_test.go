package utils

import (
	"strings"
	"testing"
)

func allPrivacy() PrivacyConfig {
	return PrivacyConfig{
		AnonymizeSensitiveData: true,
		AnonymizeURLs:          true,
		AnonymizeEmails:        true,
		AnonymizeIPAddresses:   true,
		AnonymizeAPIKeys:       true,
		AnonymizeFilePaths:     true,
	}
}

func TestAnonymizer_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		secret string
	}{
		{"URL", "排查 https://api.example.com/v1/users 超时", "api.example.com"},
		{"Email", "请联系 user@example.com 获取帮助", "user@example.com"},
		{"IP", "部署到 192.168.1.100 完成", "192.168.1.100"},
		{"Provider key", "换成新的 sk-abcdefghijklmnopqrstuvwx 测试", "sk-abcdefghijklmnopqrstuvwx"},
		{"Unix path", "清理 /var/log/app/error.log 日志", "/var/log/app/error.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnonymizer(allPrivacy())
			anonymized := a.Anonymize(tt.text)
			if strings.Contains(anonymized, tt.secret) {
				t.Errorf("Expected %q to be anonymized, got: %s", tt.secret, anonymized)
			}
			if restored := a.Deanonymize(anonymized); restored != tt.text {
				t.Errorf("Deanonymization failed. Expected: %s, Got: %s", tt.text, restored)
			}
		})
	}
}

func TestAnonymizer_Disabled(t *testing.T) {
	a := NewAnonymizer(PrivacyConfig{AnonymizeURLs: true})
	text := "see https://example.com"
	if got := a.Anonymize(text); got != text {
		t.Errorf("Disabled anonymizer changed text: %s", got)
	}
	if a.MappingCount() != 0 {
		t.Errorf("Disabled anonymizer recorded mappings")
	}
}

func TestAnonymizer_PerKindSwitch(t *testing.T) {
	cfg := allPrivacy()
	cfg.AnonymizeEmails = false
	a := NewAnonymizer(cfg)

	got := a.Anonymize("mail user@example.com at 10.0.0.1")
	if !strings.Contains(got, "user@example.com") {
		t.Errorf("Email should be kept when its switch is off: %s", got)
	}
	if strings.Contains(got, "10.0.0.1") {
		t.Errorf("IP should still be anonymized: %s", got)
	}
}

func TestAnonymizer_StablePlaceholders(t *testing.T) {
	a := NewAnonymizer(allPrivacy())
	first := a.Anonymize("ping 10.0.0.1")
	second := a.Anonymize("again 10.0.0.1")
	if strings.TrimPrefix(first, "ping ") != strings.TrimPrefix(second, "again ") {
		t.Errorf("Same value should map to the same placeholder: %s / %s", first, second)
	}
	if a.MappingCount() != 1 {
		t.Errorf("Expected 1 mapping, got %d", a.MappingCount())
	}

	a.Clear()
	if a.MappingCount() != 0 {
		t.Errorf("Clear should drop mappings")
	}
}

func TestAnonymizer_NilIsPassThrough(t *testing.T) {
	var a *Anonymizer
	if a.Anonymize("x") != "x" || a.Deanonymize("y") != "y" || a.IsEnabled() {
		t.Errorf("Nil anonymizer should pass text through")
	}
}
