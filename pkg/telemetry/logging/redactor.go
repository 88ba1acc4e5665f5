package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Pattern is a named redaction rule.
type Pattern struct {
	Name        string
	Regex       string
	Replacement string
}

// Redactor redacts PII (Personally Identifiable Information) from log
// attributes. Learners type free text into chat turns, so message bodies
// and identifiers can carry emails, phone numbers and pasted credentials.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and its replacement.
type redactPattern struct {
	name    string
	regex   *regexp.Regexp
	replace func(string) string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
	PatternEmail       = "email"
	PatternPhone       = "phone"
	PatternIPv4        = "ipv4"
)

// NewRedactor creates a Redactor with the built-in patterns followed by
// extra. Invalid extra patterns are skipped.
func NewRedactor(extra []Pattern) *Redactor {
	r := &Redactor{}

	r.add(PatternAPIKey, `sk-[a-zA-Z0-9_-]{8,}`, RedactAPIKey)
	r.add(PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, func(string) string { return "Bearer ***" })
	r.add(PatternPassword, `(?i)(password|passwd|pwd)[:=]\s*\S+`, func(s string) string {
		return s[:strings.IndexAny(s, ":=")] + ": ***"
	})
	r.add(PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, RedactEmail)
	r.add(PatternPhone, `\+?\d{1,3}[-.\s]\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b|\(\d{3}\)\s?\d{3}-\d{4}\b`, func(string) string { return "***-***-****" })
	r.add(PatternIPv4, `\b(?:\d{1,3}\.){3}\d{1,3}\b`, RedactIPv4)

	for _, p := range extra {
		replacement := p.Replacement
		r.add(p.Name, p.Regex, func(string) string { return replacement })
	}

	return r
}

func (r *Redactor) add(name, expr string, replace func(string) string) {
	regex, err := regexp.Compile(expr)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{name: name, regex: regex, replace: replace})
}

// RedactString redacts PII from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	for _, pattern := range r.patterns {
		value = pattern.regex.ReplaceAllStringFunc(value, pattern.replace)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook. Attributes with
// sensitive keys are masked entirely; other string values are scanned.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.SourceKey) {
		return a
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value))
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// isSensitiveKey checks if a key name indicates a credential.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "secret",
		"api_key", "apikey", "authorization",
		"access_token", "refresh_token", "private_key",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// maskValue keeps a short prefix of string values for debugging.
func maskValue(v slog.Value) string {
	if v.Kind() != slog.KindString {
		return "***"
	}
	s := v.String()
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}

// RedactEmail redacts an email address partially (shows first char and domain).
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	username := parts[0]
	domain := parts[1]

	if len(username) == 0 {
		return "***@" + domain
	}

	return string(username[0]) + "***@" + domain
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}

	return apiKey[:4] + "***"
}

// RedactIPv4 redacts an IPv4 address, keeping only the first octet.
func RedactIPv4(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}

	return parts[0] + ".*.*.*"
}
