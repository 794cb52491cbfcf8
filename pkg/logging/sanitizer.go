package logging

import (
	"regexp"
)

const (
	// MaxBodyLogLength is the maximum length of a response body to log
	MaxBodyLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]*:[^@\s]+@[^/\s]+`)

	// Matches the secret of a signed session cookie value
	sessionCookiePattern = regexp.MustCompile(`(?i)(cleansing_view|session)=[A-Za-z0-9_\-=|]{16,}`)
)

// SanitizeConnectionString removes credentials from PostgreSQL or Redis
// connection strings. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages from the database, Redis or the
// session layer before they are logged or returned to a client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = sessionCookiePattern.ReplaceAllString(sanitized, "${1}="+RedactedText)

	return sanitized
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
