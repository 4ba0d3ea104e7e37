package stringutil

import (
	"regexp"

	"github.com/a5c-ai/agentdispatch/pkg/logger"
)

var sanitizeLog = logger.New("stringutil:sanitize")

// Regex patterns for detecting potential secret key names
var (
	// Match uppercase snake_case identifiers that look like secret names (e.g., MY_SECRET_KEY, GITHUB_TOKEN, API_KEY)
	// Excludes common dispatch-environment keywords
	secretNamePattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]*_[A-Z0-9_]+)\b`)

	// Match PascalCase identifiers ending with security-related suffixes (e.g., GitHubToken, ApiKey, DeploySecret)
	pascalCaseSecretPattern = regexp.MustCompile(`\b([A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)*(?:Token|Key|Secret|Password|Credential|Auth))\b`)

	// Env var names the orchestrator itself sets or commonly sees in a subprocess's
	// environment; these are never redacted even though they match the snake_case pattern.
	commonEnvKeywords = map[string]bool{
		"AGENT_STATUS_FD":   true,
		"AGENT_LOG_FD":      true,
		"AGENT_ID":          true,
		"GITHUB_REPOSITORY": true,
		"GITHUB_EVENT_NAME": true,
		"GITHUB_SHA":        true,
		"GITHUB_REF":        true,
		"PATH":              true,
		"HOME":              true,
		"SHELL":             true,
		"LANG":              true,
		"TERM":              true,
		"TZ":                true,
		"PWD":               true,
		"MAX_TURNS":         true,
		"TIMEOUT_MINUTES":   true,
	}
)

// SanitizeErrorMessage redacts potential secret values from subprocess stdout,
// stderr, and back-channel log messages before they are written to the
// orchestrator log or run artifacts. Agent CLIs often echo their own
// environment on failure; this keeps a leaked credential from ending up in a
// log a less-trusted caller can read.
func SanitizeErrorMessage(message string) string {
	if message == "" {
		return message
	}

	sanitizeLog.Printf("sanitizing message: length=%d", len(message))

	// Redact uppercase snake_case patterns (e.g., MY_SECRET_KEY, API_TOKEN)
	sanitized := secretNamePattern.ReplaceAllStringFunc(message, func(match string) string {
		if commonEnvKeywords[match] {
			return match
		}
		sanitizeLog.Printf("redacted snake_case pattern: %s", match)
		return "[REDACTED]"
	})

	// Redact PascalCase patterns ending with security suffixes (e.g., GitHubToken, ApiKey)
	sanitized = pascalCaseSecretPattern.ReplaceAllString(sanitized, "[REDACTED]")

	if sanitized != message {
		sanitizeLog.Print("message sanitization applied redactions")
	}

	return sanitized
}
