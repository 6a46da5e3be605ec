// Package redact prepares untrusted values for the log: it masks credentials and
// tokens that callers may have passed as job arguments, and caps the size of the
// rendered text so a huge argument (an encoded image, a long prompt list) cannot
// flood the log sink.
package redact

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// DefaultArgLimit is the number of bytes of rendered arguments kept in logs
const DefaultArgLimit = 10240

// Placeholders substituted for redacted values
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
	TruncatedMarker               = "...[TRUNCATED]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// rules are applied in order; earlier rules win on overlapping text
var rules = []rule{
	{
		// user:password@ in connection strings and URLs
		pattern:     regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^/\s:@]+:[^@\s]+@`),
		placeholder: RedactedCredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		placeholder: RedactedCredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		placeholder: RedactedJWTPlaceholder,
	},
	{
		pattern: regexp.MustCompile(
			`(?i)(api[_-]?key|token|secret|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		placeholder: RedactedKeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{12,}\b`),
		placeholder: RedactedKeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		placeholder: RedactedEmailPlaceholder,
	},
}

// String masks credentials, tokens and email addresses in input.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error masks sensitive information in an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Truncate cuts s to at most limit bytes, never splitting a UTF-8 sequence, and
// marks the cut. A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncatedMarker
}

// Args renders call arguments for a log line: formatted with %v, masked, then
// capped at limit bytes.
func Args(args []any, limit int) string {
	if len(args) == 0 {
		return "[]"
	}
	return Truncate(String(fmt.Sprintf("%v", args)), limit)
}
