// Package security masks credentials before they reach logs, summaries or
// notifications.
package security

import (
	"regexp"
	"strings"
)

// credentialPatterns match a credential with the secret in group 2.
var credentialPatterns = []*regexp.Regexp{
	// query strings and form bodies: api_key=..., registrationkey=...
	regexp.MustCompile(`(?i)\b(api[_-]?key|registration[_-]?key|access[_-]?token|token|secret)=([^&\s"'#]+)`),
	// JSON bodies: "registrationkey":"..."
	regexp.MustCompile(`(?i)"(api[_-]?key|registration[_-]?key|token|secret)"\s*:\s*"([^"]+)"`),
	// Telegram bot tokens in URL paths
	regexp.MustCompile(`(bot)(\d+:[A-Za-z0-9_-]+)`),
}

// MaskCredential keeps at most the first and last four characters of value.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks every credential found in s.
func Redact(s string) string {
	for _, p := range credentialPatterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			m := p.FindStringSubmatchIndex(match)
			if m == nil || m[4] < 0 {
				return match
			}
			return match[:m[4]] + MaskCredential(match[m[4]:m[5]]) + match[m[5]:]
		})
	}
	return s
}

// ContainsCredential reports whether s carries anything Redact would mask.
func ContainsCredential(s string) bool {
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with its message masked. errors.Is and errors.As
// still see the wrapped chain.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !ContainsCredential(msg) {
		return err
	}
	return &redactedError{msg: Redact(msg), err: err}
}
