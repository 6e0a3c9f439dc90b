// Package redact scrubs credentials and connection details from strings
// before they are logged. Provider API keys, bearer tokens, and data-store
// DSNs all flow through error messages at some point; this keeps them out
// of the log stream.
package redact

import "regexp"

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

var patterns = []*regexp.Regexp{
	// Connection strings with inline credentials.
	regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql|amqp|redis)://[^@\s]+@`),

	// Bearer tokens and JWTs.
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{8,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),

	// Provider API keys (sk-..., key/token/secret assignments).
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{8,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
}

// String returns s with all recognized sensitive spans replaced.
func String(s string) string {
	for _, re := range patterns {
		s = re.ReplaceAllString(s, Placeholder)
	}
	return s
}

// Error returns the redacted message of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
