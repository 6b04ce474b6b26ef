// Package redact masks identifiers in transcript text before it reaches logs.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	recordRe = regexp.MustCompile(`(?i)\b(mrn|record|patient id)[\s#:]*[a-z0-9\-]{4,}\b`)
)

// SetEnabled toggles redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers and record identifiers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = recordRe.ReplaceAllString(out, "[REDACTED_RECORD]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Preview returns at most max runes of the redacted text, for log fields.
func Preview(in string, max int) string {
	out := Text(in)
	if max <= 0 {
		return out
	}
	r := []rune(out)
	if len(r) <= max {
		return out
	}
	return string(r[:max]) + "…"
}
