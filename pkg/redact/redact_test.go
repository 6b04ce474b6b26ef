package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "email a@b.com and phone +1 415 555 0100"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "email a@b.com, phone +1 415 555 0100, MRN: 88-1234"
	got := Text(in)
	for _, want := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_RECORD]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestPreviewTruncates(t *testing.T) {
	SetEnabled(false)
	if got := Preview("persistent cough and mild fever", 10); got != "persistent…" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("short", 10); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
