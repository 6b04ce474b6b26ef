package configutil

import (
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

type sampleSettings struct {
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	To      []string      `mapstructure:"to"`
	Retries int           `mapstructure:"retries"`
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out sampleSettings
	err := DecodeSettings(map[string]any{
		"API-Key": "sk",
		"timeout": "90s",
		"to":      "+1,+2",
		"retries": "3",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "sk" || out.Timeout != 90*time.Second || out.Retries != 3 {
		t.Fatalf("unexpected settings %+v", out)
	}
	if len(out.To) != 2 || out.To[1] != "+2" {
		t.Fatalf("unexpected recipients %v", out.To)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}
	if err := ValidateSettings(map[string]any{"apiKey": "x", "model": "m"}, schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateSettings(map[string]any{"api_key": " ", "colour": "red"}, schema)
	if errorsx.Kind(err) != errorsx.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing: api_key") || !strings.Contains(err.Error(), "unknown: colour") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLoadStopsOnInvalid(t *testing.T) {
	var out sampleSettings
	if err := Load(map[string]any{}, Schema{Required: []string{"api_key"}}, &out); err == nil {
		t.Fatalf("expected missing key error")
	}
	if err := Positive(0, "pipeline.retries"); err == nil {
		t.Fatalf("expected positive check to fail")
	}
}
