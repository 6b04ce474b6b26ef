package relay

import (
	"context"
	"testing"

	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

func TestDefaultProvidersBuild(t *testing.T) {
	r := DefaultProviders()
	tr, err := r.BuildTranscriber(VendorConfig{Provider: " Mock ", Settings: map[string]any{"transcript": "hi"}})
	if err != nil {
		t.Fatalf("build mock stt: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), audio.PCM{})
	if err != nil || text != "hi" {
		t.Fatalf("unexpected transcript %q %v", text, err)
	}
	if _, err := r.BuildTranscriber(VendorConfig{Provider: "stub"}); err != nil {
		t.Fatalf("build stub: %v", err)
	}
	if _, err := r.BuildTranscriber(VendorConfig{Provider: "whisper_server", Settings: map[string]any{"timeout": "30s"}}); err != nil {
		t.Fatalf("build whisper_server: %v", err)
	}
	if _, err := r.BuildDiagnoser(VendorConfig{Provider: "agent", Settings: map[string]any{"url": "http://agent:8000"}}); err != nil {
		t.Fatalf("build agent: %v", err)
	}
}

func TestProviderErrors(t *testing.T) {
	r := DefaultProviders()
	if _, err := r.BuildTranscriber(VendorConfig{Provider: "nope"}); errorsx.Kind(err) != errorsx.KindValidation {
		t.Fatalf("expected validation error for unknown provider, got %v", err)
	}
	if _, err := r.BuildTranslator(VendorConfig{Provider: "openai"}); errorsx.Kind(err) != errorsx.KindValidation {
		t.Fatalf("expected missing api_key error, got %v", err)
	}
	if _, err := r.BuildDiagnoser(VendorConfig{Provider: "mock", Settings: map[string]any{"colour": "red"}}); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
