package stt

import (
	"context"

	"github.com/harunnryd/clinirelay/pkg/audio"
)

// Transcriber turns one recorded PCM clip into text.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe returns the recognized text. Failures carry the
	// transcription reason code.
	Transcribe(ctx context.Context, pcm audio.PCM) (string, error)
}

// Config contains vendor-agnostic transcription configuration.
type Config struct {
	Language string
	Model    string
}
