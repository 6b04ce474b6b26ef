// Package stub provides a deterministic local transcriber that never
// touches a model.
package stub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/logging"
)

// Transcriber produces placeholder transcripts describing the clip.
type Transcriber struct {
	log   *slog.Logger
	label string
}

func New(label string) *Transcriber {
	if label == "" {
		label = "local"
	}
	return &Transcriber{
		log:   logging.NewComponentLogger(slog.Default(), "stt.stub"),
		label: label,
	}
}

func (t *Transcriber) Name() string { return "stub" }

func (t *Transcriber) Transcribe(_ context.Context, pcm audio.PCM) (string, error) {
	if len(pcm.Samples) == 0 {
		return "", nil
	}
	text := fmt.Sprintf("[stub:%s] received %d samples (%s)", t.label, len(pcm.Samples), pcm.Duration())
	t.log.Debug("stub transcript", "samples", len(pcm.Samples), "sample_rate", pcm.SampleRate)
	return text, nil
}
