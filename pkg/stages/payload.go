// Package stages holds the ingestion handler and the periodic pipeline
// stages that move fragments between queues.
package stages

import (
	"strings"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

// ActionTranscribeTranslate is the only action the voice channel accepts.
const ActionTranscribeTranslate = "transcribe_translate"

// VoicePayload is one inbound voice message, queued as received.
type VoicePayload struct {
	Action      string  `json:"action"`
	Audio       string  `json:"audio"`
	SampleRate  int     `json:"sample_rate"`
	Mode        string  `json:"mode"`
	Duration    float64 `json:"duration"`
	TranslateTo *string `json:"translate_to"`
}

// Target returns the requested translation language, or "" for none.
func (p VoicePayload) Target() string {
	if p.TranslateTo == nil {
		return ""
	}
	return strings.TrimSpace(*p.TranslateTo)
}

// Mode selects the transcription backend.
type Mode string

const (
	ModeCloud Mode = "cloud"
	ModeLocal Mode = "local"
)

// ParseMode accepts c/cloud and l/local in any case.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "c", "cloud":
		return ModeCloud, nil
	case "l", "local":
		return ModeLocal, nil
	default:
		return "", errorsx.New(errorsx.ReasonValidation, "invalid transcription mode %q", raw)
	}
}
