package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/clinirelay/pkg/adapters/stt"
	"github.com/harunnryd/clinirelay/pkg/adapters/translate"
	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
	"github.com/harunnryd/clinirelay/pkg/redact"
)

// TextSink receives finished text fragments.
type TextSink interface {
	Push(text string) *fragment.Fragment[string]
}

type TranscribeConfig struct {
	Voice        *fragment.Queue[VoicePayload]
	Sinks        []TextSink
	Transcribers map[Mode]stt.Transcriber
	Translator   translate.Translator
	// SourceLanguage is passed to the translator as the input language.
	SourceLanguage string
	Logger         *slog.Logger
	Observer       metrics.Observer
}

// TranscribeTranslateStage drains the voice queue, transcribes each clip
// and optionally translates it.
type TranscribeTranslateStage struct {
	cfg    TranscribeConfig
	logger *slog.Logger
}

func NewTranscribeTranslate(cfg TranscribeConfig) *TranscribeTranslateStage {
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = "English"
	}
	return &TranscribeTranslateStage{
		cfg:    cfg,
		logger: logging.NewComponentLogger(cfg.Logger, "stage.transcribe"),
	}
}

// Run processes every queued fragment. A failing fragment is dropped and
// the batch continues; the joined error only summarizes the batch.
func (s *TranscribeTranslateStage) Run(ctx context.Context) error {
	batch := s.cfg.Voice.DrainAll()
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	for i, f := range batch {
		if ctx.Err() != nil {
			s.abandon(batch[i:], ctx.Err())
			errs = append(errs, ctx.Err())
			break
		}
		text, err := s.process(ctx, f.Payload)
		if err != nil {
			s.logger.Warn("voice_fragment_dropped",
				slog.String("fragment_id", f.ID),
				slog.String("reason", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			metrics.Record(s.cfg.Observer, metrics.EventFragmentDropped, map[string]string{
				"stage":       "transcribe",
				"kind":        string(errorsx.Kind(err)),
				"fragment_id": f.ID,
			})
			errs = append(errs, errorsx.ForFragment(err, f.ID))
			continue
		}
		var textID string
		for i, sink := range s.cfg.Sinks {
			if out := sink.Push(text); i == 0 && out != nil {
				textID = out.ID
			}
		}
		s.logger.Info("voice_fragment_transcribed",
			slog.String("fragment_id", f.ID),
			slog.String("preview", redact.Preview(text, 48)))
		metrics.Record(s.cfg.Observer, metrics.EventFragmentTranscribed, map[string]string{
			"mode":        f.Payload.Mode,
			"translated":  fmt.Sprint(f.Payload.Target() != ""),
			"fragment_id": f.ID,
			"text_id":     textID,
		})
	}
	return errors.Join(errs...)
}

// abandon records fragments drained but never processed because the
// stage was cancelled.
func (s *TranscribeTranslateStage) abandon(rest []*fragment.Fragment[VoicePayload], cause error) {
	for _, f := range rest {
		s.logger.Warn("voice_fragment_abandoned",
			slog.String("fragment_id", f.ID),
			slog.String("error", cause.Error()))
		metrics.Record(s.cfg.Observer, metrics.EventFragmentDropped, map[string]string{
			"stage":       "transcribe",
			"kind":        "cancelled",
			"fragment_id": f.ID,
		})
	}
}

func (s *TranscribeTranslateStage) process(ctx context.Context, p VoicePayload) (string, error) {
	mode, err := ParseMode(p.Mode)
	if err != nil {
		return "", err
	}
	transcriber, ok := s.cfg.Transcribers[mode]
	if !ok || transcriber == nil {
		return "", errorsx.New(errorsx.ReasonValidation, "no transcriber configured for mode %s", mode)
	}
	pcm, err := audio.DecodeBase64(p.Audio, p.SampleRate)
	if err != nil {
		return "", err
	}
	text, err := transcriber.Transcribe(ctx, pcm)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	target := p.Target()
	if target == "" {
		return text, nil
	}
	if s.cfg.Translator == nil {
		return "", errorsx.New(errorsx.ReasonTranslation, "translation to %s requested but no translator configured", target)
	}
	out, err := s.cfg.Translator.Translate(ctx, text, s.cfg.SourceLanguage, target)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	return out, nil
}
