package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const DefaultModel = "nova-2-medical"

type Config struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	Host     string `mapstructure:"host"`
}

type fromStreamFunc func(ctx context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)

// Transcriber sends each clip to the pre-recorded REST endpoint.
type Transcriber struct {
	cfg        Config
	fromStream fromStreamFunc
	logger     *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{Host: cfg.Host})
	dg := api.New(c)
	return newWithStream(cfg, func(ctx context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return dg.FromStream(ctx, src, opts)
	})
}

func newWithStream(cfg Config, fn fromStreamFunc) *Transcriber {
	return &Transcriber{
		cfg:        cfg,
		fromStream: fn,
		logger:     logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram_prerecorded" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		SmartFormat: true,
		Punctuate:   true,
	}
	res, err := t.fromStream(ctx, bytes.NewReader(audio.EncodeWAV(pcm)), opts)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	text, err := extractTranscript(res)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	t.logger.Debug("transcription_completed",
		slog.String("model", t.cfg.Model),
		slog.Duration("audio", pcm.Duration()))
	return text, nil
}

type transcriptEnvelope struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// extractTranscript joins the first alternative of every channel. The SDK
// response is re-read through its JSON form.
func extractTranscript(res any) (string, error) {
	if res == nil {
		return "", errors.New("deepgram: empty response")
	}
	b, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	var env transcriptEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(env.Results.Channels))
	for _, ch := range env.Results.Channels {
		if len(ch.Alternatives) == 0 {
			continue
		}
		if tr := strings.TrimSpace(ch.Alternatives[0].Transcript); tr != "" {
			parts = append(parts, tr)
		}
	}
	if len(env.Results.Channels) == 0 {
		return "", errors.New("deepgram: response has no channels")
	}
	return strings.Join(parts, " "), nil
}
