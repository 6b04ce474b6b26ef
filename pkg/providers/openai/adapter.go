package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/resilience"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultTranscribeModel = "whisper-1"
	DefaultTranslateModel  = "gpt-4"
	translatorSystemPrompt = "You are a professional translator with medical context awareness."
	translatorTemperature  = 0.3
	defaultRequestTimeout  = 60 * time.Second
)

// Config is shared by the transcriber and translator.
type Config struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

type client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func newClient(cfg Config, component string) client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logging.NewComponentLogger(slog.Default(), component),
	}
}

func (c client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: "openai", Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Transcriber uploads WAV clips to the audio transcription endpoint.
type Transcriber struct {
	cfg Config
	c   client
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = DefaultTranscribeModel
	}
	return &Transcriber{cfg: cfg, c: newClient(cfg, "openai_stt")}
}

func (t *Transcriber) Name() string { return "openai_whisper" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	if _, err := part.Write(audio.EncodeWAV(pcm)); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	_ = mw.WriteField("model", t.cfg.Model)
	if t.cfg.Language != "" {
		_ = mw.WriteField("language", t.cfg.Language)
	}
	if err := mw.Close(); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var payload struct {
		Text string `json:"text"`
	}
	if err := t.c.do(req, &payload); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	t.c.logger.Debug("transcription_completed",
		slog.Duration("audio", pcm.Duration()),
		slog.Int("chars", len(payload.Text)))
	return strings.TrimSpace(payload.Text), nil
}

// Translator calls chat completions with a medical translator prompt.
type Translator struct {
	cfg Config
	c   client
}

func NewTranslator(cfg Config) *Translator {
	if cfg.Model == "" {
		cfg.Model = DefaultTranslateModel
	}
	return &Translator{cfg: cfg, c: newClient(cfg, "openai_translate")}
}

func (t *Translator) Name() string { return "openai_chat" }

func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	prompt := fmt.Sprintf("Translate the following text from %s to %s:\n\n%s\n\nOnly return the translated text.", source, target, text)
	reqBody := map[string]any{
		"model": t.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": translatorSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": translatorTemperature,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := t.c.do(req, &payload); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	if len(payload.Choices) == 0 {
		return "", errorsx.Wrap(errors.New("openai: no choices"), errorsx.ReasonTranslation)
	}
	return strings.TrimSpace(payload.Choices[0].Message.Content), nil
}
