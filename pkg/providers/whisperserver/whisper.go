// Package whisperserver transcribes locally through a whisper.cpp HTTP
// server.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
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
)

const DefaultURL = "http://127.0.0.1:8080"

type Config struct {
	URL      string        `mapstructure:"url"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Transcriber struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "auto"
	}
	return &Transcriber{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewComponentLogger(slog.Default(), "whisper_local"),
	}
}

func (t *Transcriber) Name() string { return "whisper_server" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	if _, err := part.Write(audio.EncodeWAV(pcm)); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	_ = mw.WriteField("response_format", "json")
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("language", t.cfg.Language)
	if err := mw.Close(); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL+"/inference", &body)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	started := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errorsx.New(errorsx.ReasonTranscription, "whisper server: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var payload struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errorsx.Wrap(fmt.Errorf("whisper server: decode: %w", err), errorsx.ReasonTranscription)
	}
	if payload.Error != "" {
		return "", errorsx.New(errorsx.ReasonTranscription, "whisper server: %s", payload.Error)
	}
	t.logger.Debug("transcription_completed",
		slog.Duration("audio", pcm.Duration()),
		slog.Duration("elapsed", time.Since(started)))
	return strings.TrimSpace(payload.Text), nil
}
