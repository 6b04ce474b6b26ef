// Package mock provides scripted collaborators for tests and dry runs.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/audio"
)

type STTConfig struct {
	Transcript string `mapstructure:"transcript"`
	FailWith   string `mapstructure:"fail_with"`
}

// Transcriber returns a fixed transcript and records the clips it saw.
type Transcriber struct {
	cfg STTConfig

	mu    sync.Mutex
	clips []audio.PCM
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Transcribe(_ context.Context, pcm audio.PCM) (string, error) {
	t.mu.Lock()
	t.clips = append(t.clips, pcm)
	t.mu.Unlock()
	if t.cfg.FailWith != "" {
		return "", errors.New(t.cfg.FailWith)
	}
	return t.cfg.Transcript, nil
}

func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clips)
}

type TranslateCall struct {
	Text, Source, Target string
}

type TranslatorConfig struct {
	FailWith string `mapstructure:"fail_with"`
}

// Translator tags text with the target language.
type Translator struct {
	cfg TranslatorConfig

	mu    sync.Mutex
	calls []TranslateCall
}

func NewTranslator(cfg TranslatorConfig) *Translator {
	return &Translator{cfg: cfg}
}

func (t *Translator) Name() string { return "mock_translate" }

func (t *Translator) Translate(_ context.Context, text, source, target string) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, TranslateCall{Text: text, Source: source, Target: target})
	t.mu.Unlock()
	if t.cfg.FailWith != "" {
		return "", errors.New(t.cfg.FailWith)
	}
	return fmt.Sprintf("[%s] %s", target, text), nil
}

func (t *Translator) Calls() []TranslateCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranslateCall(nil), t.calls...)
}

type DiagnoserConfig struct {
	Summary  string `mapstructure:"summary"`
	Document string `mapstructure:"document"`
	FailWith string `mapstructure:"fail_with"`
}

type Diagnoser struct {
	cfg DiagnoserConfig

	mu    sync.Mutex
	calls []string
}

func NewDiagnoser(cfg DiagnoserConfig) *Diagnoser {
	if cfg.Summary == "" {
		cfg.Summary = "mock diagnosis"
	}
	return &Diagnoser{cfg: cfg}
}

func (d *Diagnoser) Name() string { return "mock_diagnoser" }

func (d *Diagnoser) Diagnose(_ context.Context, conversation string) (diagnosis.Result, error) {
	d.mu.Lock()
	d.calls = append(d.calls, conversation)
	d.mu.Unlock()
	if d.cfg.FailWith != "" {
		return diagnosis.Result{}, errors.New(d.cfg.FailWith)
	}
	return diagnosis.Result{Summary: d.cfg.Summary, Document: d.cfg.Document}, nil
}

func (d *Diagnoser) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
