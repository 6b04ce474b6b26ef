// Package agent calls the clinical assistant service over HTTP.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/resilience"
)

type Config struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Diagnoser posts a patient envelope to {url}/diagnose.
type Diagnoser struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Diagnoser {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &Diagnoser{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewComponentLogger(slog.Default(), "diagnosis_agent"),
	}
}

func (d *Diagnoser) Name() string { return "agent" }

func (d *Diagnoser) Diagnose(ctx context.Context, conversation string) (diagnosis.Result, error) {
	b, err := json.Marshal(diagnosis.NewPatientInput(conversation))
	if err != nil {
		return diagnosis.Result{}, errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL+"/diagnose", bytes.NewReader(b))
	if err != nil {
		return diagnosis.Result{}, errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	started := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return diagnosis.Result{}, errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		return diagnosis.Result{}, errorsx.Wrap(resilience.RateLimitError{Provider: "agent", Message: string(msg)}, errorsx.ReasonAgentInvocation)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return diagnosis.Result{}, errorsx.New(errorsx.ReasonAgentInvocation, "agent: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var res diagnosis.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return diagnosis.Result{}, errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
	}
	if res.Error != "" {
		return diagnosis.Result{}, errorsx.Wrap(errors.New(res.Error), errorsx.ReasonAgentInvocation)
	}
	d.logger.Info("diagnosis_received",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("document_bytes", len(res.Document)))
	return res, nil
}
