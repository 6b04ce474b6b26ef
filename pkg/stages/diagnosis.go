package stages

import (
	"context"
	"log/slog"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
	"github.com/harunnryd/clinirelay/pkg/redact"
)

// Notifier is told about every successful diagnosis.
type Notifier interface {
	Notify(ctx context.Context, res diagnosis.Result) error
}

type DiagnosisConfig struct {
	Backlog   *fragment.Queue[string]
	Results   *fragment.Queue[diagnosis.Result]
	Diagnoser diagnosis.Diagnoser
	Notifier  Notifier
	Logger    *slog.Logger
	Observer  metrics.Observer
}

// DiagnosisStage sends one backlog fragment per invocation to the
// clinical assistant.
type DiagnosisStage struct {
	cfg    DiagnosisConfig
	logger *slog.Logger
}

func NewDiagnosis(cfg DiagnosisConfig) *DiagnosisStage {
	return &DiagnosisStage{
		cfg:    cfg,
		logger: logging.NewComponentLogger(cfg.Logger, "stage.diagnosis"),
	}
}

// Run pops at most one fragment. Failures become an error result so
// subscribers still hear about them.
func (s *DiagnosisStage) Run(ctx context.Context) error {
	f, ok := s.cfg.Backlog.PopFront()
	if !ok {
		return nil
	}
	s.logger.Debug("diagnosis_started",
		slog.String("fragment_id", f.ID),
		slog.String("preview", redact.Preview(f.Payload, 48)))

	res, err := s.diagnose(ctx, f.Payload)
	if err != nil && ctx.Err() != nil {
		// Cancelled is not a diagnosis failure; no error result is published.
		s.logger.Warn("diagnosis_abandoned",
			slog.String("fragment_id", f.ID),
			slog.String("error", err.Error()))
		metrics.Record(s.cfg.Observer, metrics.EventFragmentDropped, map[string]string{
			"stage":       "diagnosis",
			"kind":        "cancelled",
			"fragment_id": f.ID,
		})
		return ctx.Err()
	}
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
		s.cfg.Results.Push(diagnosis.ErrorResult(err))
		s.logger.Error("diagnosis_failed",
			slog.String("fragment_id", f.ID),
			slog.String("error", err.Error()))
		metrics.Record(s.cfg.Observer, metrics.EventDiagnosisFailed, nil)
		return err
	}
	s.cfg.Results.Push(res)
	metrics.Record(s.cfg.Observer, metrics.EventDiagnosisCompleted, nil)
	s.logger.Info("diagnosis_completed",
		slog.String("fragment_id", f.ID),
		slog.String("summary", redact.Preview(res.Summary, 64)))

	if s.cfg.Notifier != nil {
		if nerr := s.cfg.Notifier.Notify(ctx, res); nerr != nil {
			s.logger.Warn("diagnosis_notify_failed", slog.String("error", nerr.Error()))
		}
	}
	return nil
}

func (s *DiagnosisStage) diagnose(ctx context.Context, text string) (diagnosis.Result, error) {
	if s.cfg.Diagnoser == nil {
		return diagnosis.Result{}, errorsx.New(errorsx.ReasonAgentInvocation, "no diagnoser configured")
	}
	return s.cfg.Diagnoser.Diagnose(ctx, text)
}
