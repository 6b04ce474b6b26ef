package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Pipeline event names.
const (
	EventFragmentIngested    = "fragment_ingested"
	EventFragmentDropped     = "fragment_dropped"
	EventFragmentTranscribed = "fragment_transcribed"
	EventDiagnosisCompleted  = "diagnosis_completed"
	EventDiagnosisFailed     = "diagnosis_failed"
	EventFragmentDelivered   = "fragment_delivered"
	EventBroadcastPartial    = "broadcast_partial_failure"
	EventBroadcastFailed     = "broadcast_failed"
	EventStageSkipped        = "stage_skipped"
	EventStageFailed         = "stage_failed"
	EventFragmentsEvicted    = "fragments_evicted"
	EventBreakerDenied       = "breaker_denied"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record is a shorthand for emitting a tagged event with value 1.
func Record(obs Observer, name string, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags})
}

// LoggerObserver writes every event as a debug log line.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev MetricsEvent) {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "metrics", attrs...)
}

// MultiObserver fans an event out to several observers.
type MultiObserver struct {
	list []Observer
}

func NewMultiObserver(list ...Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
