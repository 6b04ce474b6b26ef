// Package observers holds metrics observers that derive higher level
// signals from the raw pipeline events.
package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
)

// DefaultTraceTTL bounds how long an unfinished trace is kept.
const DefaultTraceTTL = 15 * time.Minute

// LatencyObserver follows a voice fragment from ingestion through
// transcription to delivery on the transcribed channel and logs the
// stage latencies once the text is delivered.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace // keyed by voice fragment id
	byText map[string]string // text fragment id -> voice fragment id
	ttl    time.Duration
	log    *slog.Logger
}

type trace struct {
	mode        string
	ingested    time.Time
	transcribed time.Time
	textID      string
}

func NewLatencyObserver(log *slog.Logger, ttl time.Duration) *LatencyObserver {
	if ttl <= 0 {
		ttl = DefaultTraceTTL
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		byText: make(map[string]string),
		ttl:    ttl,
		log:    logging.NewComponentLogger(log, "observers.latency"),
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags["fragment_id"]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked(ev.Time)

	switch ev.Name {
	case metrics.EventFragmentIngested:
		if _, ok := o.traces[id]; !ok {
			o.traces[id] = &trace{mode: ev.Tags["mode"], ingested: ev.Time}
		}
	case metrics.EventFragmentTranscribed:
		t := o.traces[id]
		if t == nil {
			return
		}
		t.transcribed = ev.Time
		if textID := ev.Tags["text_id"]; textID != "" {
			t.textID = textID
			o.byText[textID] = id
		}
	case metrics.EventFragmentDropped:
		o.dropLocked(id)
	case metrics.EventFragmentDelivered:
		if ev.Tags["channel"] != "transcribed" {
			return
		}
		voiceID, ok := o.byText[id]
		if !ok {
			return
		}
		t := o.traces[voiceID]
		o.log.Info("fragment_latency",
			slog.String("fragment_id", voiceID),
			slog.String("mode", t.mode),
			slog.Int64("transcribe_ms", durationMs(t.ingested, t.transcribed)),
			slog.Int64("deliver_ms", durationMs(t.transcribed, ev.Time)),
			slog.Int64("total_ms", durationMs(t.ingested, ev.Time)))
		o.dropLocked(voiceID)
	}
}

// Pending reports how many traces are still open.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func (o *LatencyObserver) dropLocked(voiceID string) {
	if t, ok := o.traces[voiceID]; ok && t.textID != "" {
		delete(o.byText, t.textID)
	}
	delete(o.traces, voiceID)
}

func (o *LatencyObserver) pruneLocked(now time.Time) {
	cutoff := now.Add(-o.ttl)
	for id, t := range o.traces {
		if t.ingested.Before(cutoff) {
			o.dropLocked(id)
		}
	}
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
