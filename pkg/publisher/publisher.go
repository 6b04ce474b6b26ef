// Package publisher delivers result fragments to channel subscribers and
// keeps channels alive with heartbeats.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/hub"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
)

// Broadcaster is the slice of hub.Hub a publisher needs.
type Broadcaster interface {
	Channel() string
	Len() int
	Broadcast(ctx context.Context, msg []byte) (hub.Report, error)
}

// Encoder renders one fragment as a wire message.
type Encoder[T any] func(f *fragment.Fragment[T]) ([]byte, error)

type Config struct {
	// Retention evicts fragments delivered longer ago than this. Zero keeps
	// them forever.
	Retention time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
	Observer  metrics.Observer
}

// Publisher scans a result queue and broadcasts undelivered fragments in
// FIFO order.
type Publisher[T any] struct {
	queue  *fragment.Queue[T]
	out    Broadcaster
	encode Encoder[T]
	cfg    Config
	logger *slog.Logger
}

func New[T any](queue *fragment.Queue[T], out Broadcaster, encode Encoder[T], cfg Config) *Publisher[T] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Publisher[T]{
		queue:  queue,
		out:    out,
		encode: encode,
		cfg:    cfg,
		logger: logging.NewComponentLogger(cfg.Logger, "publisher."+out.Channel()),
	}
}

// Run performs one publish pass. With no subscribers nothing is touched.
// A fragment is marked delivered only when Broadcast returns nil.
func (p *Publisher[T]) Run(ctx context.Context) error {
	defer p.evict()
	if p.out.Len() == 0 {
		return nil
	}
	var errs []error
	for _, f := range p.queue.Pending() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := p.encode(f)
		if err != nil {
			p.logger.Error("fragment_encode_failed", slog.String("fragment_id", f.ID), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		report, err := p.out.Broadcast(ctx, msg)
		if errors.Is(err, hub.ErrNoConnections) {
			break
		}
		if err != nil {
			p.logger.Warn("fragment_broadcast_failed",
				slog.String("fragment_id", f.ID),
				slog.Int("attempted", report.Attempted),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		if f.MarkDelivered(p.cfg.Now()) {
			metrics.Record(p.cfg.Observer, metrics.EventFragmentDelivered, map[string]string{
				"channel":     p.out.Channel(),
				"fragment_id": f.ID,
			})
		}
		p.logger.Debug("fragment_delivered",
			slog.String("fragment_id", f.ID),
			slog.Int("delivered", report.Delivered),
			slog.Int("failed", report.Failed))
	}
	if len(errs) > 0 {
		return errorsx.Wrap(errors.Join(errs...), errorsx.ReasonDelivery)
	}
	return nil
}

func (p *Publisher[T]) evict() {
	if p.cfg.Retention <= 0 {
		return
	}
	if n := p.queue.EvictDelivered(p.cfg.Now().Add(-p.cfg.Retention)); n > 0 {
		p.logger.Debug("fragments_evicted", slog.Int("count", n))
		metrics.Record(p.cfg.Observer, metrics.EventFragmentsEvicted, map[string]string{"channel": p.out.Channel()})
	}
}

// TextMessage is the transcribed channel wire format.
type TextMessage struct {
	Timestamp         string `json:"timestamp"`
	TranslationOutput string `json:"translation_output"`
}

// DiagnosisMessage is the diagnosis channel wire format.
type DiagnosisMessage struct {
	Timestamp string           `json:"timestamp"`
	ModelResp diagnosis.Result `json:"model_resp"`
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func EncodeText(f *fragment.Fragment[string]) ([]byte, error) {
	return json.Marshal(TextMessage{Timestamp: timestamp(f.CreatedAt), TranslationOutput: f.Payload})
}

func EncodeDiagnosis(f *fragment.Fragment[diagnosis.Result]) ([]byte, error) {
	return json.Marshal(DiagnosisMessage{Timestamp: timestamp(f.CreatedAt), ModelResp: f.Payload})
}
