// Package hub fans messages out to every subscriber of a channel.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
)

var (
	ErrNoConnections  = errorsx.Wrap(errors.New("no active connections"), errorsx.ReasonNoSubscribers)
	ErrAllSendsFailed = errorsx.Wrap(errors.New("every connection failed to receive"), errorsx.ReasonAllSendsFailed)
)

// Report summarizes one broadcast.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
	Removed   []string
}

type Config struct {
	// Concurrency bounds parallel sends per broadcast.
	Concurrency int
	// SendTimeout bounds a single connection send.
	SendTimeout time.Duration
	Logger      *slog.Logger
	Observer    metrics.Observer
}

// Hub owns the registry of one channel.
type Hub struct {
	channel  string
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

func New(channel string, cfg Config) *Hub {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	logger := logging.NewComponentLogger(cfg.Logger, "hub").With(slog.String("channel", channel))
	return &Hub{
		channel:  channel,
		registry: NewRegistry(),
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *Hub) Channel() string { return h.channel }

// Connect registers a subscriber. Safe to call during a broadcast.
func (h *Hub) Connect(c Conn) {
	h.registry.Add(c)
	h.logger.Info("subscriber_connected", slog.String("conn_id", c.ID()), slog.Int("active", h.registry.Len()))
}

// Disconnect removes a subscriber. Idempotent.
func (h *Hub) Disconnect(id string) {
	if _, ok := h.registry.Remove(id); ok {
		h.logger.Info("subscriber_disconnected", slog.String("conn_id", id), slog.Int("active", h.registry.Len()))
	}
}

func (h *Hub) Len() int { return h.registry.Len() }

// Broadcast sends msg to every registered connection. A failing connection is
// logged and skipped; connections that failed terminally are removed.
//
// Broadcast errors only when there is nobody to send to or when every send
// failed. Partial failure counts as success, so the caller marks the message
// delivered even though some subscribers never received it.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) (Report, error) {
	conns := h.registry.Snapshot()
	rep := Report{Attempted: len(conns)}
	if len(conns) == 0 {
		return rep, ErrNoConnections
	}

	var mu sync.Mutex
	var failed []Conn
	p := pool.New().WithMaxGoroutines(h.cfg.Concurrency)
	for _, c := range conns {
		p.Go(func() {
			sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
			err := c.Send(sendCtx, msg)
			cancel()
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rep.Delivered++
				return
			}
			rep.Failed++
			h.logger.Warn("broadcast_send_failed",
				slog.String("conn_id", c.ID()),
				slog.String("error", err.Error()),
				slog.String("reason_code", string(errorsx.ReasonDelivery)))
			if errors.Is(err, ErrConnClosed) {
				failed = append(failed, c)
			}
		})
	}
	p.Wait()

	for _, c := range failed {
		if _, ok := h.registry.Remove(c.ID()); ok {
			_ = c.Close()
			rep.Removed = append(rep.Removed, c.ID())
		}
	}
	tags := map[string]string{"channel": h.channel}
	if rep.Delivered == 0 {
		metrics.Record(h.cfg.Observer, metrics.EventBroadcastFailed, tags)
		return rep, ErrAllSendsFailed
	}
	if rep.Failed > 0 {
		metrics.Record(h.cfg.Observer, metrics.EventBroadcastPartial, tags)
	}
	return rep, nil
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	for _, c := range h.registry.Snapshot() {
		h.registry.Remove(c.ID())
		_ = c.Close()
	}
}
