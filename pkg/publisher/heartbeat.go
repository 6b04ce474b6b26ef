package publisher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/clinirelay/pkg/hub"
	"github.com/harunnryd/clinirelay/pkg/logging"
)

// HeartbeatMessage is sent verbatim on every channel.
var HeartbeatMessage = []byte("heartbeat")

// Heartbeat broadcasts HeartbeatMessage once per Run.
type Heartbeat struct {
	out    Broadcaster
	logger *slog.Logger
}

func NewHeartbeat(out Broadcaster, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{out: out, logger: logging.NewComponentLogger(logger, "heartbeat."+out.Channel())}
}

func (h *Heartbeat) Run(ctx context.Context) error {
	_, err := h.out.Broadcast(ctx, HeartbeatMessage)
	if err == nil || errors.Is(err, hub.ErrNoConnections) {
		return nil
	}
	h.logger.Debug("heartbeat_failed", slog.String("error", err.Error()))
	return err
}
