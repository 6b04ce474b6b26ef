package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
)

// Reply bodies sent back to the voice client.
var (
	ReplyPayloadAdded = []byte(`{"status":"payload_added"}`)
	ReplyInvalidJSON  = []byte(`{"error":"Invalid JSON format"}`)
	ReplyInvalidAct   = []byte(`{"error":"Invalid action"}`)
)

// Ingestion validates voice messages and appends them to the voice queue.
type Ingestion struct {
	queue  *fragment.Queue[VoicePayload]
	logger *slog.Logger
	obs    metrics.Observer
}

func NewIngestion(queue *fragment.Queue[VoicePayload], logger *slog.Logger, obs metrics.Observer) *Ingestion {
	return &Ingestion{
		queue:  queue,
		logger: logging.NewComponentLogger(logger, "ingestion"),
		obs:    obs,
	}
}

// Handle processes one text message and returns the reply for its sender.
func (in *Ingestion) Handle(_ context.Context, raw []byte) []byte {
	var payload VoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		in.logger.Warn("voice_message_invalid_json", slog.String("error", err.Error()))
		return ReplyInvalidJSON
	}
	if payload.Action != ActionTranscribeTranslate {
		in.logger.Warn("voice_message_invalid_action", slog.String("action", payload.Action))
		return ReplyInvalidAct
	}
	f := in.queue.Push(payload)
	in.logger.Debug("voice_fragment_queued",
		slog.String("fragment_id", f.ID),
		slog.String("mode", payload.Mode),
		slog.Int("sample_rate", payload.SampleRate),
		slog.Float64("duration", payload.Duration),
		slog.Int("audio_chars", len(payload.Audio)),
		slog.Int("queue_len", in.queue.Len()))
	metrics.Record(in.obs, metrics.EventFragmentIngested, map[string]string{"mode": payload.Mode, "fragment_id": f.ID})
	return ReplyPayloadAdded
}
