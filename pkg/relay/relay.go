package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/adapters/stt"
	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/hub"
	"github.com/harunnryd/clinirelay/pkg/logging"
	"github.com/harunnryd/clinirelay/pkg/metrics"
	"github.com/harunnryd/clinirelay/pkg/notify/twilio"
	"github.com/harunnryd/clinirelay/pkg/publisher"
	"github.com/harunnryd/clinirelay/pkg/redact"
	"github.com/harunnryd/clinirelay/pkg/resilience"
	"github.com/harunnryd/clinirelay/pkg/runner"
	"github.com/harunnryd/clinirelay/pkg/scheduler"
	"github.com/harunnryd/clinirelay/pkg/stages"
	"github.com/harunnryd/clinirelay/pkg/transports"
	"github.com/harunnryd/clinirelay/pkg/transports/websocket"
)

const (
	ChannelVoice       = "voice"
	ChannelTranscribed = "transcribed"
	ChannelDiagnosis   = "diagnosis"
)

type Options struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	Observer  metrics.Observer
	// Notifier overrides the SMS notifier built from notify.sms.
	Notifier stages.Notifier
	Clock    scheduler.Clock
}

// Relay owns every queue, stage, publisher and channel server.
type Relay struct {
	cfg    Config
	logger *slog.Logger
	obs    metrics.Observer

	Voice     *fragment.Queue[stages.VoicePayload]
	Text      *fragment.Queue[string]
	Backlog   *fragment.Queue[string]
	Diagnoses *fragment.Queue[diagnosis.Result]

	hubs       map[string]*hub.Hub
	servers    []transports.Transport
	schedulers []*scheduler.Scheduler

	mu         sync.Mutex
	cancel     context.CancelFunc
	cancelWork context.CancelFunc
	wg     conc.WaitGroup
}

// New builds the relay. Provider or notifier misconfiguration is returned
// here so it fails startup.
func New(opts Options) (*Relay, error) {
	cfg := opts.Config
	if opts.Providers == nil {
		opts.Providers = DefaultProviders()
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.RealClock()
	}
	logger := logging.NewComponentLogger(opts.Logger, "relay")
	redact.SetEnabled(cfg.Privacy.RedactPII)

	r := &Relay{
		cfg:       cfg,
		logger:    logger,
		obs:       opts.Observer,
		Voice:     fragment.NewQueue[stages.VoicePayload](),
		Text:      fragment.NewQueue[string](),
		Backlog:   fragment.NewQueue[string](),
		Diagnoses: fragment.NewQueue[diagnosis.Result](),
		hubs:      make(map[string]*hub.Hub, 3),
	}

	cloud, err := opts.Providers.BuildTranscriber(cfg.Vendors.CloudSTT)
	if err != nil {
		return nil, fmt.Errorf("vendors.cloud_stt: %w", err)
	}
	local, err := opts.Providers.BuildTranscriber(cfg.Vendors.LocalSTT)
	if err != nil {
		return nil, fmt.Errorf("vendors.local_stt: %w", err)
	}
	translator, err := opts.Providers.BuildTranslator(cfg.Vendors.Translator)
	if err != nil {
		return nil, fmt.Errorf("vendors.translator: %w", err)
	}
	diagnoser, err := opts.Providers.BuildDiagnoser(cfg.Vendors.Diagnoser)
	if err != nil {
		return nil, fmt.Errorf("vendors.diagnoser: %w", err)
	}

	notifier := opts.Notifier
	if notifier == nil && cfg.Notify.SMS.Enabled {
		n, err := twilio.NewNotifier(cfg.Notify.SMS, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("notify.sms: %w", err)
		}
		notifier = n
	}

	guard := func() resilience.Options {
		return resilience.Options{
			Policy:  resilience.NewRetryPolicy(cfg.Resilience.Retries, cfg.Resilience.RetryBackoff),
			Breaker: resilience.NewCircuitBreaker(cfg.Resilience.BreakerThreshold, cfg.Resilience.BreakerCooldown),
		}
	}

	for _, name := range []string{ChannelVoice, ChannelTranscribed, ChannelDiagnosis} {
		r.hubs[name] = hub.New(name, hub.Config{
			Concurrency: cfg.Pipeline.BroadcastConcurrency,
			SendTimeout: cfg.Pipeline.SendTimeout,
			Logger:      opts.Logger,
			Observer:    opts.Observer,
		})
	}

	ingestion := stages.NewIngestion(r.Voice, opts.Logger, opts.Observer)
	channels := cfg.channelMap()
	for _, name := range []string{ChannelVoice, ChannelTranscribed, ChannelDiagnosis} {
		var handler websocket.MessageHandler
		if name == ChannelVoice {
			handler = ingestion
		}
		ch := channels[name]
		r.servers = append(r.servers, websocket.NewServer(websocket.Config{
			Channel:        name,
			Addr:           ch.Addr,
			Path:           ch.Path,
			AllowAnyOrigin: cfg.Channels.AllowAnyOrigin,
			AllowedOrigins: cfg.Channels.AllowedOrigins,
			WriteTimeout:   cfg.Channels.WriteTimeout,
			PongWait:       cfg.Channels.PongWait,
		}, r.hubs[name], handler, opts.Logger))
	}

	transcribe := stages.NewTranscribeTranslate(stages.TranscribeConfig{
		Voice: r.Voice,
		Sinks: []stages.TextSink{r.Text, r.Backlog},
		Transcribers: map[stages.Mode]stt.Transcriber{
			stages.ModeCloud: resilience.WrapTranscriber(cloud, guard()),
			stages.ModeLocal: resilience.WrapTranscriber(local, guard()),
		},
		Translator:     resilience.WrapTranslator(translator, guard()),
		SourceLanguage: cfg.Pipeline.SourceLanguage,
		Logger:         opts.Logger,
		Observer:       opts.Observer,
	})
	diagnose := stages.NewDiagnosis(stages.DiagnosisConfig{
		Backlog:   r.Backlog,
		Results:   r.Diagnoses,
		Diagnoser: resilience.WrapDiagnoser(diagnoser, guard()),
		Notifier:  notifier,
		Logger:    opts.Logger,
		Observer:  opts.Observer,
	})
	pubCfg := publisher.Config{Retention: cfg.Pipeline.Retention, Now: opts.Clock.Now, Logger: opts.Logger, Observer: opts.Observer}
	textPub := publisher.New(r.Text, r.hubs[ChannelTranscribed], publisher.EncodeText, pubCfg)
	diagPub := publisher.New(r.Diagnoses, r.hubs[ChannelDiagnosis], publisher.EncodeDiagnosis, pubCfg)

	schedOpts := []scheduler.Option{
		scheduler.WithClock(opts.Clock),
		scheduler.WithLogger(opts.Logger),
		scheduler.WithObserver(opts.Observer),
	}
	r.schedulers = append(r.schedulers,
		scheduler.New("transcribe_translate", cfg.Pipeline.TranscribeInterval, transcribe.Run, schedOpts...),
		scheduler.New("diagnosis", cfg.Pipeline.DiagnosisInterval, diagnose.Run, schedOpts...),
		scheduler.New("publish_transcribed", cfg.Pipeline.TextPublishInterval, textPub.Run, schedOpts...),
		scheduler.New("publish_diagnosis", cfg.Pipeline.DiagnosisPublishInterval, diagPub.Run, schedOpts...),
	)
	for _, name := range []string{ChannelVoice, ChannelTranscribed, ChannelDiagnosis} {
		hb := publisher.NewHeartbeat(r.hubs[name], opts.Logger)
		r.schedulers = append(r.schedulers, scheduler.New("heartbeat_"+name, cfg.Pipeline.HeartbeatInterval, hb.Run, schedOpts...))
	}
	return r, nil
}

// Hub returns the broadcast hub of a channel.
func (r *Relay) Hub(channel string) *hub.Hub { return r.hubs[channel] }

// Servers returns the channel servers in voice, transcribed, diagnosis order.
func (r *Relay) Servers() []transports.Transport { return r.servers }

// Start binds all channel servers, then launches every scheduler. A bind
// failure stops the servers already started.
func (r *Relay) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	// Stage calls outlive the run context so Drain can let them finish.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	for i, s := range r.servers {
		if err := s.Start(runCtx); err != nil {
			cancel()
			cancelWork()
			for _, started := range r.servers[:i] {
				_ = started.Stop(context.Background())
			}
			return fmt.Errorf("channel %s: %w", s.Name(), err)
		}
	}
	r.mu.Lock()
	r.cancel = cancel
	r.cancelWork = cancelWork
	r.mu.Unlock()
	for _, s := range r.schedulers {
		r.wg.Go(func() {
			_ = s.Serve(runCtx, workCtx)
		})
	}
	r.logger.Info("relay_started",
		slog.String("voice", r.servers[0].Addr()),
		slog.String("transcribed", r.servers[1].Addr()),
		slog.String("diagnosis", r.servers[2].Addr()),
		slog.Int("stages", len(r.schedulers)))
	return nil
}

// Drain refuses new subscribers and stops the schedulers. An invocation in
// flight keeps its collaborator calls until ctx expires; only then are they
// aborted. The channel servers close last.
func (r *Relay) Drain(ctx context.Context) error {
	for _, s := range r.servers {
		s.Drain()
	}
	r.mu.Lock()
	cancel, cancelWork := r.cancel, r.cancelWork
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if cancelWork != nil {
			cancelWork()
		}
	case <-ctx.Done():
		if cancelWork != nil {
			cancelWork()
		}
	}
	var errs []error
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range r.servers {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", s.Name(), err))
		}
	}
	r.logger.Info("relay_drained",
		slog.Int("voice_pending", r.Voice.Len()),
		slog.Int("text_pending", len(r.Text.Pending())),
		slog.Int("diagnosis_pending", len(r.Diagnoses.Pending())))
	return errors.Join(errs...)
}

// Run drives the relay through the lifecycle runner until ctx ends.
func (r *Relay) Run(ctx context.Context, banner io.Writer) error {
	timeout := r.cfg.Pipeline.DrainTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lr := runner.NewLifecycleRunner(runner.Options{
		Drainer:      r,
		Hooks:        runner.Hooks{OnStart: r.Start},
		DrainTimeout: timeout,
		Banner:       banner,
	})
	return lr.Run(ctx)
}
