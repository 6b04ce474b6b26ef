package stages

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/adapters/stt"
	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/fragment"
	"github.com/harunnryd/clinirelay/pkg/metrics"
	"github.com/harunnryd/clinirelay/pkg/providers/mock"
)

var clip = base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0, 3, 0, 4, 0})

func strPtr(s string) *string { return &s }

type pipelineFixture struct {
	voice   *fragment.Queue[VoicePayload]
	results *fragment.Queue[string]
	backlog *fragment.Queue[string]
	cloud   *mock.Transcriber
	local   *mock.Transcriber
	tr      *mock.Translator
	obs     *metrics.MemoryObserver
	stage   *TranscribeTranslateStage
}

func newFixture() *pipelineFixture {
	f := &pipelineFixture{
		voice:   fragment.NewQueue[VoicePayload](),
		results: fragment.NewQueue[string](),
		backlog: fragment.NewQueue[string](),
		cloud:   mock.NewTranscriber(mock.STTConfig{Transcript: "my head hurts"}),
		local:   mock.NewTranscriber(mock.STTConfig{Transcript: "local words"}),
		tr:      mock.NewTranslator(mock.TranslatorConfig{}),
		obs:     metrics.NewMemoryObserver(),
	}
	f.stage = NewTranscribeTranslate(TranscribeConfig{
		Voice:        f.voice,
		Sinks:        []TextSink{f.results, f.backlog},
		Transcribers: map[Mode]stt.Transcriber{ModeCloud: f.cloud, ModeLocal: f.local},
		Translator:   f.tr,
		Observer:     f.obs,
	})
	return f
}

func texts(q *fragment.Queue[string]) []string {
	var out []string
	for _, f := range q.Pending() {
		out = append(out, f.Payload)
	}
	return out
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]Mode{"c": ModeCloud, "C": ModeCloud, "cloud": ModeCloud, "l": ModeLocal, "LOCAL": ModeLocal} {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseMode("x"); errorsx.Kind(err) != errorsx.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNoTranslationWhenTargetNull(t *testing.T) {
	f := newFixture()
	f.voice.Push(VoicePayload{Action: ActionTranscribeTranslate, Audio: clip, SampleRate: 16000, Mode: "c"})

	if err := f.stage.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.tr.Calls()) != 0 {
		t.Fatalf("translator must not be called, got %v", f.tr.Calls())
	}
	if got := texts(f.results); len(got) != 1 || got[0] != "my head hurts" {
		t.Fatalf("unexpected results %v", got)
	}
	if got := texts(f.backlog); len(got) != 1 || got[0] != "my head hurts" {
		t.Fatalf("unexpected backlog %v", got)
	}
	if f.voice.Len() != 0 {
		t.Fatalf("voice queue should be drained")
	}
}

func TestTranslationInvokedWithTarget(t *testing.T) {
	f := newFixture()
	f.voice.Push(VoicePayload{Action: ActionTranscribeTranslate, Audio: clip, SampleRate: 16000, Mode: "l", TranslateTo: strPtr("es")})

	if err := f.stage.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	calls := f.tr.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one translate call, got %d", len(calls))
	}
	if calls[0] != (mock.TranslateCall{Text: "local words", Source: "English", Target: "es"}) {
		t.Fatalf("unexpected call %+v", calls[0])
	}
	if got := texts(f.results); len(got) != 1 || got[0] != "[es] local words" {
		t.Fatalf("unexpected results %v", got)
	}
	if f.cloud.Calls() != 0 || f.local.Calls() != 1 {
		t.Fatalf("wrong transcriber used: cloud=%d local=%d", f.cloud.Calls(), f.local.Calls())
	}
}

func TestEmptyTargetPassesThrough(t *testing.T) {
	f := newFixture()
	f.voice.Push(VoicePayload{Audio: clip, SampleRate: 16000, Mode: "c", TranslateTo: strPtr("")})
	if err := f.stage.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.tr.Calls()) != 0 {
		t.Fatalf("empty target must not translate")
	}
}

func TestBadFragmentsAreDroppedBatchContinues(t *testing.T) {
	f := newFixture()
	f.voice.Push(VoicePayload{Audio: clip, SampleRate: 16000, Mode: "x"})
	f.voice.Push(VoicePayload{Audio: "%%%", SampleRate: 16000, Mode: "c"})
	f.voice.Push(VoicePayload{Audio: clip, SampleRate: 16000, Mode: "c"})

	err := f.stage.Run(context.Background())
	if err == nil {
		t.Fatalf("expected batch error summary")
	}
	if got := texts(f.results); len(got) != 1 {
		t.Fatalf("expected one surviving fragment, got %v", got)
	}
	if f.obs.Count(metrics.EventFragmentDropped) != 2 {
		t.Fatalf("expected 2 dropped events, got %d", f.obs.Count(metrics.EventFragmentDropped))
	}
	if f.voice.Len() != 0 {
		t.Fatalf("dropped fragments must not be retried")
	}
}

func TestCollaboratorFailureDropsFragment(t *testing.T) {
	f := newFixture()
	f.tr = mock.NewTranslator(mock.TranslatorConfig{FailWith: "quota"})
	f.stage.cfg.Translator = f.tr
	f.voice.Push(VoicePayload{Audio: clip, SampleRate: 16000, Mode: "c", TranslateTo: strPtr("fr")})

	err := f.stage.Run(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonTranslation) {
		t.Fatalf("expected translation reason, got %v", err)
	}
	if f.results.Len() != 0 || f.backlog.Len() != 0 {
		t.Fatalf("failed fragment must not reach sinks")
	}
}

func TestDiagnosisPopsOneAndPushesResult(t *testing.T) {
	backlog := fragment.NewQueue[string]()
	results := fragment.NewQueue[diagnosis.Result]()
	backlog.Push("first")
	backlog.Push("second")
	d := mock.NewDiagnoser(mock.DiagnoserConfig{Summary: "migraine", Document: "ZG9j"})
	notes := &recordingNotifier{}
	stage := NewDiagnosis(DiagnosisConfig{Backlog: backlog, Results: results, Diagnoser: d, Notifier: notes})

	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls := d.Calls(); len(calls) != 1 || calls[0] != "first" {
		t.Fatalf("expected FIFO single pop, got %v", calls)
	}
	if backlog.Len() != 1 {
		t.Fatalf("expected one fragment left, got %d", backlog.Len())
	}
	pending := results.Pending()
	if len(pending) != 1 || pending[0].Payload.Summary != "migraine" {
		t.Fatalf("unexpected results %+v", pending)
	}
	if len(notes.got) != 1 {
		t.Fatalf("expected notification")
	}
}

func TestDiagnosisFailurePushesSentinel(t *testing.T) {
	backlog := fragment.NewQueue[string]()
	results := fragment.NewQueue[diagnosis.Result]()
	backlog.Push("text")
	notes := &recordingNotifier{}
	stage := NewDiagnosis(DiagnosisConfig{
		Backlog:   backlog,
		Results:   results,
		Diagnoser: mock.NewDiagnoser(mock.DiagnoserConfig{FailWith: "agent timeout"}),
		Notifier:  notes,
	})

	if err := stage.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	pending := results.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected sentinel result, got %d", len(pending))
	}
	res := pending[0].Payload
	if res.Summary != diagnosis.ErrorSummary || res.Document != "" || res.Error != "agent timeout" {
		t.Fatalf("unexpected sentinel %+v", res)
	}
	if len(notes.got) != 0 {
		t.Fatalf("failures must not notify")
	}
}

func TestDiagnosisEmptyBacklogIsNoop(t *testing.T) {
	stage := NewDiagnosis(DiagnosisConfig{
		Backlog: fragment.NewQueue[string](),
		Results: fragment.NewQueue[diagnosis.Result](),
	})
	if err := stage.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngestionReplies(t *testing.T) {
	q := fragment.NewQueue[VoicePayload]()
	in := NewIngestion(q, nil, nil)

	if got := in.Handle(context.Background(), []byte("{not json")); string(got) != string(ReplyInvalidJSON) {
		t.Fatalf("unexpected reply %s", got)
	}
	if got := in.Handle(context.Background(), []byte(`{"action":"dance"}`)); string(got) != string(ReplyInvalidAct) {
		t.Fatalf("unexpected reply %s", got)
	}
	msg := `{"action":"transcribe_translate","audio":"AAA","sample_rate":16000,"mode":"c","duration":1.5,"translate_to":null}`
	if got := in.Handle(context.Background(), []byte(msg)); string(got) != string(ReplyPayloadAdded) {
		t.Fatalf("unexpected reply %s", got)
	}
	pending := q.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected one queued payload, got %d", len(pending))
	}
	p := pending[0].Payload
	if p.SampleRate != 16000 || p.Duration != 1.5 || p.TranslateTo != nil {
		t.Fatalf("unexpected payload %+v", p)
	}
}

type recordingNotifier struct {
	got []diagnosis.Result
}

func (r *recordingNotifier) Notify(_ context.Context, res diagnosis.Result) error {
	r.got = append(r.got, res)
	return nil
}

// cancellingTranscriber cancels the stage context on its first call.
type cancellingTranscriber struct {
	cancel context.CancelFunc
}

func (c *cancellingTranscriber) Name() string { return "cancelling" }

func (c *cancellingTranscriber) Transcribe(context.Context, audio.PCM) (string, error) {
	c.cancel()
	return "first words", nil
}

func TestCancelledBatchRecordsAbandonedFragments(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.stage.cfg.Transcribers[ModeCloud] = &cancellingTranscriber{cancel: cancel}
	for i := 0; i < 3; i++ {
		f.voice.Push(VoicePayload{Action: ActionTranscribeTranslate, Audio: clip, SampleRate: 16000, Mode: "c"})
	}

	if err := f.stage.Run(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if got := texts(f.results); len(got) != 1 {
		t.Fatalf("expected the in-flight fragment to finish, got %v", got)
	}
	if got := f.obs.Count(metrics.EventFragmentDropped); got != 2 {
		t.Fatalf("expected 2 abandoned fragments recorded, got %d", got)
	}
	if f.voice.Len() != 0 {
		t.Fatalf("voice queue should be drained")
	}
}

type ctxDiagnoser struct{}

func (ctxDiagnoser) Name() string { return "ctx" }

func (ctxDiagnoser) Diagnose(ctx context.Context, _ string) (diagnosis.Result, error) {
	<-ctx.Done()
	return diagnosis.Result{}, errorsx.Wrap(ctx.Err(), errorsx.ReasonAgentInvocation)
}

func TestCancelledDiagnosisPublishesNoErrorResult(t *testing.T) {
	backlog := fragment.NewQueue[string]()
	results := fragment.NewQueue[diagnosis.Result]()
	obs := metrics.NewMemoryObserver()
	backlog.Push("chest pain")
	stage := NewDiagnosis(DiagnosisConfig{Backlog: backlog, Results: results, Diagnoser: ctxDiagnoser{}, Observer: obs})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := stage.Run(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if results.Len() != 0 {
		t.Fatalf("cancelled diagnosis must not publish a result, got %d", results.Len())
	}
	if obs.Count(metrics.EventDiagnosisFailed) != 0 || obs.Count(metrics.EventFragmentDropped) != 1 {
		t.Fatalf("expected one dropped event and no failure event")
	}
}
