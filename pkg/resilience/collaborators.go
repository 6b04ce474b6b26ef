package resilience

import (
	"context"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/adapters/stt"
	"github.com/harunnryd/clinirelay/pkg/adapters/translate"
	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

// Options configures the collaborator wrappers.
type Options struct {
	Policy  RetryPolicy
	Breaker *CircuitBreaker
}

type transcriber struct {
	next stt.Transcriber
	opts Options
}

// WrapTranscriber applies retry and breaker to a transcriber.
func WrapTranscriber(next stt.Transcriber, opts Options) stt.Transcriber {
	return &transcriber{next: next, opts: opts}
}

func (t *transcriber) Name() string { return t.next.Name() }

func (t *transcriber) Transcribe(ctx context.Context, pcm audio.PCM) (string, error) {
	var text string
	err := Guard(ctx, t.opts.Breaker, t.opts.Policy, func(ctx context.Context) error {
		var err error
		text, err = t.next.Transcribe(ctx, pcm)
		return err
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	return text, nil
}

type translator struct {
	next translate.Translator
	opts Options
}

func WrapTranslator(next translate.Translator, opts Options) translate.Translator {
	return &translator{next: next, opts: opts}
}

func (t *translator) Name() string { return t.next.Name() }

func (t *translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	var out string
	err := Guard(ctx, t.opts.Breaker, t.opts.Policy, func(ctx context.Context) error {
		var err error
		out, err = t.next.Translate(ctx, text, source, target)
		return err
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	return out, nil
}

type diagnoser struct {
	next diagnosis.Diagnoser
	opts Options
}

func WrapDiagnoser(next diagnosis.Diagnoser, opts Options) diagnosis.Diagnoser {
	return &diagnoser{next: next, opts: opts}
}

func (d *diagnoser) Name() string { return d.next.Name() }

func (d *diagnoser) Diagnose(ctx context.Context, conversation string) (diagnosis.Result, error) {
	var res diagnosis.Result
	err := Guard(ctx, d.opts.Breaker, d.opts.Policy, func(ctx context.Context) error {
		var err error
		res, err = d.next.Diagnose(ctx, conversation)
		return err
	})
	if err != nil {
		return diagnosis.Result{}, errorsx.Wrap(err, errorsx.ReasonAgentInvocation)
	}
	return res, nil
}
