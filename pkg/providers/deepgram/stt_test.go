package deepgram

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/harunnryd/clinirelay/pkg/audio"
	"github.com/harunnryd/clinirelay/pkg/errorsx"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
)

func TestTranscribeExtractsFirstAlternative(t *testing.T) {
	var gotOpts *interfaces.PreRecordedTranscriptionOptions
	var gotBytes int
	tr := newWithStream(Config{Model: "nova-2", Language: "en"}, func(ctx context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		gotOpts = opts
		b, _ := io.ReadAll(src)
		gotBytes = len(b)
		return map[string]any{
			"results": map[string]any{
				"channels": []any{
					map[string]any{"alternatives": []any{
						map[string]any{"transcript": "chest pain since monday"},
						map[string]any{"transcript": "ignored"},
					}},
				},
			},
		}, nil
	})
	text, err := tr.Transcribe(context.Background(), audio.PCM{Samples: make([]int16, 8), SampleRate: 8000})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "chest pain since monday" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotOpts == nil || gotOpts.Model != "nova-2" || !gotOpts.SmartFormat {
		t.Fatalf("unexpected options %+v", gotOpts)
	}
	if gotBytes != 44+16 {
		t.Fatalf("expected wav body, got %d bytes", gotBytes)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tr := newWithStream(Config{}, func(context.Context, io.Reader, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return nil, errors.New("401 unauthorized")
	})
	if _, err := tr.Transcribe(context.Background(), audio.PCM{SampleRate: 16000}); !errorsx.HasReason(err, errorsx.ReasonTranscription) {
		t.Fatalf("expected transcription reason, got %v", err)
	}

	tr = newWithStream(Config{}, func(context.Context, io.Reader, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return map[string]any{"results": map[string]any{}}, nil
	})
	if _, err := tr.Transcribe(context.Background(), audio.PCM{SampleRate: 16000}); err == nil {
		t.Fatalf("expected error for empty channels")
	}
}
