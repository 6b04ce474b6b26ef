package relay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/clinirelay/pkg/adapters/diagnosis"
	"github.com/harunnryd/clinirelay/pkg/adapters/stt"
	"github.com/harunnryd/clinirelay/pkg/adapters/translate"
	"github.com/harunnryd/clinirelay/pkg/configutil"
	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/providers/agent"
	"github.com/harunnryd/clinirelay/pkg/providers/deepgram"
	"github.com/harunnryd/clinirelay/pkg/providers/mock"
	"github.com/harunnryd/clinirelay/pkg/providers/openai"
	"github.com/harunnryd/clinirelay/pkg/providers/stub"
	"github.com/harunnryd/clinirelay/pkg/providers/whisperserver"
)

type TranscriberFactory func(settings map[string]any) (stt.Transcriber, error)
type TranslatorFactory func(settings map[string]any) (translate.Translator, error)
type DiagnoserFactory func(settings map[string]any) (diagnosis.Diagnoser, error)

// ProviderRegistry maps vendor names to collaborator factories. Any
// transcriber can serve either the cloud or the local mode.
type ProviderRegistry struct {
	stt       map[string]TranscriberFactory
	translate map[string]TranslatorFactory
	diagnose  map[string]DiagnoserFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:       make(map[string]TranscriberFactory),
		translate: make(map[string]TranslatorFactory),
		diagnose:  make(map[string]DiagnoserFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterTranscriber(name string, f TranscriberFactory) {
	r.stt[providerKey(name)] = f
}

func (r *ProviderRegistry) RegisterTranslator(name string, f TranslatorFactory) {
	r.translate[providerKey(name)] = f
}

func (r *ProviderRegistry) RegisterDiagnoser(name string, f DiagnoserFactory) {
	r.diagnose[providerKey(name)] = f
}

func (r *ProviderRegistry) BuildTranscriber(vc VendorConfig) (stt.Transcriber, error) {
	f := r.stt[providerKey(vc.Provider)]
	if f == nil {
		return nil, notRegistered("stt", vc.Provider, keys(r.stt))
	}
	return f(vc.Settings)
}

func (r *ProviderRegistry) BuildTranslator(vc VendorConfig) (translate.Translator, error) {
	f := r.translate[providerKey(vc.Provider)]
	if f == nil {
		return nil, notRegistered("translator", vc.Provider, keys(r.translate))
	}
	return f(vc.Settings)
}

func (r *ProviderRegistry) BuildDiagnoser(vc VendorConfig) (diagnosis.Diagnoser, error) {
	f := r.diagnose[providerKey(vc.Provider)]
	if f == nil {
		return nil, notRegistered("diagnoser", vc.Provider, keys(r.diagnose))
	}
	return f(vc.Settings)
}

func notRegistered(kind, name string, known []string) error {
	return errorsx.New(errorsx.ReasonValidation, "%s provider not registered: %s (known: %s)", kind, name, strings.Join(known, ", "))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultProviders registers every built-in vendor.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterTranscriber("openai", func(settings map[string]any) (stt.Transcriber, error) {
		var cfg openai.Config
		if err := configutil.Load(settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url", "language"},
		}, &cfg); err != nil {
			return nil, fmt.Errorf("openai stt: %w", err)
		}
		return openai.NewTranscriber(cfg), nil
	})
	r.RegisterTranscriber("deepgram", func(settings map[string]any) (stt.Transcriber, error) {
		var cfg deepgram.Config
		if err := configutil.Load(settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "host"},
		}, &cfg); err != nil {
			return nil, fmt.Errorf("deepgram stt: %w", err)
		}
		return deepgram.New(cfg), nil
	})
	r.RegisterTranscriber("whisper_server", func(settings map[string]any) (stt.Transcriber, error) {
		var cfg whisperserver.Config
		if err := configutil.Load(settings, configutil.Schema{
			Optional: []string{"url", "language", "timeout"},
		}, &cfg); err != nil {
			return nil, fmt.Errorf("whisper_server stt: %w", err)
		}
		return whisperserver.New(cfg), nil
	})
	r.RegisterTranscriber("stub", func(settings map[string]any) (stt.Transcriber, error) {
		var cfg struct {
			Label string `mapstructure:"label"`
		}
		if err := configutil.Load(settings, configutil.Schema{Optional: []string{"label"}}, &cfg); err != nil {
			return nil, fmt.Errorf("stub stt: %w", err)
		}
		return stub.New(cfg.Label), nil
	})
	r.RegisterTranscriber("mock", func(settings map[string]any) (stt.Transcriber, error) {
		var cfg mock.STTConfig
		if err := configutil.Load(settings, configutil.Schema{Optional: []string{"transcript", "fail_with"}}, &cfg); err != nil {
			return nil, fmt.Errorf("mock stt: %w", err)
		}
		return mock.NewTranscriber(cfg), nil
	})

	r.RegisterTranslator("openai", func(settings map[string]any) (translate.Translator, error) {
		var cfg openai.Config
		if err := configutil.Load(settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url"},
		}, &cfg); err != nil {
			return nil, fmt.Errorf("openai translator: %w", err)
		}
		return openai.NewTranslator(cfg), nil
	})
	r.RegisterTranslator("mock", func(settings map[string]any) (translate.Translator, error) {
		var cfg mock.TranslatorConfig
		if err := configutil.Load(settings, configutil.Schema{Optional: []string{"fail_with"}}, &cfg); err != nil {
			return nil, fmt.Errorf("mock translator: %w", err)
		}
		return mock.NewTranslator(cfg), nil
	})

	r.RegisterDiagnoser("agent", func(settings map[string]any) (diagnosis.Diagnoser, error) {
		var cfg agent.Config
		if err := configutil.Load(settings, configutil.Schema{
			Required: []string{"url"},
			Optional: []string{"api_key", "timeout"},
		}, &cfg); err != nil {
			return nil, fmt.Errorf("agent diagnoser: %w", err)
		}
		return agent.New(cfg), nil
	})
	r.RegisterDiagnoser("mock", func(settings map[string]any) (diagnosis.Diagnoser, error) {
		var cfg mock.DiagnoserConfig
		if err := configutil.Load(settings, configutil.Schema{Optional: []string{"summary", "document", "fail_with"}}, &cfg); err != nil {
			return nil, fmt.Errorf("mock diagnoser: %w", err)
		}
		return mock.NewDiagnoser(cfg), nil
	})
	return r
}
