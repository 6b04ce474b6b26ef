// Package relay wires queues, stages, publishers and channel servers into
// one running process.
package relay

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/notify/twilio"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
	Channels    ChannelsConfig   `mapstructure:"channels"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	Vendors     VendorsConfig    `mapstructure:"vendors"`
	Resilience  ResilienceConfig `mapstructure:"resilience"`
	Notify      NotifyConfig     `mapstructure:"notify"`
	Privacy     PrivacyConfig    `mapstructure:"privacy"`
}

type ChannelConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

type ChannelsConfig struct {
	Voice          ChannelConfig `mapstructure:"voice"`
	Transcribed    ChannelConfig `mapstructure:"transcribed"`
	Diagnosis      ChannelConfig `mapstructure:"diagnosis"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AllowAnyOrigin bool          `mapstructure:"allow_any_origin"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
}

type PipelineConfig struct {
	TranscribeInterval       time.Duration `mapstructure:"transcribe_interval"`
	DiagnosisInterval        time.Duration `mapstructure:"diagnosis_interval"`
	TextPublishInterval      time.Duration `mapstructure:"text_publish_interval"`
	DiagnosisPublishInterval time.Duration `mapstructure:"diagnosis_publish_interval"`
	HeartbeatInterval        time.Duration `mapstructure:"heartbeat_interval"`
	Retention                time.Duration `mapstructure:"retention"`
	SendTimeout              time.Duration `mapstructure:"send_timeout"`
	BroadcastConcurrency     int           `mapstructure:"broadcast_concurrency"`
	SourceLanguage           string        `mapstructure:"source_language"`
	DrainTimeout             time.Duration `mapstructure:"drain_timeout"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	CloudSTT   VendorConfig `mapstructure:"cloud_stt"`
	LocalSTT   VendorConfig `mapstructure:"local_stt"`
	Translator VendorConfig `mapstructure:"translator"`
	Diagnoser  VendorConfig `mapstructure:"diagnoser"`
}

type ResilienceConfig struct {
	Retries          int           `mapstructure:"retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type NotifyConfig struct {
	SMS twilio.Config `mapstructure:"sms"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("channels.voice.addr", ":8081")
	v.SetDefault("channels.voice.path", "/ws")
	v.SetDefault("channels.transcribed.addr", ":6081")
	v.SetDefault("channels.transcribed.path", "/ws")
	v.SetDefault("channels.diagnosis.addr", ":7081")
	v.SetDefault("channels.diagnosis.path", "/ws")
	v.SetDefault("channels.allowed_origins", []string{})
	v.SetDefault("channels.allow_any_origin", false)
	v.SetDefault("channels.write_timeout", "10s")
	v.SetDefault("channels.pong_wait", "60s")
	v.SetDefault("pipeline.transcribe_interval", "5s")
	v.SetDefault("pipeline.diagnosis_interval", "10s")
	v.SetDefault("pipeline.text_publish_interval", "7s")
	v.SetDefault("pipeline.diagnosis_publish_interval", "1s")
	v.SetDefault("pipeline.heartbeat_interval", "8s")
	v.SetDefault("pipeline.retention", "10m")
	v.SetDefault("pipeline.send_timeout", "5s")
	v.SetDefault("pipeline.broadcast_concurrency", 8)
	v.SetDefault("pipeline.source_language", "English")
	v.SetDefault("pipeline.drain_timeout", "10s")
	v.SetDefault("vendors.cloud_stt.provider", "openai")
	v.SetDefault("vendors.local_stt.provider", "whisper_server")
	v.SetDefault("vendors.translator.provider", "openai")
	v.SetDefault("vendors.diagnoser.provider", "agent")
	v.SetDefault("resilience.retries", 1)
	v.SetDefault("resilience.retry_backoff", "500ms")
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown", "30s")
	v.SetDefault("notify.sms.enabled", false)
	v.SetDefault("notify.sms.account_sid", "")
	v.SetDefault("notify.sms.auth_token", "")
	v.SetDefault("notify.sms.from", "")
	v.SetDefault("notify.sms.to", []string{})
	v.SetDefault("privacy.redact_pii", true)
}

// LoadConfig reads path (optional) over the defaults. Every key can be
// overridden from the environment with the CLINIRELAY_ prefix, e.g.
// CLINIRELAY_PIPELINE_RETENTION=30m.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CLINIRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonValidation)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonValidation)
	}
	expandEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	vendors := map[string]VendorConfig{
		"vendors.cloud_stt":  c.Vendors.CloudSTT,
		"vendors.local_stt":  c.Vendors.LocalSTT,
		"vendors.translator": c.Vendors.Translator,
		"vendors.diagnoser":  c.Vendors.Diagnoser,
	}
	for path, vc := range vendors {
		if strings.TrimSpace(vc.Provider) == "" {
			return errorsx.New(errorsx.ReasonValidation, "%s.provider is required", path)
		}
	}
	intervals := map[string]time.Duration{
		"pipeline.transcribe_interval":        c.Pipeline.TranscribeInterval,
		"pipeline.diagnosis_interval":         c.Pipeline.DiagnosisInterval,
		"pipeline.text_publish_interval":      c.Pipeline.TextPublishInterval,
		"pipeline.diagnosis_publish_interval": c.Pipeline.DiagnosisPublishInterval,
		"pipeline.heartbeat_interval":         c.Pipeline.HeartbeatInterval,
	}
	for path, d := range intervals {
		if d <= 0 {
			return errorsx.New(errorsx.ReasonValidation, "%s must be positive", path)
		}
	}
	if c.Pipeline.Retention < 0 {
		return errorsx.New(errorsx.ReasonValidation, "pipeline.retention must not be negative")
	}
	addrs := map[string]string{}
	for name, ch := range c.channelMap() {
		if strings.TrimSpace(ch.Addr) == "" {
			return errorsx.New(errorsx.ReasonValidation, "channels.%s.addr is required", name)
		}
		if strings.HasSuffix(ch.Addr, ":0") {
			continue
		}
		if other, dup := addrs[ch.Addr]; dup {
			return errorsx.New(errorsx.ReasonValidation, "channels.%s and channels.%s share address %s", name, other, ch.Addr)
		}
		addrs[ch.Addr] = name
	}
	if c.Notify.SMS.Enabled {
		if err := c.Notify.SMS.Validate(); err != nil {
			return errorsx.Wrap(fmt.Errorf("notify.sms: %w", err), errorsx.ReasonValidation)
		}
	}
	return nil
}

func (c *Config) channelMap() map[string]ChannelConfig {
	return map[string]ChannelConfig{
		ChannelVoice:       c.Channels.Voice,
		ChannelTranscribed: c.Channels.Transcribed,
		ChannelDiagnosis:   c.Channels.Diagnosis,
	}
}

// expandEnv resolves ${VAR} references in secrets and vendor settings.
func expandEnv(cfg *Config) {
	for _, vc := range []*VendorConfig{&cfg.Vendors.CloudSTT, &cfg.Vendors.LocalSTT, &cfg.Vendors.Translator, &cfg.Vendors.Diagnoser} {
		vc.Settings = expandSettings(vc.Settings)
	}
	cfg.Notify.SMS.AccountSID = os.ExpandEnv(cfg.Notify.SMS.AccountSID)
	cfg.Notify.SMS.AuthToken = os.ExpandEnv(cfg.Notify.SMS.AuthToken)
	cfg.Notify.SMS.From = os.ExpandEnv(cfg.Notify.SMS.From)
	for i, to := range cfg.Notify.SMS.To {
		cfg.Notify.SMS.To[i] = os.ExpandEnv(to)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}
