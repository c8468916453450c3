// Package config provides the configuration schema, loader and provider
// registry for the readalong command.
package config

import (
	"time"

	"github.com/MrWong99/readalong/internal/align"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/internal/recognition"
	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/internal/transcript/phonetic"
	"github.com/MrWong99/readalong/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Matcher     MatcherConfig     `yaml:"matcher"`
	Alignment   AlignmentConfig   `yaml:"alignment"`
	Session     SessionConfig     `yaml:"session"`
}

// ServerConfig holds the operational HTTP endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics
	// (e.g. ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TraceSampleRatio is the fraction of sessions traced, in [0, 1]. Zero
	// samples every session.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// RecognitionConfig selects the speech recognition providers and the
// language and recovery settings of the recognition stream.
type RecognitionConfig struct {
	// Provider is the primary STT provider.
	Provider ProviderEntry `yaml:"provider"`

	// FallbackProviders are tried in order when the primary cannot start a
	// stream or its circuit breaker is open.
	FallbackProviders []ProviderEntry `yaml:"fallback_providers"`

	// Language is the primary BCP-47 recognition language (e.g. "hi-IN").
	Language string `yaml:"language"`

	// FallbackLanguages are tried in order when the engine rejects Language.
	FallbackLanguages []string `yaml:"fallback_languages"`

	// MaxAlternatives is the number of ranked hypotheses requested per result.
	MaxAlternatives int `yaml:"max_alternatives"`

	Policy recognition.Policy `yaml:"policy"`

	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig configures the per-provider circuit breakers used when
// fallback providers are configured.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry is the configuration block of one STT provider. Name selects
// the factory in the [Registry]; the remaining fields are interpreted by
// that factory.
type ProviderEntry struct {
	// Name selects the registered provider implementation ("deepgram",
	// "google", "replay").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a recognition model within the provider.
	Model string `yaml:"model"`

	// ProjectID and Location address Google Cloud Speech-to-Text.
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`

	// CredentialsJSON is a Google service account key. Prefer the
	// READALONG_GOOGLE_CREDENTIALS_JSON environment variable.
	CredentialsJSON string `yaml:"credentials_json"`

	// Script is the path of a replay script.
	Script string `yaml:"script"`
}

// MatcherConfig tunes word-level similarity.
type MatcherConfig struct {
	// Metaphone enables the Double Metaphone rule for Latin-script passages.
	Metaphone bool `yaml:"metaphone"`

	// Script overrides the script derived from the recognition language
	// ("devanagari", "bengali", "latin"), e.g. for romanised passages.
	Script string `yaml:"script"`

	// Thresholds overrides the default similarity thresholds when set.
	Thresholds *phonetic.Thresholds `yaml:"thresholds"`
}

// AlignmentConfig tunes how hypotheses are placed in the passage.
type AlignmentConfig struct {
	// Weights overrides the positional weights when set.
	Weights *align.Weights `yaml:"weights"`

	// MinSimilarity is the similarity a candidate must exceed. Zero keeps the
	// default.
	MinSimilarity float64 `yaml:"min_similarity"`

	// AlignInterim also aligns non-final hypotheses.
	AlignInterim bool `yaml:"align_interim"`
}

// SessionConfig describes the passage and audio input of a practice run.
type SessionConfig struct {
	// Passage is the reference text. PassageFile is read when Passage is
	// empty.
	Passage     string `yaml:"passage"`
	PassageFile string `yaml:"passage_file"`

	// SampleRate and Channels describe the PCM stream sent to the provider.
	// Defaults: 16000 Hz mono.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// RealTime paces audio input at playback speed. Unset means the input
	// decides: files are paced, live streams such as stdin are not.
	RealTime *bool `yaml:"real_time"`

	// DrainTimeout is how long to wait for final results after the audio
	// input ends.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// PracticeConfig maps the configuration onto a practice session config for
// the given passage text.
func (c *Config) PracticeConfig(passage string) practice.Config {
	pc := practice.Config{
		Passage:           passage,
		Language:          c.Recognition.Language,
		FallbackLanguages: c.Recognition.FallbackLanguages,
		MaxAlternatives:   c.Recognition.MaxAlternatives,
		AlignInterim:      c.Alignment.AlignInterim,
		RealTime:          c.Session.RealTime != nil && *c.Session.RealTime,
		DrainTimeout:      c.Session.DrainTimeout,
		Policy:            c.Recognition.Policy,
		Thresholds:        c.Matcher.Thresholds,
		Metaphone:         c.Matcher.Metaphone,
		Script:            c.Matcher.Script,
		Weights:           c.Alignment.Weights,
		MinSimilarity:     c.Alignment.MinSimilarity,
	}
	if c.Session.SampleRate > 0 || c.Session.Channels > 0 {
		pc.Stream = audio.Format{
			SampleRate: c.Session.SampleRate,
			Channels:   c.Session.Channels,
		}
		if pc.Stream.SampleRate == 0 {
			pc.Stream.SampleRate = practice.DefaultStreamFormat.SampleRate
		}
		if pc.Stream.Channels == 0 {
			pc.Stream.Channels = practice.DefaultStreamFormat.Channels
		}
	}
	return pc
}

// FallbackConfig maps the breaker settings onto a resilience config.
func (c *Config) FallbackConfig() resilience.FallbackConfig {
	b := c.Recognition.CircuitBreaker
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout,
			HalfOpenMax:  b.HalfOpenMax,
		},
	}
}
