package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/readalong/internal/transcript/normalize"
)

// ErrNoPassage is returned by [Config.ResolvePassage] when neither a passage
// nor a passage file is configured.
var ErrNoPassage = errors.New("config: no passage configured")

// KnownProviders lists the STT provider names that ship with readalong.
// [Validate] warns about names outside this list.
var KnownProviders = []string{"deepgram", "google", "replay"}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates it without
// consulting the environment. Useful in tests.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: Deepgram
// recognition of Hindi with every other value at its default.
func Default() *Config {
	return &Config{
		Server:      ServerConfig{LogLevel: LogInfo},
		Recognition: RecognitionConfig{Provider: ProviderEntry{Name: "deepgram"}, Language: "hi-IN"},
	}
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v is out of range [0, 1]", r))
	}

	rec := cfg.Recognition
	if rec.Provider.Name == "" {
		errs = append(errs, errors.New("recognition.provider.name is required"))
	}
	warnUnknownProvider(rec.Provider.Name)
	seen := map[string]bool{rec.Provider.Name: true}
	for i, fb := range rec.FallbackProviders {
		prefix := fmt.Sprintf("recognition.fallback_providers[%d]", i)
		switch {
		case fb.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case seen[fb.Name]:
			errs = append(errs, fmt.Errorf("%s.name %q is configured twice", prefix, fb.Name))
		}
		seen[fb.Name] = true
		warnUnknownProvider(fb.Name)
	}
	if rec.MaxAlternatives < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_alternatives %d must not be negative", rec.MaxAlternatives))
	}
	for i, lang := range rec.FallbackLanguages {
		if strings.TrimSpace(lang) == "" {
			errs = append(errs, fmt.Errorf("recognition.fallback_languages[%d] is empty", i))
		}
	}
	if err := rec.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recognition.policy: %w", err))
	}
	if cb := rec.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("recognition.circuit_breaker values must not be negative"))
	}

	if name := cfg.Matcher.Script; name != "" {
		if _, ok := normalize.ScriptByName(name); !ok {
			errs = append(errs, fmt.Errorf("matcher.script %q is invalid; valid values: devanagari, bengali, latin", name))
		}
	}
	if t := cfg.Matcher.Thresholds; t != nil {
		for name, v := range map[string]float64{
			"exact":               t.Exact,
			"base_form":           t.BaseForm,
			"substitution_hit":    t.SubstitutionHit,
			"substitution_accept": t.SubstitutionAccept,
			"phonetic_code":       t.PhoneticCode,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, fmt.Errorf("matcher.thresholds.%s %v is out of range [0, 1]", name, v))
			}
		}
		if t.MaxLenDiff < 0 {
			errs = append(errs, fmt.Errorf("matcher.thresholds.max_len_diff %d must not be negative", t.MaxLenDiff))
		}
	}

	if w := cfg.Alignment.Weights; w != nil {
		if w.Current < 0 || w.Next < 0 || w.Future < 0 {
			errs = append(errs, errors.New("alignment.weights must not be negative"))
		}
	}
	if s := cfg.Alignment.MinSimilarity; s < 0 || s >= 1 {
		errs = append(errs, fmt.Errorf("alignment.min_similarity %v is out of range [0, 1)", s))
	}

	s := cfg.Session
	if s.Passage != "" && s.PassageFile != "" {
		errs = append(errs, errors.New("session.passage and session.passage_file are mutually exclusive"))
	}
	if s.SampleRate < 0 || s.Channels < 0 || s.Channels > 2 {
		errs = append(errs, fmt.Errorf("session audio format %d Hz / %d channels is invalid", s.SampleRate, s.Channels))
	}
	if s.DrainTimeout < 0 {
		errs = append(errs, errors.New("session.drain_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(name string) {
	if name == "" || slices.Contains(KnownProviders, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"name", name,
		"known", KnownProviders,
	)
}

// ResolvePassage returns the configured passage text, reading PassageFile
// when Passage is empty.
func (c *Config) ResolvePassage() (string, error) {
	if c.Session.Passage != "" {
		return c.Session.Passage, nil
	}
	if c.Session.PassageFile == "" {
		return "", ErrNoPassage
	}
	b, err := os.ReadFile(c.Session.PassageFile)
	if err != nil {
		return "", fmt.Errorf("config: read passage: %w", err)
	}
	return string(b), nil
}
