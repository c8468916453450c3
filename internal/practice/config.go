package practice

import (
	"time"

	"github.com/MrWong99/readalong/internal/align"
	"github.com/MrWong99/readalong/internal/recognition"
	"github.com/MrWong99/readalong/internal/transcript/phonetic"
	"github.com/MrWong99/readalong/pkg/audio"
)

// Default session parameters.
const (
	defaultLanguage        = "hi-IN"
	defaultMaxAlternatives = 5
	defaultDrainTimeout    = 3 * time.Second
)

// DefaultStreamFormat is the PCM format sent to recognition providers.
var DefaultStreamFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Config describes one practice attempt.
type Config struct {
	// Passage is the reference text the reader reads aloud. Required.
	Passage string

	// Language is the primary BCP-47 recognition language. It also selects
	// the script used to normalize words. Default: "hi-IN".
	Language string

	// FallbackLanguages are tried in order when the engine rejects Language.
	FallbackLanguages []string

	// MaxAlternatives is the number of ranked hypotheses requested per
	// result. Default: 5.
	MaxAlternatives int

	// AlignInterim also aligns non-final results. Interim alignment gives
	// faster feedback at the cost of committing to early hypotheses.
	AlignInterim bool

	// Stream is the PCM format sent to the provider. Default: 16kHz mono.
	Stream audio.Format

	// RealTime paces audio from the source at playback speed. Enable it for
	// file input so that streaming providers receive audio as if spoken.
	RealTime bool

	// DrainTimeout is how long to keep listening for final results after
	// the audio source is exhausted. Default: 3s.
	DrainTimeout time.Duration

	// Policy configures recognition error recovery.
	Policy recognition.Policy

	// Thresholds overrides the word matcher thresholds when non-nil.
	Thresholds *phonetic.Thresholds

	// Script overrides the normalization script derived from Language when
	// set. See [normalize.ScriptByName].
	Script string

	// Metaphone enables the Double Metaphone rule for Latin-script passages.
	Metaphone bool

	// Weights overrides the positional alignment weights when non-nil.
	Weights *align.Weights

	// MinSimilarity overrides the alignment acceptance threshold when positive.
	MinSimilarity float64
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = defaultMaxAlternatives
	}
	if c.Stream == (audio.Format{}) {
		c.Stream = DefaultStreamFormat
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return c
}
