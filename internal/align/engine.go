// Package align decides which reference word a recognition result refers to.
//
// The [Engine] tokenizes every ranked alternative of a result, scores each
// token against every pending reference word with the phonetic matcher, and
// weights the score by the word's position relative to the session pointer so
// that sequential left-to-right progress is preferred while forward jumps
// (fast readers, dropped recognitions) remain possible. Words already
// resolved are never matched again.
package align

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/readalong/internal/reading"
	"github.com/MrWong99/readalong/internal/transcript/phonetic"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// Weights are the positional priority multipliers relative to the pointer.
type Weights struct {
	// Current applies to the word under the pointer. Default: 1.0.
	Current float64 `yaml:"current"`
	// Next applies to the word right after the pointer. Default: 0.8.
	Next float64 `yaml:"next"`
	// Future applies to every later word. Default: 0.5.
	Future float64 `yaml:"future"`
}

// DefaultWeights returns the default positional weights.
func DefaultWeights() Weights {
	return Weights{Current: 1.0, Next: 0.8, Future: 0.5}
}

const (
	defaultMinSimilarity     = 0.3
	defaultPartialMaxLenDiff = 2
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithWeights replaces the positional weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithMinSimilarity sets the raw similarity a candidate must exceed. Default: 0.3.
func WithMinSimilarity(v float64) Option {
	return func(e *Engine) {
		e.minSimilarity = v
	}
}

// WithPartialMaxLenDiff sets the largest length difference accepted by the
// containment fallback pass. Default: 2.
func WithPartialMaxLenDiff(n int) Option {
	return func(e *Engine) {
		e.partialMaxLenDiff = n
	}
}

// Engine is a stateless alignment strategy. It is safe for concurrent use;
// all session state lives in the [reading.Tracker] passed to Align.
type Engine struct {
	matcher           *phonetic.Matcher
	weights           Weights
	minSimilarity     float64
	partialMaxLenDiff int
}

// New returns an Engine scoring with m.
func New(m *phonetic.Matcher, opts ...Option) *Engine {
	e := &Engine{
		matcher:           m,
		weights:           DefaultWeights(),
		minSimilarity:     defaultMinSimilarity,
		partialMaxLenDiff: defaultPartialMaxLenDiff,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Weight returns the positional priority of index i for pointer p.
func (e *Engine) Weight(i, p int) float64 {
	switch {
	case i < p:
		return 0
	case i == p:
		return e.weights.Current
	case i == p+1:
		return e.weights.Next
	default:
		return e.weights.Future
	}
}

// Align returns the reference index the result most likely refers to, or a
// no-match decision. Identical inputs always produce identical decisions.
func (e *Engine) Align(p *reading.Passage, t *reading.Tracker, r stt.Result) reading.Decision {
	pointer := t.Pointer()
	states := t.States()
	norm := e.matcher.Normalizer()

	var (
		best    = reading.NoMatch()
		primary []string
	)
	for ai, alt := range r.Alternatives {
		tokens := norm.Tokens(alt.Text)
		if ai == 0 {
			primary = tokens
		}
		for _, tok := range tokens {
			for i := range states {
				if states[i] != reading.Pending {
					continue
				}
				w := e.Weight(i, pointer)
				if w == 0 {
					continue
				}
				expected := p.Normalized(i)
				if tok == expected {
					return reading.Match(i, w, tok)
				}
				sim := e.matcher.Similarity(tok, expected)
				if sim <= e.minSimilarity {
					continue
				}
				if score := sim * w; !best.Matched || score > best.Score {
					best = reading.Match(i, score, tok)
				}
			}
		}
	}
	if best.Matched {
		return best
	}
	return e.partial(p, states, pointer, primary)
}

// partial is the stricter fallback: the first pending word (by index) that
// contains, or is contained in, a primary token of similar length.
func (e *Engine) partial(p *reading.Passage, states []reading.WordState, pointer int, primary []string) reading.Decision {
	for i := range states {
		if states[i] != reading.Pending || e.Weight(i, pointer) == 0 {
			continue
		}
		expected := p.Normalized(i)
		el := utf8.RuneCountInString(expected)
		for _, tok := range primary {
			tl := utf8.RuneCountInString(tok)
			if abs(el-tl) > e.partialMaxLenDiff {
				continue
			}
			if strings.Contains(expected, tok) || strings.Contains(tok, expected) {
				return reading.Match(i, e.Weight(i, pointer), tok)
			}
		}
	}
	return reading.NoMatch()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
