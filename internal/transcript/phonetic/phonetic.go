// Package phonetic scores how closely a spoken token matches an expected
// reference word.
//
// [Matcher.Similarity] evaluates a fixed ladder of rules and returns the score
// of the first rule that fires:
//
//  1. Exact match of normalized forms.
//  2. Exact match of base forms (vowel modifiers stripped).
//  3. Equal length: per-position comparison where a [Table] hit counts as a
//     near miss; accepted above a threshold.
//  4. Large length difference: containment only, penalised when the shorter
//     word is much shorter than the longer one.
//  5. Small length difference: containment, then shared prefix/suffix.
//  6. Fallback per-position similarity over the overlapping prefix with
//     looser acceptance for smaller length differences.
//
// For Latin-script passages an optional Double Metaphone rule (enabled with
// [WithMetaphone]) sits between rules 3 and 4.
//
// Every threshold is a field of [Thresholds] so it can be calibrated against
// real transcripts without code changes.
package phonetic

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/readalong/internal/transcript/normalize"
)

// Thresholds holds the scores and acceptance limits of every matching rule.
type Thresholds struct {
	// Exact is returned for identical normalized forms. Default: 1.0.
	Exact float64 `yaml:"exact"`

	// BaseForm is returned for identical base forms. Default: 0.95.
	BaseForm float64 `yaml:"base_form"`

	// SubstitutionHit is the per-position credit for a substitution-table
	// hit. Default: 0.8.
	SubstitutionHit float64 `yaml:"substitution_hit"`

	// SubstitutionAccept is the average an equal-length comparison must
	// exceed. Default: 0.6.
	SubstitutionAccept float64 `yaml:"substitution_accept"`

	// PhoneticCode is returned when Double Metaphone codes overlap. Default: 0.85.
	PhoneticCode float64 `yaml:"phonetic_code"`

	// MaxLenDiff is the largest length difference that still allows the
	// fuzzy rules; beyond it only containment counts. Default: 4.
	MaxLenDiff int `yaml:"max_len_diff"`

	// ContainmentRatio is the shorter/longer length ratio under which a
	// long-distance containment is penalised. Default: 0.6.
	ContainmentRatio float64 `yaml:"containment_ratio"`

	// ShortContainment and LongContainment are the long-distance containment
	// scores below and above ContainmentRatio. Defaults: 0.4, 0.8.
	ShortContainment float64 `yaml:"short_containment"`
	LongContainment  float64 `yaml:"long_containment"`

	// Containment is the score for containment within MaxLenDiff. Default: 0.9.
	Containment float64 `yaml:"containment"`

	// Affix is the shared prefix/suffix score, allowed up to AffixMaxLenDiff.
	// Defaults: 0.8, 2.
	Affix           float64 `yaml:"affix"`
	AffixMaxLenDiff int     `yaml:"affix_max_len_diff"`

	// LooseMaxLenDiff/LooseAccept and TightMaxLenDiff/TightAccept/TightBonus
	// govern the fallback rule. Defaults: 3/0.5 and 2/0.4/+0.1.
	LooseMaxLenDiff int     `yaml:"loose_max_len_diff"`
	LooseAccept     float64 `yaml:"loose_accept"`
	TightMaxLenDiff int     `yaml:"tight_max_len_diff"`
	TightAccept     float64 `yaml:"tight_accept"`
	TightBonus      float64 `yaml:"tight_bonus"`
}

// DefaultThresholds returns the empirically chosen defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Exact:              1.0,
		BaseForm:           0.95,
		SubstitutionHit:    0.8,
		SubstitutionAccept: 0.6,
		PhoneticCode:       0.85,
		MaxLenDiff:         4,
		ContainmentRatio:   0.6,
		ShortContainment:   0.4,
		LongContainment:    0.8,
		Containment:        0.9,
		Affix:              0.8,
		AffixMaxLenDiff:    2,
		LooseMaxLenDiff:    3,
		LooseAccept:        0.5,
		TightMaxLenDiff:    2,
		TightAccept:        0.4,
		TightBonus:         0.1,
	}
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThresholds replaces the default rule thresholds.
func WithThresholds(th Thresholds) Option {
	return func(m *Matcher) {
		m.th = th
	}
}

// WithSubstitutions replaces the substitution table derived from the script.
func WithSubstitutions(t Table) Option {
	return func(m *Matcher) {
		m.table = t
	}
}

// WithNormalizer sets the normalizer (and therefore the script) used to
// canonicalize both words. Default: Devanagari.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(m *Matcher) {
		m.norm = n
	}
}

// WithMetaphone enables the Double Metaphone rule for Latin-script words.
func WithMetaphone(enabled bool) Option {
	return func(m *Matcher) {
		m.metaphone = enabled
	}
}

// Matcher scores spoken tokens against expected words. All methods are safe
// for concurrent use; the Matcher is read-only after construction.
type Matcher struct {
	norm      *normalize.Normalizer
	table     Table
	th        Thresholds
	metaphone bool
}

// New returns a new [Matcher] configured with the supplied options. Without
// options it normalizes with the Devanagari script, uses its substitution
// table and [DefaultThresholds].
func New(opts ...Option) *Matcher {
	m := &Matcher{th: DefaultThresholds()}
	for _, o := range opts {
		o(m)
	}
	if m.norm == nil {
		m.norm = normalize.New(normalize.Devanagari)
	}
	if m.table == nil {
		m.table = TableForScript(m.norm.Script())
	}
	return m
}

// Normalizer returns the normalizer the matcher canonicalizes with.
func (m *Matcher) Normalizer() *normalize.Normalizer {
	return m.norm
}

// Similarity returns a score in [0, 1] describing how well spoken matches
// expected. Empty inputs score 0.
func (m *Matcher) Similarity(spoken, expected string) float64 {
	s := m.norm.Normalize(spoken)
	e := m.norm.Normalize(expected)
	if s == "" || e == "" {
		return 0
	}

	// Rule 1: exact.
	if s == e {
		return m.th.Exact
	}

	// Rule 2: base consonants.
	if sb, eb := m.norm.BaseForm(s), m.norm.BaseForm(e); sb != "" && sb == eb {
		return m.th.BaseForm
	}

	sr, er := []rune(s), []rune(e)
	diff := abs(len(sr) - len(er))

	// Rule 3: equal length, substitution-aware per-position score.
	if diff == 0 {
		if avg := m.positional(sr, er); avg > m.th.SubstitutionAccept {
			return avg
		}
	}

	if m.metaphone && m.norm.Script().Name == normalize.Latin.Name && codesOverlap(s, e) {
		return m.th.PhoneticCode
	}

	shorter, longer := s, e
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	contained := strings.Contains(longer, shorter)

	// Rule 4: large length difference, containment only.
	if diff > m.th.MaxLenDiff {
		if !contained {
			return 0
		}
		ratio := float64(utf8.RuneCountInString(shorter)) / float64(utf8.RuneCountInString(longer))
		if ratio < m.th.ContainmentRatio {
			return m.th.ShortContainment
		}
		return m.th.LongContainment
	}

	// Rule 5: containment, then shared prefix/suffix.
	if contained {
		return m.th.Containment
	}
	if diff <= m.th.AffixMaxLenDiff && sharesAffix(sr, er) {
		return m.th.Affix
	}

	// Rule 6: positional fallback over the overlapping prefix.
	score := m.positional(sr, er)
	switch {
	case diff <= m.th.TightMaxLenDiff && score > m.th.TightAccept:
		return math.Min(1, score+m.th.TightBonus)
	case diff <= m.th.LooseMaxLenDiff && score > m.th.LooseAccept:
		return score
	}
	return 0
}

// Match returns the candidate with the highest similarity to word. When no
// candidate scores above zero, best is "" and score is 0. Ties keep the
// earliest candidate.
func (m *Matcher) Match(word string, candidates []string) (best string, score float64) {
	for _, c := range candidates {
		if s := m.Similarity(word, c); s > score {
			best, score = c, s
		}
	}
	return best, score
}

// positional credits each aligned position of the overlapping prefix and
// normalizes by the longer length.
func (m *Matcher) positional(a, b []rune) float64 {
	n := min(len(a), len(b))
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	var total float64
	for i := range n {
		switch {
		case a[i] == b[i]:
			total += 1
		case m.table.Confusable(a[i], b[i]):
			total += m.th.SubstitutionHit
		}
	}
	return total / float64(longest)
}

// sharesAffix reports whether a and b share a prefix or suffix covering all
// but at most one rune of the shorter word (and at least two runes).
func sharesAffix(a, b []rune) bool {
	shorter := min(len(a), len(b))
	need := max(2, shorter-1)
	if shorter < need {
		return false
	}
	var pre int
	for pre < shorter && a[pre] == b[pre] {
		pre++
	}
	if pre >= need {
		return true
	}
	var suf int
	for suf < shorter && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}
	return suf >= need
}

// codesOverlap reports whether any Double Metaphone code of a equals one of b.
// Words that produce no code never overlap.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
