// Package reading holds the per-attempt reading state: the immutable
// reference [Passage], the per-word [WordState] array with its pointer
// ([Tracker]), and the final accuracy [Summary].
package reading

import (
	"errors"
	"strings"

	"github.com/MrWong99/readalong/internal/transcript/normalize"
)

// ErrEmptyPassage is returned by [NewPassage] when the text contains no word
// that survives normalization.
var ErrEmptyPassage = errors.New("reading: passage contains no readable words")

// Passage is the ordered, immutable sequence of reference words. Indices are
// stable for the lifetime of a session.
type Passage struct {
	words      []string
	normalized []string
}

// NewPassage splits text on whitespace and keeps every token whose
// normalized form is non-empty.
func NewPassage(text string, n *normalize.Normalizer) (*Passage, error) {
	if n == nil {
		n = normalize.New(normalize.Devanagari)
	}
	p := &Passage{}
	for _, w := range strings.Fields(text) {
		nw := n.Normalize(w)
		if nw == "" {
			continue
		}
		p.words = append(p.words, w)
		p.normalized = append(p.normalized, nw)
	}
	if len(p.words) == 0 {
		return nil, ErrEmptyPassage
	}
	return p, nil
}

// Len returns the number of reference words.
func (p *Passage) Len() int { return len(p.words) }

// Word returns the reference word at i as it appeared in the source text.
func (p *Passage) Word(i int) string { return p.words[i] }

// Normalized returns the normalized form of the reference word at i.
func (p *Passage) Normalized(i int) string { return p.normalized[i] }

// Words returns a copy of the display words.
func (p *Passage) Words() []string {
	out := make([]string, len(p.words))
	copy(out, p.words)
	return out
}
