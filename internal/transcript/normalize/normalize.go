// Package normalize canonicalizes raw speech-to-text hypotheses and reference
// passage words into comparable tokens.
//
// Normalization is script-aware: a [Normalizer] keeps the letters of one
// target [Script] plus the basic alphanumerics [a-z0-9], lowercases, strips
// everything else, and collapses whitespace. [Normalizer.BaseForm] further
// removes vowel-modifier diacritics so that words differing only in their
// matras (or accents) compare equal.
//
// Both transforms are pure, deterministic and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer applies the canonicalization rules for one [Script]. It is
// read-only after construction and safe for concurrent use.
type Normalizer struct {
	script Script
}

// New returns a Normalizer for script.
func New(script Script) *Normalizer {
	return &Normalizer{script: script}
}

// Script returns the script this normalizer keeps.
func (n *Normalizer) Script() Script {
	return n.script
}

// Normalize lowercases raw, strips every rune outside the script letters and
// basic alphanumerics, collapses whitespace runs to a single space and trims.
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	// cases.Caser is stateful; one per call keeps Normalizer shareable.
	s := cases.Lower(language.Und).String(norm.NFC.String(raw))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case n.keep(r):
			b.WriteRune(r)
		}
	}
	return collapse(norm.NFC.String(b.String()))
}

// BaseForm returns the normalized form of raw with all vowel-modifier
// diacritics of the script removed.
func (n *Normalizer) BaseForm(raw string) string {
	s := n.Normalize(raw)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(n.script.Modifiers, r) {
			continue
		}
		b.WriteRune(r)
	}
	return collapse(norm.NFC.String(b.String()))
}

// Tokens splits the normalized form of raw into words.
func (n *Normalizer) Tokens(raw string) []string {
	return strings.Fields(n.Normalize(raw))
}

func (n *Normalizer) keep(r rune) bool {
	if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
		return true
	}
	return unicode.Is(n.script.Letters, r) || unicode.Is(n.script.Modifiers, r)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var defaultNormalizer = New(Devanagari)

// Normalize applies [Normalizer.Normalize] with the [Devanagari] script.
func Normalize(raw string) string { return defaultNormalizer.Normalize(raw) }

// BaseForm applies [Normalizer.BaseForm] with the [Devanagari] script.
func BaseForm(raw string) string { return defaultNormalizer.BaseForm(raw) }
