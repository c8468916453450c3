package phonetic

import (
	"maps"
	"slices"

	"github.com/MrWong99/readalong/internal/transcript/normalize"
)

// Table maps each letter to the letters a recognizer commonly confuses it
// with: aspirated/unaspirated stop pairs, retroflex/dental pairs, sibilants
// and short/long vowel pairs. Tables built with [NewTable] are symmetric.
type Table map[rune][]rune

// NewTable builds a symmetric Table from confusable pairs.
func NewTable(pairs ...[2]rune) Table {
	t := make(Table, len(pairs)*2)
	for _, p := range pairs {
		t.add(p[0], p[1])
		t.add(p[1], p[0])
	}
	return t
}

func (t Table) add(a, b rune) {
	if !slices.Contains(t[a], b) {
		t[a] = append(t[a], b)
	}
}

// Confusable reports whether a and b are listed as commonly confused.
func (t Table) Confusable(a, b rune) bool {
	return slices.Contains(t[a], b) || slices.Contains(t[b], a)
}

// Merge returns a new Table holding the entries of t and every other table.
func (t Table) Merge(others ...Table) Table {
	out := make(Table, len(t))
	for _, src := range append([]Table{t}, others...) {
		for _, k := range slices.Sorted(maps.Keys(src)) {
			for _, v := range src[k] {
				out.add(k, v)
			}
		}
	}
	return out
}

// LatinTable covers transliterated passages and the basic alphanumerics kept
// by every script.
var LatinTable = NewTable(
	[2]rune{'b', 'p'}, [2]rune{'d', 't'}, [2]rune{'g', 'k'}, [2]rune{'k', 'c'},
	[2]rune{'k', 'q'}, [2]rune{'c', 's'}, [2]rune{'s', 'z'}, [2]rune{'j', 'z'},
	[2]rune{'v', 'f'}, [2]rune{'v', 'w'}, [2]rune{'b', 'v'}, [2]rune{'m', 'n'},
	[2]rune{'l', 'r'}, [2]rune{'i', 'e'}, [2]rune{'i', 'y'}, [2]rune{'o', 'u'},
	[2]rune{'a', 'e'}, [2]rune{'a', 'o'},
)

// DevanagariTable lists the confusions typical for Hindi recognition.
var DevanagariTable = NewTable(
	// Aspirated / unaspirated stops.
	[2]rune{'क', 'ख'}, [2]rune{'ग', 'घ'}, [2]rune{'च', 'छ'}, [2]rune{'ज', 'झ'},
	[2]rune{'ट', 'ठ'}, [2]rune{'ड', 'ढ'}, [2]rune{'त', 'थ'}, [2]rune{'द', 'ध'},
	[2]rune{'प', 'फ'}, [2]rune{'ब', 'भ'},
	// Retroflex / dental.
	[2]rune{'ट', 'त'}, [2]rune{'ठ', 'थ'}, [2]rune{'ड', 'द'}, [2]rune{'ढ', 'ध'},
	[2]rune{'ण', 'न'},
	// Sibilants and semivowels.
	[2]rune{'श', 'ष'}, [2]rune{'श', 'स'}, [2]rune{'ष', 'स'}, [2]rune{'ब', 'व'},
	[2]rune{'ज', 'य'},
	// Short / long vowels and their matras.
	[2]rune{'अ', 'आ'}, [2]rune{'इ', 'ई'}, [2]rune{'उ', 'ऊ'}, [2]rune{'ए', 'ऐ'},
	[2]rune{'ओ', 'औ'}, [2]rune{'ि', 'ी'}, [2]rune{'ु', 'ू'}, [2]rune{'े', 'ै'},
	[2]rune{'ो', 'ौ'}, [2]rune{'ं', 'ँ'},
)

// BengaliTable lists the confusions typical for Bengali recognition.
var BengaliTable = NewTable(
	[2]rune{'ক', 'খ'}, [2]rune{'গ', 'ঘ'}, [2]rune{'চ', 'ছ'}, [2]rune{'জ', 'ঝ'},
	[2]rune{'ট', 'ঠ'}, [2]rune{'ড', 'ঢ'}, [2]rune{'ত', 'থ'}, [2]rune{'দ', 'ধ'},
	[2]rune{'প', 'ফ'}, [2]rune{'ব', 'ভ'},
	[2]rune{'শ', 'ষ'}, [2]rune{'শ', 'স'}, [2]rune{'ষ', 'স'}, [2]rune{'ন', 'ণ'},
	[2]rune{'জ', 'য'},
	[2]rune{'ই', 'ঈ'}, [2]rune{'উ', 'ঊ'}, [2]rune{'ি', 'ী'}, [2]rune{'ু', 'ূ'},
)

// TableForScript returns the substitution table for script merged with
// [LatinTable].
func TableForScript(script normalize.Script) Table {
	switch script.Name {
	case normalize.Devanagari.Name:
		return DevanagariTable.Merge(LatinTable)
	case normalize.Bengali.Name:
		return BengaliTable.Merge(LatinTable)
	default:
		return LatinTable
	}
}
