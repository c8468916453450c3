package normalize

import (
	"unicode"

	"golang.org/x/text/language"
)

// Script describes the letter ranges a [Normalizer] keeps and the subset of
// those ranges that are vowel-modifier diacritics stripped by BaseForm.
type Script struct {
	// Name is a short label used in logs and config ("devanagari", "bengali", "latin").
	Name string

	// Letters lists every rune of the script that survives normalization in
	// addition to the basic alphanumerics [a-z0-9].
	Letters *unicode.RangeTable

	// Modifiers lists the dependent vowel signs and other combining marks
	// dropped when computing a base form.
	Modifiers *unicode.RangeTable
}

// Devanagari covers Hindi, Marathi, Nepali and Sanskrit passages. The danda
// punctuation marks (U+0964, U+0965) are excluded from Letters.
var Devanagari = Script{
	Name: "devanagari",
	Letters: &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0900, Hi: 0x0963, Stride: 1},
		{Lo: 0x0966, Hi: 0x097F, Stride: 1},
	}},
	Modifiers: &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0900, Hi: 0x0903, Stride: 1}, // candrabindu, anusvara, visarga
		{Lo: 0x093A, Hi: 0x093C, Stride: 1}, // nukta
		{Lo: 0x093E, Hi: 0x094F, Stride: 1}, // matras, virama
		{Lo: 0x0951, Hi: 0x0957, Stride: 1},
		{Lo: 0x0962, Hi: 0x0963, Stride: 1},
	}},
}

// Bengali covers Bengali and Assamese passages.
var Bengali = Script{
	Name: "bengali",
	Letters: &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0980, Hi: 0x09FF, Stride: 1},
	}},
	Modifiers: &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0981, Hi: 0x0983, Stride: 1},
		{Lo: 0x09BC, Hi: 0x09BC, Stride: 1},
		{Lo: 0x09BE, Hi: 0x09C4, Stride: 1},
		{Lo: 0x09C7, Hi: 0x09C8, Stride: 1},
		{Lo: 0x09CB, Hi: 0x09CD, Stride: 1},
		{Lo: 0x09D7, Hi: 0x09D7, Stride: 1},
		{Lo: 0x09E2, Hi: 0x09E3, Stride: 1},
	}},
}

// Latin covers passages written in Latin script, including accented letters.
var Latin = Script{
	Name:    "latin",
	Letters: unicode.Latin,
	Modifiers: &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0300, Hi: 0x036F, Stride: 1},
	}},
}

// scriptsByLanguage maps ISO 639 base languages to their passage script.
var scriptsByLanguage = map[string]Script{
	"hi":  Devanagari,
	"mr":  Devanagari,
	"ne":  Devanagari,
	"sa":  Devanagari,
	"kok": Devanagari,
	"mai": Devanagari,
	"bn":  Bengali,
	"as":  Bengali,
}

// ScriptForLanguage returns the script used by the given BCP-47 tag. Unknown
// or unparsable tags fall back to [Latin].
func ScriptForLanguage(tag string) Script {
	t, err := language.Parse(tag)
	if err != nil {
		return Latin
	}
	base, _ := t.Base()
	if s, ok := scriptsByLanguage[base.String()]; ok {
		return s
	}
	return Latin
}

// ScriptByName resolves a configured script name. ok is false for unknown names.
func ScriptByName(name string) (s Script, ok bool) {
	switch name {
	case Devanagari.Name:
		return Devanagari, true
	case Bengali.Name:
		return Bengali, true
	case Latin.Name:
		return Latin, true
	}
	return Script{}, false
}
