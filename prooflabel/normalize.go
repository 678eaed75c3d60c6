package prooflabel

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText performs Unicode normalization, collapses whitespace and
// folds the text to upper case using French casing rules.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	// Drop control characters; tabs and newlines are whitespace and get collapsed below.
	normed = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	normed = strings.Join(strings.Fields(normed), " ")
	if normed == "" {
		return ""
	}
	// Casers keep state, so one is built per call.
	normed = cases.Upper(language.French).String(normed)
	return norm.NFKC.String(normed)
}

// NormalizeAll normalizes a slice of strings.
func NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = NormalizeText(t)
	}
	return out
}

// FoldAccents removes combining marks so that "DÉCHET" and "DECHET" compare equal.
func FoldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// matchKey is the representation keywords and inputs are compared on.
func matchKey(normalized string, accentSensitive bool) string {
	if accentSensitive {
		return normalized
	}
	return FoldAccents(normalized)
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
