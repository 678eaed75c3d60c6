package prooflabel

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category is one canonical proof label with the keywords that select it.
type Category struct {
	Label    string   `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

type compiledKeyword struct {
	raw   string
	terms []string
	set   map[string]struct{}
}

type compiledCategory struct {
	label    string
	keywords []compiledKeyword
}

// Taxonomy is an ordered, immutable list of categories. Order encodes
// priority: the first category with a matching keyword wins.
type Taxonomy struct {
	categories      []compiledCategory
	source          []Category
	accentSensitive bool
}

// FuzzyMatch describes the best word-overlap hit across the taxonomy.
type FuzzyMatch struct {
	Label   string
	Keyword string
	Score   float64
}

// NewTaxonomy compiles the categories in the given order. Labels must be
// unique and non-empty.
func NewTaxonomy(categories []Category, accentSensitive bool) (*Taxonomy, error) {
	t := &Taxonomy{
		categories:      make([]compiledCategory, 0, len(categories)),
		source:          cloneCategories(categories),
		accentSensitive: accentSensitive,
	}
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return nil, fmt.Errorf("category %d: empty label", i)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate category label %q", label)
		}
		seen[label] = struct{}{}
		t.categories = append(t.categories, compiledCategory{
			label:    label,
			keywords: compileKeywords(c.Keywords, accentSensitive),
		})
	}
	if len(t.categories) == 0 {
		return nil, errors.New("taxonomy has no categories")
	}
	return t, nil
}

// Categories returns a copy of the categories in priority order.
func (t *Taxonomy) Categories() []Category {
	return cloneCategories(t.source)
}

// Len returns the number of categories.
func (t *Taxonomy) Len() int {
	return len(t.categories)
}

// Match returns the label of the first category whose keywords occur in the
// normalized proof.
func (t *Taxonomy) Match(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	key := matchKey(normalized, t.accentSensitive)
	for _, c := range t.categories {
		for _, kw := range c.keywords {
			if containsKeyword(key, kw) {
				return c.label, true
			}
		}
	}
	return "", false
}

func compileKeywords(words []string, accentSensitive bool) []compiledKeyword {
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(words))
	res := make([]compiledKeyword, 0, len(words))
	for _, w := range words {
		key := matchKey(NormalizeText(w), accentSensitive)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms := strings.Fields(key)
		res = append(res, compiledKeyword{raw: w, terms: terms, set: wordSet(terms)})
	}
	return res
}

// containsKeyword reports whether every term of the keyword occurs in text,
// in keyword order. A contiguous phrase trivially satisfies this.
func containsKeyword(text string, kw compiledKeyword) bool {
	if len(kw.terms) == 0 {
		return false
	}
	rest := text
	for _, term := range kw.terms {
		idx := indexTerm(rest, term)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(term):]
	}
	return true
}

func indexTerm(text, term string) int {
	if useWordBoundary(term) {
		return indexAsWord(text, term)
	}
	return strings.Index(text, term)
}

// useWordBoundary is true for short ASCII acronyms such as FDS or EPI.
func useWordBoundary(kw string) bool {
	if kw == "" {
		return false
	}
	count := 0
	for _, r := range kw {
		if r > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		count++
		if count > 3 {
			return false
		}
	}
	return count > 0
}

func indexAsWord(text, word string) int {
	start := 0
	for start < len(text) {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start
		var before rune
		if idx > 0 {
			before, _ = utf8.DecodeLastRuneInString(text[:idx])
		}
		var after rune
		if end := idx + len(word); end < len(text) {
			after, _ = utf8.DecodeRuneInString(text[end:])
		}
		if !isAlphaNumRune(before) && !isAlphaNumRune(after) {
			return idx
		}
		start = idx + len(word)
	}
	return -1
}

func isAlphaNumRune(r rune) bool {
	if r == 0 || r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func cloneCategories(src []Category) []Category {
	if src == nil {
		return nil
	}
	out := make([]Category, len(src))
	for i, c := range src {
		out[i] = Category{Label: c.Label, Keywords: append([]string(nil), c.Keywords...)}
	}
	return out
}
