package prooflabel

import "strings"

// MatchFuzzy returns the category of the (category, keyword) pair with the
// highest Jaccard word overlap, provided that score is strictly above the
// threshold. Ties keep the pair seen first.
func (t *Taxonomy) MatchFuzzy(normalized string, threshold float64) (FuzzyMatch, bool) {
	if normalized == "" {
		return FuzzyMatch{}, false
	}
	words := wordSet(strings.Fields(matchKey(normalized, t.accentSensitive)))
	if len(words) == 0 {
		return FuzzyMatch{}, false
	}
	var best FuzzyMatch
	found := false
	for _, c := range t.categories {
		for _, kw := range c.keywords {
			score := Jaccard(words, kw.set)
			if !found || score > best.Score {
				best = FuzzyMatch{Label: c.label, Keyword: kw.raw, Score: score}
				found = true
			}
		}
	}
	if !found || best.Score <= threshold {
		return FuzzyMatch{}, false
	}
	return best, true
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score zero.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
