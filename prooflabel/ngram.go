package prooflabel

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// sparseVector holds term ids in ascending order with their weights.
type sparseVector struct {
	ids  []int
	vals []float64
}

func (v sparseVector) empty() bool { return len(v.ids) == 0 }

type ngramVectorizer struct {
	minN     int
	maxN     int
	minRunes int
	idf      bool
}

func newNgramVectorizer(cfg LexicalConfig) ngramVectorizer {
	v := ngramVectorizer{minN: cfg.MinN, maxN: cfg.MaxN, minRunes: cfg.MinTokenRunes, idf: cfg.IDF}
	if v.minN <= 0 {
		v.minN = 1
	}
	if v.maxN < v.minN {
		v.maxN = v.minN
	}
	if v.minRunes <= 0 {
		v.minRunes = 1
	}
	return v
}

// tokens splits the folded normalized text on anything that is not a letter
// or a digit and drops short tokens.
func (v ngramVectorizer) tokens(text string) []string {
	key := FoldAccents(NormalizeText(text))
	fields := strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= v.minRunes {
			out = append(out, f)
		}
	}
	return out
}

func (v ngramVectorizer) ngrams(tokens []string) []string {
	var out []string
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// fitTransform builds the vocabulary over texts and returns one L2-normalized
// term-frequency vector per text.
func (v ngramVectorizer) fitTransform(texts []string) []sparseVector {
	vocab := make(map[string]int)
	counts := make([]map[int]float64, len(texts))
	df := make(map[int]int)
	for i, text := range texts {
		tf := make(map[int]float64)
		for _, g := range v.ngrams(v.tokens(text)) {
			id, ok := vocab[g]
			if !ok {
				id = len(vocab)
				vocab[g] = id
			}
			tf[id]++
		}
		for id := range tf {
			df[id]++
		}
		counts[i] = tf
	}
	n := float64(len(texts))
	out := make([]sparseVector, len(texts))
	for i, tf := range counts {
		vec := sparseVector{ids: make([]int, 0, len(tf)), vals: make([]float64, 0, len(tf))}
		for id := range tf {
			vec.ids = append(vec.ids, id)
		}
		sort.Ints(vec.ids)
		var norm float64
		for _, id := range vec.ids {
			w := tf[id]
			if v.idf {
				w *= math.Log((1+n)/(1+float64(df[id]))) + 1
			}
			vec.vals = append(vec.vals, w)
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range vec.vals {
				vec.vals[k] /= norm
			}
		}
		out[i] = vec
	}
	return out
}

// sparseCosine assumes both vectors are L2-normalized.
func sparseCosine(a, b sparseVector) float64 {
	if a.empty() || b.empty() {
		return 0
	}
	var dot float64
	i, j := 0, 0
	for i < len(a.ids) && j < len(b.ids) {
		switch {
		case a.ids[i] == b.ids[j]:
			dot += a.vals[i] * b.vals[j]
			i++
			j++
		case a.ids[i] < b.ids[j]:
			i++
		default:
			j++
		}
	}
	return dot
}

// cosineDistances returns the full symmetric distance matrix 1 - cos. Empty
// vectors are at distance 1 from everything, themselves included.
func cosineDistances(vecs []sparseVector) [][]float64 {
	n := len(vecs)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if vecs[i].empty() {
			d[i][i] = 1
		}
		for j := i + 1; j < n; j++ {
			dist := 1 - sparseCosine(vecs[i], vecs[j])
			if dist < 0 {
				dist = 0
			}
			d[i][j] = dist
			d[j][i] = dist
		}
	}
	return d
}
