package prooflabel

import (
	"math"
	"sort"
	"sync"
)

// VectorItem is one embedded proof.
type VectorItem struct {
	Text   string
	Vector []float32
}

// ScoredPair is two distinct proofs and how similar a strategy judged them.
type ScoredPair struct {
	A          string
	B          string
	Similarity float64
}

// InMemoryIndex is a brute-force vector index with cosine similarity.
type InMemoryIndex struct {
	mu    sync.RWMutex
	items []VectorItem
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{}
}

// Replace swaps the stored items atomically.
func (idx *InMemoryIndex) Replace(items []VectorItem) {
	cloned := make([]VectorItem, len(items))
	for i, it := range items {
		cloned[i] = VectorItem{Text: it.Text, Vector: cloneVector(it.Vector)}
	}
	idx.mu.Lock()
	idx.items = cloned
	idx.mu.Unlock()
}

// Size returns the current number of vectors stored.
func (idx *InMemoryIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// PairsAbove compares every stored item with every other one and returns the
// pairs whose cosine similarity is at least threshold, most similar first.
func (idx *InMemoryIndex) PairsAbove(threshold float64) []ScoredPair {
	idx.mu.RLock()
	items := idx.items
	idx.mu.RUnlock()

	var pairs []ScoredPair
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			sim := cosineSimilarity(items[i].Vector, items[j].Vector)
			if sim >= threshold {
				pairs = append(pairs, ScoredPair{A: items[i].Text, B: items[j].Text, Similarity: sim})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
