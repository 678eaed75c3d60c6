package prooflabel

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoEmbedder is returned by the semantic strategy when no model is wired.
var ErrNoEmbedder = errors.New("no embedder configured")

// SemanticStrategy pairs proofs whose sentence embeddings are close.
type SemanticStrategy struct {
	embedder  Embedder
	threshold float64
}

var _ Strategy = (*SemanticStrategy)(nil)

// NewSemanticStrategy returns the embedding strategy. A nil embedder makes
// every run fail, which the miner reports as a diagnostic.
func NewSemanticStrategy(embedder Embedder, cfg SemanticConfig) *SemanticStrategy {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.85
	}
	return &SemanticStrategy{embedder: embedder, threshold: threshold}
}

// Name implements Strategy.
func (s *SemanticStrategy) Name() string { return StrategySemantic }

// Mine embeds every text and returns the pairs at or above the threshold.
func (s *SemanticStrategy) Mine(ctx context.Context, texts []string) (StrategyResult, error) {
	if s.embedder == nil {
		return StrategyResult{}, ErrNoEmbedder
	}
	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return StrategyResult{}, fmt.Errorf("embed proofs: %w", err)
	}
	if len(vecs) != len(texts) {
		return StrategyResult{}, fmt.Errorf("embed proofs: got %d vectors for %d texts", len(vecs), len(texts))
	}
	items := make([]VectorItem, len(texts))
	for i, t := range texts {
		items[i] = VectorItem{Text: t, Vector: vecs[i]}
	}
	idx := NewInMemoryIndex()
	idx.Replace(items)
	return StrategyResult{Pairs: idx.PairsAbove(s.threshold)}, nil
}
