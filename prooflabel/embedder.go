package prooflabel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Antho-TB/veille/emb"
)

// Embedder exposes the minimal surface required by the semantic strategy.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
	ModelID() string
}

// NewEmbedder builds the backend named in cfg together with its cache.
func NewEmbedder(cfg EmbedderConfig, logger *slog.Logger) (Embedder, error) {
	cache, err := NewVectorCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	var e Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", EmbedderORT:
		e, err = NewOrtEmbedder(cfg, cache, logger)
	case EmbedderHTTP:
		e, err = NewHTTPEmbedder(cfg, cache, logger)
	default:
		err = fmt.Errorf("unknown embedder backend %q", cfg.Backend)
	}
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}
	return e, nil
}

// OrtEmbedder is a thin wrapper over emb.Encoder with caching.
type OrtEmbedder struct {
	mu      sync.RWMutex
	enc     *emb.Encoder
	modelID string
	cache   VectorCache
	logger  *slog.Logger
}

var _ Embedder = (*OrtEmbedder)(nil)

// NewOrtEmbedder initializes the encoder. cache may be nil.
func NewOrtEmbedder(cfg EmbedderConfig, cache VectorCache, logger *slog.Logger) (*OrtEmbedder, error) {
	modelID := cfg.ModelID
	if modelID == "" && cfg.ModelPath != "" {
		modelID = filepath.Base(cfg.ModelPath)
	}
	encoder := &emb.Encoder{}
	if err := encoder.Init(emb.Config{
		OrtDLL:        cfg.OrtDLL,
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		MaxSeqLen:     cfg.MaxSeqLen,
	}); err != nil {
		return nil, err
	}
	return &OrtEmbedder{
		enc:     encoder,
		modelID: modelID,
		cache:   cache,
		logger:  loggerOrDiscard(logger),
	}, nil
}

// Close releases ORT resources and the cache.
func (o *OrtEmbedder) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enc != nil {
		o.enc.Close()
		o.enc = nil
	}
	if o.cache != nil {
		err := o.cache.Close()
		o.cache = nil
		return err
	}
	return nil
}

// ModelID returns the identifier used for cache keys.
func (o *OrtEmbedder) ModelID() string { return o.modelID }

// EmbedText embeds a single string.
func (o *OrtEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts sequentially, checking ctx between texts.
func (o *OrtEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.enc == nil {
		return nil, errors.New("embedder is not initialized")
	}
	return cachedEmbed(ctx, o.cache, o.modelID, NormalizeAll(texts), o.logger, func(ctx context.Context, batch []string) ([][]float32, error) {
		out := make([][]float32, len(batch))
		for i, t := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vec, err := o.enc.Encode(t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	})
}
