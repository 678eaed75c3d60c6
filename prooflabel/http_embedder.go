package prooflabel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint. Texts are
// sent in batches, several in flight, paced by a rate limiter.
type HTTPEmbedder struct {
	endpoint    string
	apiKey      string
	modelID     string
	batchSize   int
	concurrency int
	client      *http.Client
	limiter     *rate.Limiter
	cache       VectorCache
	logger      *slog.Logger
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder validates cfg and builds the client. cache may be nil.
func NewHTTPEmbedder(cfg EmbedderConfig, cache VectorCache, logger *slog.Logger) (*HTTPEmbedder, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("http embedder: empty endpoint")
	}
	if !strings.HasSuffix(endpoint, "/embeddings") {
		endpoint += "/v1/embeddings"
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 1
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		modelID:     cfg.ModelID,
		batchSize:   batch,
		concurrency: conc,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), conc),
		cache:       cache,
		logger:      loggerOrDiscard(logger),
	}, nil
}

// ModelID returns the model name sent with each request.
func (h *HTTPEmbedder) ModelID() string { return h.modelID }

// Close releases the cache.
func (h *HTTPEmbedder) Close() error {
	h.client.CloseIdleConnections()
	if h.cache != nil {
		return h.cache.Close()
	}
	return nil
}

// EmbedText embeds a single string.
func (h *HTTPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts, serving cached vectors without a request.
func (h *HTTPEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return cachedEmbed(ctx, h.cache, h.modelID, NormalizeAll(texts), h.logger, h.embedBatched)
}

func (h *HTTPEmbedder) embedBatched(ctx context.Context, docs []string) ([][]float32, error) {
	out := make([][]float32, len(docs))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(h.concurrency)
	for start := 0; start < len(docs); start += h.batchSize {
		start := start
		end := start + h.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		eg.Go(func() error {
			if err := h.limiter.Wait(egctx); err != nil {
				return err
			}
			v, err := h.request(egctx, docs[start:end])
			if err != nil {
				return err
			}
			if len(v) != end-start {
				return fmt.Errorf("http embedder: embedding count mismatch (got %d want %d)", len(v), end-start)
			}
			copy(out[start:end], v)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (h *HTTPEmbedder) request(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: h.modelID, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("http embedder: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http embedder: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http embedder: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("http embedder: decode response: %w", err)
	}
	sort.SliceStable(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
