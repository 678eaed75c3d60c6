package prooflabel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestVectorEncoding(t *testing.T) {
	t.Parallel()
	vec := []float32{0.25, -1.5, 3}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	require.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 0})
	require.Error(t, err)
	_, err = decodeVector(append(encodeVector(vec), 0))
	require.ErrorContains(t, err, "length mismatch")
}

func TestCacheKey(t *testing.T) {
	t.Parallel()
	require.Equal(t, cacheKey("m", "REGISTRE"), cacheKey("m", "REGISTRE"))
	require.NotEqual(t, cacheKey("m1", "REGISTRE"), cacheKey("m2", "REGISTRE"))
	require.Len(t, cacheKey("m", "x"), 40)
}

func TestDiskCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := NewDiskCache(dir)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "absent")
	require.False(t, ok)

	vec := []float32{1, 2, 3}
	require.NoError(t, c.Put(ctx, "k", vec))
	vec[0] = 9
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, got)

	require.NoError(t, c.Close())
	reopened, err := NewDiskCache(dir)
	require.NoError(t, err)
	got, ok = reopened.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, got)

	mem, err := NewDiskCache("")
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, "k", []float32{1}))
	_, ok = mem.Get(ctx, "k")
	require.True(t, ok)
}

func TestNewVectorCache(t *testing.T) {
	t.Parallel()
	c, err := NewVectorCache(CacheConfig{Kind: CacheNone})
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = NewVectorCache(CacheConfig{Kind: "Disk", Dir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &DiskCache{}, c)

	_, err = NewVectorCache(CacheConfig{Kind: CacheRedis})
	require.ErrorContains(t, err, "empty address")

	c, err = NewVectorCache(CacheConfig{Kind: CacheRedis, RedisAddr: "127.0.0.1:6379"})
	require.NoError(t, err)
	require.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.Close())

	_, err = NewVectorCache(CacheConfig{Kind: "memcached"})
	require.ErrorContains(t, err, "unknown cache kind")
}

func TestRedisCacheUnreachableIsAMiss(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCache(client, "veille:test:", time.Minute)
	defer c.Close()

	ctx := context.Background()
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
	require.ErrorContains(t, c.Put(ctx, "k", []float32{1}), "redis cache put")
}

func TestCachedEmbedOnlyEmbedsMisses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, err := NewDiskCache("")
	require.NoError(t, err)

	var calls [][]string
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		calls = append(calls, append([]string(nil), texts...))
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s))}
		}
		return out, nil
	}
	logger := loggerOrDiscard(nil)

	vecs, err := cachedEmbed(ctx, cache, "m", []string{"AB", "ABC"}, logger, embed)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2}, {3}}, vecs)

	vecs, err = cachedEmbed(ctx, cache, "m", []string{"ABC", "ABCD", "AB"}, logger, embed)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{3}, {4}, {2}}, vecs)
	require.Equal(t, [][]string{{"AB", "ABC"}, {"ABCD"}}, calls)

	_, err = cachedEmbed(ctx, nil, "m", []string{"X"}, logger, func(context.Context, []string) ([][]float32, error) {
		return nil, nil
	})
	require.ErrorContains(t, err, "count mismatch")
}

func newEmbeddingServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/v1/embeddings" || r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp embeddingResponse
		resp.Data = make([]struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}, len(req.Input))
		// Reverse order: clients must sort by index.
		for i, text := range req.Input {
			pos := len(req.Input) - 1 - i
			resp.Data[pos].Index = i
			resp.Data[pos].Embedding = []float32{float32(utf8.RuneCountInString(text)), 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedder(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := newEmbeddingServer(t, &requests)
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	e, err := NewHTTPEmbedder(EmbedderConfig{
		Endpoint:          srv.URL + "/",
		APIKey:            "secret",
		ModelID:           "multilingual",
		BatchSize:         2,
		Concurrency:       2,
		RequestsPerSecond: 100,
	}, cache, nil)
	require.NoError(t, err)
	defer e.Close()
	require.Equal(t, "multilingual", e.ModelID())

	texts := []string{"a", "bb", "  ccc ", "dddd", "eeeee"}
	vecs, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		require.Equal(t, []float32{float32(i + 1), 1}, v)
	}
	require.EqualValues(t, 3, requests.Load())

	vec, err := e.EmbedText(context.Background(), "CCC")
	require.NoError(t, err)
	require.Equal(t, []float32{3, 1}, vec)
	require.EqualValues(t, 3, requests.Load())
}

func TestHTTPEmbedderErrors(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPEmbedder(EmbedderConfig{}, nil, nil)
	require.ErrorContains(t, err, "empty endpoint")

	var requests atomic.Int32
	srv := newEmbeddingServer(t, &requests)
	e, err := NewHTTPEmbedder(EmbedderConfig{Endpoint: srv.URL, APIKey: "wrong"}, nil, nil)
	require.NoError(t, err)
	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	require.ErrorContains(t, err, "status 403")
}

func TestNewEmbedderBackends(t *testing.T) {
	t.Parallel()
	_, err := NewEmbedder(EmbedderConfig{Backend: "tensorflow"}, nil)
	require.ErrorContains(t, err, "unknown embedder backend")

	e, err := NewEmbedder(EmbedderConfig{Backend: EmbedderHTTP, Endpoint: "http://localhost:9/v1/embeddings", Cache: CacheConfig{Kind: CacheNone}}, nil)
	require.NoError(t, err)
	require.IsType(t, &HTTPEmbedder{}, e)
	require.NoError(t, e.Close())

	_, err = NewEmbedder(EmbedderConfig{Backend: EmbedderORT, ModelPath: filepath.Join(t.TempDir(), "missing.onnx")}, nil)
	require.Error(t, err)
}

func TestSemanticStrategyCountMismatch(t *testing.T) {
	t.Parallel()
	s := NewSemanticStrategy(&shortEmbedder{}, SemanticConfig{})
	_, err := s.Mine(context.Background(), []string{"a", "b"})
	require.ErrorContains(t, err, "got 1 vectors for 2 texts")

	failing := NewSemanticStrategy(&fakeEmbedder{err: errors.New("boom")}, SemanticConfig{Threshold: 0.9})
	_, err = failing.Mine(context.Background(), []string{"a"})
	require.ErrorContains(t, err, "embed proofs: boom")
}

type shortEmbedder struct{ fakeEmbedder }

func (s *shortEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}
