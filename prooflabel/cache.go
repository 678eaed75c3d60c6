package prooflabel

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// VectorCache stores embeddings by cache key.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vec []float32) error
	Close() error
}

// NewVectorCache builds the cache selected in cfg. Kind "none" returns nil.
func NewVectorCache(cfg CacheConfig) (VectorCache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", CacheNone:
		return nil, nil
	case CacheDisk:
		return NewDiskCache(cfg.Dir)
	case CacheRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, errors.New("redis cache: empty address")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisCache(client, cfg.RedisPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
	}
}

func cacheKey(modelID, text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

// encodeVector writes a little-endian length prefix followed by the floats.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, errors.New("cached vector too small")
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != length*4 {
		return nil, fmt.Errorf("cached vector length mismatch: header %d, payload %d bytes", length, len(data))
	}
	vec := make([]float32, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

// DiskCache keeps vectors in memory and mirrors them to <dir>/<key>.bin.
type DiskCache struct {
	dir string
	mu  sync.RWMutex
	mem map[string][]float32
}

var _ VectorCache = (*DiskCache)(nil)

// NewDiskCache prepares the cache directory. An empty dir keeps vectors in
// memory only.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &DiskCache{dir: dir, mem: make(map[string][]float32)}, nil
}

// Get returns a copy of the cached vector.
func (c *DiskCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.RLock()
	vec, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return cloneVector(vec), true
	}
	if c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, key+".bin"))
	if err != nil {
		return nil, false
	}
	vec, err = decodeVector(data)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.mem[key] = vec
	c.mu.Unlock()
	return cloneVector(vec), true
}

// Put stores vec in memory and on disk.
func (c *DiskCache) Put(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	c.mem[key] = cloneVector(vec)
	c.mu.Unlock()
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encodeVector(vec), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close drops the in-memory copies.
func (c *DiskCache) Close() error {
	c.mu.Lock()
	c.mem = make(map[string][]float32)
	c.mu.Unlock()
	return nil
}

// RedisCache shares vectors between machines through Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ VectorCache = (*RedisCache)(nil)

// NewRedisCache wraps a client. A zero ttl keeps entries forever.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the vector stored under key, if any.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Put stores vec under key.
func (c *RedisCache) Put(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache put: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// cachedEmbed resolves texts through cache, embedding only the misses with
// embed. Cache write failures are logged and otherwise ignored.
func cachedEmbed(ctx context.Context, cache VectorCache, modelID string, texts []string, logger *slog.Logger,
	embed func(ctx context.Context, texts []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, t := range texts {
		keys[i] = cacheKey(modelID, t)
		if cache != nil {
			if vec, ok := cache.Get(ctx, keys[i]); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	batch := make([]string, len(missing))
	for k, i := range missing {
		batch[k] = texts[i]
	}
	vecs, err := embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch (got %d want %d)", len(vecs), len(batch))
	}
	for k, i := range missing {
		out[i] = vecs[k]
		if cache != nil {
			if err := cache.Put(ctx, keys[i], vecs[k]); err != nil {
				logger.Warn("embedding cache write failed", "error", err)
			}
		}
	}
	return out, nil
}
