package prooflabel

import (
	"encoding/json"
	"time"
)

// Source identifies which layer produced a canonical label.
type Source string

const (
	// SourceArbitration means an approved human decision overrode the heuristics.
	SourceArbitration Source = "arbitration"
	// SourceTaxonomy means a taxonomy keyword was found in the proof.
	SourceTaxonomy Source = "taxonomy"
	// SourceFuzzy means the word-overlap fallback matched a taxonomy keyword.
	SourceFuzzy Source = "fuzzy"
	// SourceFallback means nothing matched and the proof itself was kept.
	SourceFallback Source = "fallback"
)

// Arbitration backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Embedder backends and cache kinds.
const (
	EmbedderORT  = "ort"
	EmbedderHTTP = "http"

	CacheNone  = "none"
	CacheDisk  = "disk"
	CacheRedis = "redis"
)

// ProofRecord is one raw proof as read from the record store.
type ProofRecord struct {
	RecordID string `json:"recordId,omitempty"`
	Proof    string `json:"proof"`
}

// Resolution is the outcome of canonicalizing one raw proof.
type Resolution struct {
	RecordID   string  `json:"recordId,omitempty"`
	Raw        string  `json:"raw"`
	Normalized string  `json:"normalized"`
	Label      string  `json:"label"`
	Source     Source  `json:"source"`
	Score      float64 `json:"score,omitempty"`
	Bucket     string  `json:"bucket"`
}

// MergeProposal is a candidate pair produced by the miner for human review.
type MergeProposal struct {
	ProofA             string   `json:"proofA"`
	ProofB             string   `json:"proofB"`
	Similarity         float64  `json:"similarity"`
	AlreadyCovered     bool     `json:"alreadyCovered"`
	SuggestedCanonical string   `json:"suggestedCanonical"`
	Strategies         []string `json:"strategies,omitempty"`
}

// ArbitrationConfig selects and locates the decision store.
type ArbitrationConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LexicalConfig controls the n-gram clustering strategy.
type LexicalConfig struct {
	MinN              int     `json:"minN" yaml:"minN"`
	MaxN              int     `json:"maxN" yaml:"maxN"`
	MinTokenRunes     int     `json:"minTokenRunes" yaml:"minTokenRunes"`
	DistanceThreshold float64 `json:"distanceThreshold" yaml:"distanceThreshold"`
	IDF               bool    `json:"idf" yaml:"idf"`
}

// SemanticConfig controls the embedding similarity strategy.
type SemanticConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// MinerConfig groups the offline miner settings.
type MinerConfig struct {
	Strategies     []string       `json:"strategies" yaml:"strategies"`
	Lexical        LexicalConfig  `json:"lexical" yaml:"lexical"`
	Semantic       SemanticConfig `json:"semantic" yaml:"semantic"`
	KeepArbitrated bool           `json:"keepArbitrated" yaml:"keepArbitrated"`
	IncludeCovered bool           `json:"includeCovered" yaml:"includeCovered"`
	OutputDir      string         `json:"outputDir" yaml:"outputDir"`
}

// CacheConfig selects where embedding vectors are cached.
type CacheConfig struct {
	Kind        string        `json:"kind" yaml:"kind"`
	Dir         string        `json:"dir" yaml:"dir"`
	RedisAddr   string        `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	RedisPrefix string        `json:"redisPrefix,omitempty" yaml:"redisPrefix,omitempty"`
	TTL         time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// EmbedderConfig wraps the configuration for the embedding backends and cache.
type EmbedderConfig struct {
	Backend           string        `json:"backend" yaml:"backend"`
	OrtDLL            string        `json:"ortDll" yaml:"ortDll"`
	ModelPath         string        `json:"modelPath" yaml:"modelPath"`
	TokenizerPath     string        `json:"tokenizerPath" yaml:"tokenizerPath"`
	MaxSeqLen         int           `json:"maxSeqLen" yaml:"maxSeqLen"`
	ModelID           string        `json:"modelId" yaml:"modelId"`
	Endpoint          string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey            string        `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BatchSize         int           `json:"batchSize" yaml:"batchSize"`
	Concurrency       int           `json:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64       `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	Cache             CacheConfig   `json:"cache" yaml:"cache"`
}

// Config aggregates runtime settings persisted to config.json or config.yaml.
type Config struct {
	LogLevel         string            `json:"logLevel" yaml:"logLevel"`
	TaxonomyPath     string            `json:"taxonomyPath,omitempty" yaml:"taxonomyPath,omitempty"`
	FuzzyThreshold   float64           `json:"fuzzyThreshold" yaml:"fuzzyThreshold"`
	FallbackMaxRunes int               `json:"fallbackMaxRunes" yaml:"fallbackMaxRunes"`
	AccentSensitive  bool              `json:"accentSensitive" yaml:"accentSensitive"`
	EmptyMarkers     []string          `json:"emptyMarkers" yaml:"emptyMarkers"`
	ReportTopN       int               `json:"reportTopN" yaml:"reportTopN"`
	Arbitration      ArbitrationConfig `json:"arbitration" yaml:"arbitration"`
	Miner            MinerConfig       `json:"miner" yaml:"miner"`
	Embedder         EmbedderConfig    `json:"embedder" yaml:"embedder"`
	// Columns overrides the header names tried when detecting input columns.
	Columns ColumnCandidates `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FuzzyThreshold == 0 {
		c.FuzzyThreshold = 0.4
	}
	if c.FallbackMaxRunes <= 0 {
		c.FallbackMaxRunes = 60
	}
	if c.EmptyMarkers == nil {
		c.EmptyMarkers = []string{"NAN", "NONE", "N/A", "NON SPÉCIFIÉE", "NON SPÉCIFIÉE (ANALYSE REQUISE)"}
	}
	if c.ReportTopN <= 0 {
		c.ReportTopN = 12
	}
	if c.Arbitration.Backend == "" {
		c.Arbitration.Backend = BackendFile
	}
	if c.Arbitration.Path == "" && c.Arbitration.Backend == BackendFile {
		c.Arbitration.Path = "data/arbitrage_decisions.json"
	}
	if len(c.Miner.Strategies) == 0 {
		c.Miner.Strategies = []string{StrategyLexical, StrategySemantic}
	}
	if c.Miner.Lexical.MinN <= 0 {
		c.Miner.Lexical.MinN = 1
	}
	if c.Miner.Lexical.MaxN < c.Miner.Lexical.MinN {
		c.Miner.Lexical.MaxN = 3
		if c.Miner.Lexical.MaxN < c.Miner.Lexical.MinN {
			c.Miner.Lexical.MaxN = c.Miner.Lexical.MinN
		}
	}
	if c.Miner.Lexical.MinTokenRunes <= 0 {
		c.Miner.Lexical.MinTokenRunes = 2
	}
	if c.Miner.Lexical.DistanceThreshold == 0 {
		c.Miner.Lexical.DistanceThreshold = 0.5
	}
	if c.Miner.Semantic.Threshold == 0 {
		c.Miner.Semantic.Threshold = 0.85
	}
	if c.Miner.OutputDir == "" {
		c.Miner.OutputDir = "csv"
	}
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = EmbedderORT
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 128
	}
	if c.Embedder.ModelID == "" {
		c.Embedder.ModelID = "paraphrase-multilingual-MiniLM-L12-v2"
	}
	if c.Embedder.BatchSize <= 0 {
		c.Embedder.BatchSize = 32
	}
	if c.Embedder.Concurrency <= 0 {
		c.Embedder.Concurrency = 4
	}
	if c.Embedder.RequestsPerSecond <= 0 {
		c.Embedder.RequestsPerSecond = 5
	}
	if c.Embedder.Timeout <= 0 {
		c.Embedder.Timeout = 30 * time.Second
	}
	if c.Embedder.Cache.Kind == "" {
		c.Embedder.Cache.Kind = CacheDisk
	}
	if c.Embedder.Cache.Dir == "" && c.Embedder.Cache.Kind == CacheDisk {
		c.Embedder.Cache.Dir = "cache"
	}
	if c.Embedder.Cache.RedisPrefix == "" {
		c.Embedder.Cache.RedisPrefix = "veille:emb:"
	}
}
