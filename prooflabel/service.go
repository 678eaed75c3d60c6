package prooflabel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const truncationMarker = "…"

// Service resolves raw proofs to canonical labels and records human
// arbitration. It is safe for concurrent use.
type Service struct {
	cfgMu   sync.RWMutex
	cfg     Config
	markers map[string]struct{}

	taxonomy *Taxonomy
	buckets  *BucketClassifier
	store    ArbitrationStore
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	ownsStore bool
}

// Option customizes a Service at construction.
type Option func(*Service)

// WithTaxonomy replaces the taxonomy named in the configuration.
func WithTaxonomy(t *Taxonomy) Option { return func(s *Service) { s.taxonomy = t } }

// WithStore injects an arbitration store; the caller keeps ownership.
func WithStore(store ArbitrationStore) Option { return func(s *Service) { s.store = store } }

// WithBuckets replaces the default reporting buckets.
func WithBuckets(b *BucketClassifier) Option { return func(s *Service) { s.buckets = b } }

// WithMetrics sets the instruments resolutions and decisions are counted on.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides the time source used to stamp decisions.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService loads the taxonomy and the arbitration history once.
func NewService(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	s := &Service{
		cfg:    cfg,
		logger: loggerOrDiscard(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.markers = compileMarkers(cfg.EmptyMarkers)
	SetColumnCandidates(cfg.Columns)

	if s.taxonomy == nil {
		t, err := LoadTaxonomy(cfg.TaxonomyPath, cfg.AccentSensitive)
		if err != nil {
			return nil, err
		}
		s.taxonomy = t
	}
	if s.buckets == nil {
		b, err := NewBucketClassifier(nil, "")
		if err != nil {
			return nil, fmt.Errorf("compile buckets: %w", err)
		}
		s.buckets = b
	}
	if s.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		s.metrics = m
	}
	if s.store == nil {
		store, err := OpenArbitrationStore(ctx, cfg.Arbitration, s.logger)
		if err != nil {
			return nil, err
		}
		s.store = store
		s.ownsStore = true
	}
	s.logger.Info("canonicalizer ready",
		"categories", s.taxonomy.Len(),
		"decisions", len(s.store.Decisions()),
	)
	return s, nil
}

// Close releases the arbitration store when the service opened it.
func (s *Service) Close() error {
	if s.ownsStore && s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig replaces the tunable settings. The taxonomy and the store are
// loaded once and are not reopened.
func (s *Service) UpdateConfig(cfg Config) {
	cfg.ApplyDefaults()
	markers := compileMarkers(cfg.EmptyMarkers)
	SetColumnCandidates(cfg.Columns)
	s.cfgMu.Lock()
	s.cfg = cfg
	s.markers = markers
	s.cfgMu.Unlock()
}

// Taxonomy returns the immutable taxonomy in use.
func (s *Service) Taxonomy() *Taxonomy { return s.taxonomy }

// Store returns the arbitration store.
func (s *Service) Store() ArbitrationStore { return s.store }

// Buckets returns the reporting bucket classifier.
func (s *Service) Buckets() *BucketClassifier { return s.buckets }

// Canonicalize resolves one raw proof. It returns false for empty input and
// for placeholder values, which callers must leave untouched.
func (s *Service) Canonicalize(raw, recordID string) (Resolution, bool) {
	res, ok := s.resolve(raw, recordID, true)
	if ok {
		s.metrics.recordResolution(context.Background(), res.Source)
	}
	return res, ok
}

// CanonicalizeAll resolves records in order, skipping no-ops.
func (s *Service) CanonicalizeAll(records []ProofRecord) []Resolution {
	out := make([]Resolution, 0, len(records))
	for _, r := range records {
		if res, ok := s.Canonicalize(r.Proof, r.RecordID); ok {
			out = append(out, res)
		}
	}
	return out
}

// HeuristicLabel resolves a proof without consulting human decisions.
func (s *Service) HeuristicLabel(raw string) (Resolution, bool) {
	return s.resolve(raw, "", false)
}

func (s *Service) resolve(raw, recordID string, useArbitration bool) (Resolution, bool) {
	cfg, markers := s.settings()
	normalized := NormalizeText(raw)
	if normalized == "" {
		return Resolution{}, false
	}
	if _, placeholder := markers[FoldAccents(normalized)]; placeholder {
		return Resolution{}, false
	}
	res := Resolution{RecordID: recordID, Raw: raw, Normalized: normalized}

	switch {
	case useArbitration && s.applyArbitration(&res):
	case s.applyTaxonomy(&res):
	case s.applyFuzzy(&res, cfg.FuzzyThreshold):
	default:
		res.Label = truncateRunes(normalized, cfg.FallbackMaxRunes)
		res.Source = SourceFallback
	}
	res.Bucket = s.buckets.Bucket(res.Label)
	return res, true
}

func (s *Service) applyArbitration(res *Resolution) bool {
	d, ok := s.store.ApprovedFor(res.Raw)
	if !ok {
		return false
	}
	res.Label = d.Canonical
	res.Source = SourceArbitration
	return true
}

func (s *Service) applyTaxonomy(res *Resolution) bool {
	label, ok := s.taxonomy.Match(res.Normalized)
	if !ok {
		return false
	}
	res.Label = label
	res.Source = SourceTaxonomy
	return true
}

func (s *Service) applyFuzzy(res *Resolution, threshold float64) bool {
	m, ok := s.taxonomy.MatchFuzzy(res.Normalized, threshold)
	if !ok {
		return false
	}
	res.Label = m.Label
	res.Source = SourceFuzzy
	res.Score = m.Score
	return true
}

// Approve records that p1 and p2 are the same proof, labelled canonical.
func (s *Service) Approve(ctx context.Context, p1, p2, canonical string) (Decision, error) {
	return s.record(ctx, Decision{
		Verdict:   VerdictApproved,
		ProofA:    strings.TrimSpace(p1),
		ProofB:    strings.TrimSpace(p2),
		Canonical: strings.TrimSpace(canonical),
	})
}

// Reject records that p1 and p2 must stay distinct.
func (s *Service) Reject(ctx context.Context, p1, p2 string) (Decision, error) {
	return s.record(ctx, Decision{
		Verdict: VerdictRejected,
		ProofA:  strings.TrimSpace(p1),
		ProofB:  strings.TrimSpace(p2),
	})
}

func (s *Service) record(ctx context.Context, d Decision) (Decision, error) {
	d.DecidedAt = s.now()
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	if err := s.store.Record(ctx, d); err != nil {
		return Decision{}, fmt.Errorf("record %s decision: %w", d.Verdict, err)
	}
	s.metrics.recordDecision(ctx, d.Verdict)
	s.logger.Info("arbitration recorded", "verdict", d.Verdict, "proofA", d.ProofA, "proofB", d.ProofB, "canonical", d.Canonical)
	return d, nil
}

func (s *Service) settings() (Config, map[string]struct{}) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg, s.markers
}

func compileMarkers(markers []string) map[string]struct{} {
	out := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		if key := FoldAccents(NormalizeText(m)); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + truncationMarker
}
