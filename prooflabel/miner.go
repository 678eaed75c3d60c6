package prooflabel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Built-in strategy names.
const (
	StrategyLexical  = "lexical"
	StrategySemantic = "semantic"
)

var (
	// ErrMinerBusy is returned when Run is called while another run is in progress.
	ErrMinerBusy = errors.New("miner is already running")
	// ErrUnknownStrategy is returned when a configured strategy is not registered.
	ErrUnknownStrategy = errors.New("unknown mining strategy")
)

// Strategy finds candidate duplicate pairs in a population of proofs.
type Strategy interface {
	Name() string
	Mine(ctx context.Context, texts []string) (StrategyResult, error)
}

// StrategyResult is what a strategy found. Clusters is set by strategies that
// partition the input.
type StrategyResult struct {
	Pairs    []ScoredPair
	Clusters *ClusterReport
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// NewDefaultRegistry registers the lexical and semantic strategies. The
// embedder may be nil.
func NewDefaultRegistry(cfg MinerConfig, embedder Embedder) *Registry {
	r := NewRegistry()
	r.Register(NewLexicalStrategy(cfg.Lexical))
	r.Register(NewSemanticStrategy(embedder, cfg.Semantic))
	return r
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(s Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[s.Name()] = s
}

// Resolve returns a strategy by name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if s, ok := r.strategies[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// Names lists the registered strategies in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diagnostic records a strategy that could not contribute to a run.
type Diagnostic struct {
	Strategy string `json:"strategy"`
	Message  string `json:"message"`
}

// RunParams are the settings a run was made with.
type RunParams struct {
	Strategies        []string `json:"strategies"`
	NgramMin          int      `json:"ngram_min"`
	NgramMax          int      `json:"ngram_max"`
	DistanceThreshold float64  `json:"distance_threshold"`
	SemanticThreshold float64  `json:"semantic_threshold"`
	IDF               bool     `json:"idf"`
	ModelID           string   `json:"model_id,omitempty"`
	KeepArbitrated    bool     `json:"keep_arbitrated"`
}

// RunMetrics are the headline numbers of a run.
type RunMetrics struct {
	InputSize           int     `json:"input_size"`
	NClusters           int     `json:"n_clusters"`
	ReductionRate       float64 `json:"reduction_rate"`
	FusionsDetected     int     `json:"fusions_detected"`
	Proposals           int     `json:"proposals"`
	NewFusionsSuggested int     `json:"new_fusions_suggested"`
	SkippedArbitrated   int     `json:"skipped_arbitrated"`
}

// MiningRun is the record of one miner execution.
type MiningRun struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	InputCount  int             `json:"inputCount"`
	Params      RunParams       `json:"params"`
	Metrics     RunMetrics      `json:"metrics"`
	Clusters    *ClusterReport  `json:"clusters,omitempty"`
	Proposals   []MergeProposal `json:"proposals"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
}

// Miner runs the configured strategies over the whole proof population and
// turns their pairs into merge proposals. It only reads the arbitration store.
type Miner struct {
	mu       sync.Mutex
	cfg      MinerConfig
	modelID  string
	registry *Registry
	svc      *Service
	logger   *slog.Logger
}

// NewMiner wires a miner to the service whose heuristics and decisions it
// consults.
func NewMiner(cfg MinerConfig, modelID string, registry *Registry, svc *Service, logger *slog.Logger) *Miner {
	return &Miner{
		cfg:      cfg,
		modelID:  modelID,
		registry: registry,
		svc:      svc,
		logger:   loggerOrDiscard(logger),
	}
}

// Run mines proofs. A second call while one is running fails with
// ErrMinerBusy. Strategy failures are kept as diagnostics; only context
// cancellation aborts the run.
func (m *Miner) Run(ctx context.Context, proofs []string) (*MiningRun, error) {
	if !m.mu.TryLock() {
		return nil, ErrMinerBusy
	}
	defer m.mu.Unlock()

	started := time.Now()
	texts := m.prepare(proofs)
	run := &MiningRun{
		ID:         uuid.NewString(),
		StartedAt:  started,
		InputCount: len(texts),
		Params: RunParams{
			Strategies:        append([]string(nil), m.cfg.Strategies...),
			NgramMin:          m.cfg.Lexical.MinN,
			NgramMax:          m.cfg.Lexical.MaxN,
			DistanceThreshold: m.cfg.Lexical.DistanceThreshold,
			SemanticThreshold: m.cfg.Semantic.Threshold,
			IDF:               m.cfg.Lexical.IDF,
			ModelID:           m.modelID,
			KeepArbitrated:    m.cfg.KeepArbitrated,
		},
	}
	m.logger.Info("miner started", "run", run.ID, "proofs", len(texts), "strategies", strings.Join(m.cfg.Strategies, ","))

	labels := make(map[string]string, len(texts))
	for _, t := range texts {
		if res, ok := m.svc.HeuristicLabel(t); ok {
			labels[t] = res.Label
		}
	}

	collected := make(map[[2]string]*MergeProposal)
	for _, name := range m.cfg.Strategies {
		if err := ctx.Err(); err != nil {
			m.svc.metrics.recordMinerRun(ctx, time.Since(started), "cancelled")
			return nil, err
		}
		strategy, err := m.registry.Resolve(name)
		if err != nil {
			run.Diagnostics = append(run.Diagnostics, Diagnostic{Strategy: name, Message: err.Error()})
			m.logger.Warn("strategy skipped", "strategy", name, "error", err)
			continue
		}
		res, err := strategy.Mine(ctx, texts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				m.svc.metrics.recordMinerRun(ctx, time.Since(started), "cancelled")
				return nil, ctxErr
			}
			run.Diagnostics = append(run.Diagnostics, Diagnostic{Strategy: name, Message: err.Error()})
			m.logger.Warn("strategy failed", "strategy", name, "error", err)
			continue
		}
		if res.Clusters != nil && run.Clusters == nil {
			run.Clusters = res.Clusters
		}
		m.logger.Debug("strategy done", "strategy", name, "pairs", len(res.Pairs))
		for _, p := range res.Pairs {
			addProposal(collected, p, name, labels)
		}
	}

	proposals := make([]MergeProposal, 0, len(collected))
	for _, p := range collected {
		if !m.cfg.KeepArbitrated {
			if _, decided := m.svc.store.Lookup(p.ProofA, p.ProofB); decided {
				run.Metrics.SkippedArbitrated++
				continue
			}
		}
		proposals = append(proposals, *p)
	}
	sortProposals(proposals)
	run.Proposals = proposals
	run.FinishedAt = time.Now()
	run.Metrics = summarize(run, len(texts))

	m.svc.metrics.recordProposals(ctx, proposals)
	m.svc.metrics.recordMinerRun(ctx, run.FinishedAt.Sub(started), "ok")
	m.logger.Info("miner finished",
		"run", run.ID,
		"proposals", len(proposals),
		"new", run.Metrics.NewFusionsSuggested,
		"diagnostics", len(run.Diagnostics),
		"elapsed", run.FinishedAt.Sub(started).Round(time.Millisecond),
	)
	return run, nil
}

// prepare dedupes exact strings, drops empty and placeholder proofs, and sorts.
func (m *Miner) prepare(proofs []string) []string {
	seen := make(map[string]struct{}, len(proofs))
	out := make([]string, 0, len(proofs))
	for _, p := range proofs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, ok := m.svc.HeuristicLabel(p); !ok {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func addProposal(collected map[[2]string]*MergeProposal, p ScoredPair, strategy string, labels map[string]string) {
	a, b := p.A, p.B
	if a == b {
		return
	}
	if b < a {
		a, b = b, a
	}
	key := [2]string{a, b}
	if existing, ok := collected[key]; ok {
		if p.Similarity > existing.Similarity {
			existing.Similarity = p.Similarity
		}
		for _, s := range existing.Strategies {
			if s == strategy {
				return
			}
		}
		existing.Strategies = append(existing.Strategies, strategy)
		return
	}
	la, lb := labels[a], labels[b]
	// The shorter label wins; on equal length the second one.
	suggested := lb
	if utf8.RuneCountInString(la) < utf8.RuneCountInString(lb) {
		suggested = la
	}
	collected[key] = &MergeProposal{
		ProofA:             a,
		ProofB:             b,
		Similarity:         p.Similarity,
		AlreadyCovered:     la != "" && la == lb,
		SuggestedCanonical: suggested,
		Strategies:         []string{strategy},
	}
}

func sortProposals(ps []MergeProposal) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Similarity != ps[j].Similarity {
			return ps[i].Similarity > ps[j].Similarity
		}
		if ps[i].ProofA != ps[j].ProofA {
			return ps[i].ProofA < ps[j].ProofA
		}
		return ps[i].ProofB < ps[j].ProofB
	})
}

func summarize(run *MiningRun, inputSize int) RunMetrics {
	metrics := RunMetrics{
		InputSize:         inputSize,
		NClusters:         inputSize,
		Proposals:         len(run.Proposals),
		SkippedArbitrated: run.Metrics.SkippedArbitrated,
	}
	if run.Clusters != nil {
		metrics.NClusters = run.Clusters.ClusterCount
		metrics.ReductionRate = run.Clusters.ReductionRatio
		metrics.FusionsDetected = run.Clusters.FusionsDetected
	}
	for _, p := range run.Proposals {
		if !p.AlreadyCovered {
			metrics.NewFusionsSuggested++
		}
	}
	return metrics
}
