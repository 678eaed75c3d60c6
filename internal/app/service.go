package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Antho-TB/veille/prooflabel"
)

var errNoRow = errors.New("no proposal selected")

// Service backs the review window: it runs the miner, keeps the proposal
// rows and forwards approve/reject to the canonicalizer.
type Service struct {
	// runMu is held for a whole mining run; config changes wait for it.
	runMu   sync.Mutex
	mu      sync.RWMutex
	cfgPath string
	cfg     prooflabel.Config
	core    *prooflabel.Service
	logger  *slog.Logger

	embedOnce   sync.Once
	embedder    prooflabel.Embedder
	newEmbedder func(prooflabel.EmbedderConfig, *slog.Logger) (prooflabel.Embedder, error)
	miner       *prooflabel.Miner

	rows    []ProposalRow
	lastRun *prooflabel.MiningRun
}

// NewService opens the canonicalizer. cfgPath is where settings changes are
// saved; empty disables saving.
func NewService(ctx context.Context, cfgPath string, cfg prooflabel.Config, logger *slog.Logger, opts ...prooflabel.Option) (*Service, error) {
	cfg.ApplyDefaults()
	core, err := prooflabel.NewService(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfgPath:     cfgPath,
		cfg:         cfg,
		core:        core,
		logger:      logger,
		newEmbedder: prooflabel.NewEmbedder,
	}, nil
}

func (s *Service) Close() {
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	if err := s.core.Close(); err != nil && s.logger != nil {
		s.logger.Warn("close canonicalizer", "error", err)
	}
}

func (s *Service) Config() prooflabel.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig applies cfg to the canonicalizer and the next miner run, and
// saves it when a config path is known. It fails with ErrMinerBusy while a run
// is in progress. A changed embedder configuration reloads the embedder.
func (s *Service) UpdateConfig(cfg prooflabel.Config) (prooflabel.Config, error) {
	if !s.runMu.TryLock() {
		return s.Config(), prooflabel.ErrMinerBusy
	}
	defer s.runMu.Unlock()

	cfg.ApplyDefaults()
	s.core.UpdateConfig(cfg)
	s.mu.Lock()
	if cfg.Embedder != s.cfg.Embedder {
		if s.embedder != nil {
			_ = s.embedder.Close()
		}
		s.embedder = nil
		s.embedOnce = sync.Once{}
	}
	s.cfg = cfg
	s.miner = nil
	s.mu.Unlock()
	if s.cfgPath == "" {
		return cfg, nil
	}
	if err := prooflabel.SaveConfig(s.cfgPath, cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	return cfg, nil
}

// DecisionCount reports how many decisions the store holds.
func (s *Service) DecisionCount() int {
	return len(s.core.Store().Decisions())
}

// Preview canonicalizes a single proof.
func (s *Service) Preview(raw string) (prooflabel.Resolution, bool) {
	return s.core.Canonicalize(raw, "")
}

// Mine runs the miner over proofs and replaces the review rows with its
// proposals.
func (s *Service) Mine(ctx context.Context, proofs []string) (*prooflabel.MiningRun, error) {
	if !s.runMu.TryLock() {
		return nil, prooflabel.ErrMinerBusy
	}
	defer s.runMu.Unlock()
	miner := s.currentMiner()
	run, err := miner.Run(ctx, proofs)
	if err != nil {
		return nil, err
	}
	cfg := s.Config()
	rows := make([]ProposalRow, 0, len(run.Proposals))
	for _, p := range run.Proposals {
		if p.AlreadyCovered && !cfg.Miner.IncludeCovered {
			continue
		}
		rows = append(rows, ProposalRow{Proposal: p, Canonical: p.SuggestedCanonical})
	}
	s.mu.Lock()
	s.rows = rows
	s.lastRun = run
	s.mu.Unlock()
	return run, nil
}

func (s *Service) currentMiner() *prooflabel.Miner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.miner != nil {
		return s.miner
	}
	embedder := s.loadEmbedder()
	modelID := ""
	if embedder != nil {
		modelID = embedder.ModelID()
	}
	registry := prooflabel.NewDefaultRegistry(s.cfg.Miner, embedder)
	s.miner = prooflabel.NewMiner(s.cfg.Miner, modelID, registry, s.core, s.logger)
	return s.miner
}

// loadEmbedder initializes the embedder on first use. A failure leaves it nil
// and the semantic strategy reports it as a diagnostic.
func (s *Service) loadEmbedder() prooflabel.Embedder {
	wantSemantic := false
	for _, name := range s.cfg.Miner.Strategies {
		if name == prooflabel.StrategySemantic {
			wantSemantic = true
		}
	}
	if !wantSemantic {
		return s.embedder
	}
	s.embedOnce.Do(func() {
		e, err := s.newEmbedder(s.cfg.Embedder, s.logger)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("embedder unavailable", "error", err)
			}
			return
		}
		s.embedder = e
	})
	return s.embedder
}

// LoadProposals replaces the review rows with a proposals table written by
// the miner. Pairs that already have a decision are marked accordingly.
func (s *Service) LoadProposals(r io.Reader) (int, error) {
	proposals, err := prooflabel.ReadProposalsCSV(r)
	if err != nil {
		return 0, err
	}
	store := s.core.Store()
	rows := make([]ProposalRow, len(proposals))
	for i, p := range proposals {
		row := ProposalRow{Proposal: p, Canonical: p.SuggestedCanonical}
		if row.Canonical == "" {
			row.Canonical = p.ProofA
		}
		if d, ok := store.Lookup(p.ProofA, p.ProofB); ok {
			row.Status = RowStatus(d.Verdict)
			if d.Verdict == prooflabel.VerdictApproved {
				row.Canonical = d.Canonical
			}
		}
		rows[i] = row
	}
	s.mu.Lock()
	s.rows = rows
	s.lastRun = nil
	s.mu.Unlock()
	return len(rows), nil
}

// Rows returns a copy of the review rows.
func (s *Service) Rows() []ProposalRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProposalRow(nil), s.rows...)
}

// LastRun returns the most recent mining run, or nil when the rows came from
// a file.
func (s *Service) LastRun() *prooflabel.MiningRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Approve records the row's pair under canonical.
func (s *Service) Approve(ctx context.Context, idx int, canonical string) (ProposalRow, error) {
	row, err := s.row(idx)
	if err != nil {
		return row, err
	}
	d, err := s.core.Approve(ctx, row.Proposal.ProofA, row.Proposal.ProofB, canonical)
	if err != nil {
		return row, err
	}
	return s.setStatus(idx, StatusApproved, d.Canonical), nil
}

// Reject records that the row's pair must stay distinct.
func (s *Service) Reject(ctx context.Context, idx int) (ProposalRow, error) {
	row, err := s.row(idx)
	if err != nil {
		return row, err
	}
	if _, err := s.core.Reject(ctx, row.Proposal.ProofA, row.Proposal.ProofB); err != nil {
		return row, err
	}
	return s.setStatus(idx, StatusRejected, row.Canonical), nil
}

// Export writes the last run's artifacts into dir.
func (s *Service) Export(dir string) (prooflabel.RunArtifacts, error) {
	run := s.LastRun()
	if run == nil {
		return prooflabel.RunArtifacts{}, errors.New("no mining run to export")
	}
	cfg := s.Config()
	if dir == "" {
		dir = cfg.Miner.OutputDir
	}
	return prooflabel.ExportRun(dir, run, cfg.Miner.IncludeCovered)
}

func (s *Service) row(idx int) (ProposalRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.rows) {
		return ProposalRow{}, errNoRow
	}
	return s.rows[idx], nil
}

func (s *Service) setStatus(idx int, status RowStatus, canonical string) ProposalRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= len(s.rows) {
		return ProposalRow{}
	}
	s.rows[idx].Status = status
	s.rows[idx].Canonical = canonical
	return s.rows[idx]
}
