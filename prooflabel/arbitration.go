package prooflabel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Verdict is the outcome of a human review of a proposed merge.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// ErrInvalidDecision is returned when a decision lacks its proofs or label.
var ErrInvalidDecision = errors.New("invalid arbitration decision")

// Decision is one human arbitration. Decisions are never edited; a later
// decision on the same pair supersedes earlier ones.
type Decision struct {
	Verdict   Verdict   `json:"verdict"`
	ProofA    string    `json:"proofA"`
	ProofB    string    `json:"proofB"`
	Canonical string    `json:"canonical,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Validate checks the decision carries what its verdict requires.
func (d Decision) Validate() error {
	if isBlank(d.ProofA) || isBlank(d.ProofB) {
		return fmt.Errorf("%w: both proofs are required", ErrInvalidDecision)
	}
	switch d.Verdict {
	case VerdictApproved:
		if isBlank(d.Canonical) {
			return fmt.Errorf("%w: approved decision needs a canonical label", ErrInvalidDecision)
		}
	case VerdictRejected:
	default:
		return fmt.Errorf("%w: unknown verdict %q", ErrInvalidDecision, d.Verdict)
	}
	if d.DecidedAt.IsZero() {
		return fmt.Errorf("%w: missing decision date", ErrInvalidDecision)
	}
	return nil
}

// PairKey identifies an unordered pair of proofs.
type PairKey struct {
	A string
	B string
}

// NewPairKey normalizes both proofs and orders them so that (x, y) and (y, x)
// share a key.
func NewPairKey(p1, p2 string) PairKey {
	a, b := NormalizeText(p1), NormalizeText(p2)
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// ArbitrationStore is the durable log of human decisions.
type ArbitrationStore interface {
	Lookup(p1, p2 string) (Decision, bool)
	ApprovedFor(proof string) (Decision, bool)
	Record(ctx context.Context, d Decision) error
	Decisions() []Decision
	Close() error
}

// decisionIndex is the in-memory view shared by all store backends.
type decisionIndex struct {
	mu      sync.RWMutex
	log     []Decision
	latest  map[PairKey]int
	byProof map[string][]PairKey
}

func newDecisionIndex() *decisionIndex {
	return &decisionIndex{
		latest:  make(map[PairKey]int),
		byProof: make(map[string][]PairKey),
	}
}

func (x *decisionIndex) reset(decisions []Decision) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.log = nil
	x.latest = make(map[PairKey]int, len(decisions))
	x.byProof = make(map[string][]PairKey, len(decisions))
	for _, d := range decisions {
		x.addLocked(d)
	}
}

func (x *decisionIndex) add(d Decision) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(d)
}

func (x *decisionIndex) addLocked(d Decision) {
	x.log = append(x.log, d)
	pos := len(x.log) - 1
	key := NewPairKey(d.ProofA, d.ProofB)
	if prev, ok := x.latest[key]; ok {
		// Equal timestamps resolve to the entry appended later.
		if x.log[prev].DecidedAt.After(d.DecidedAt) {
			return
		}
	} else {
		x.byProof[key.A] = append(x.byProof[key.A], key)
		if key.B != key.A {
			x.byProof[key.B] = append(x.byProof[key.B], key)
		}
	}
	x.latest[key] = pos
}

func (x *decisionIndex) lookup(p1, p2 string) (Decision, bool) {
	key := NewPairKey(p1, p2)
	x.mu.RLock()
	defer x.mu.RUnlock()
	pos, ok := x.latest[key]
	if !ok {
		return Decision{}, false
	}
	return x.log[pos], true
}

func (x *decisionIndex) approvedFor(proof string) (Decision, bool) {
	normalized := NormalizeText(proof)
	if normalized == "" {
		return Decision{}, false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	var best Decision
	bestPos := -1
	for _, key := range x.byProof[normalized] {
		pos := x.latest[key]
		d := x.log[pos]
		if d.Verdict != VerdictApproved {
			continue
		}
		if bestPos < 0 || d.DecidedAt.After(best.DecidedAt) || (d.DecidedAt.Equal(best.DecidedAt) && pos > bestPos) {
			best, bestPos = d, pos
		}
	}
	return best, bestPos >= 0
}

func (x *decisionIndex) decisions() []Decision {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Decision, len(x.log))
	copy(out, x.log)
	return out
}

// OpenArbitrationStore opens the backend named in the configuration.
func OpenArbitrationStore(ctx context.Context, cfg ArbitrationConfig, logger *slog.Logger) (ArbitrationStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		return OpenFileStore(cfg.Path, logger), nil
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return OpenSQLStore(ctx, BackendSQLite, dsn, logger)
	case BackendPostgres:
		return OpenSQLStore(ctx, BackendPostgres, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown arbitration backend %q", cfg.Backend)
	}
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
