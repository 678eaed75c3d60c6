package prooflabel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type approvedEntry struct {
	P1        string `json:"p1"`
	P2        string `json:"p2"`
	Canonical string `json:"canonical"`
	Date      string `json:"date"`
}

type rejectedEntry struct {
	P1   string `json:"p1"`
	P2   string `json:"p2"`
	Date string `json:"date"`
}

type arbitrationDocument struct {
	Approved []approvedEntry `json:"approved"`
	Rejected []rejectedEntry `json:"rejected"`
}

var decisionDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDecisionDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range decisionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized decision date %q", s)
}

func formatDecisionDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// FileStore keeps decisions in a single JSON document that is rewritten in
// full on every new decision. Entries it cannot read are written back
// unchanged.
type FileStore struct {
	path     string
	logger   *slog.Logger
	index    *decisionIndex
	writeMu  sync.Mutex
	corrupt  bool
	unparsed arbitrationDocument
}

var _ ArbitrationStore = (*FileStore)(nil)

// OpenFileStore loads the decision file at path. A missing or unreadable file
// yields an empty history and a warning; it never fails.
func OpenFileStore(path string, logger *slog.Logger) *FileStore {
	s := &FileStore{
		path:   filepath.Clean(path),
		logger: loggerOrDiscard(logger),
		index:  newDecisionIndex(),
	}
	decisions, err := s.load()
	if err != nil {
		s.logger.Warn("arbitration history unavailable, starting empty", "path", s.path, "error", err)
	}
	s.index.reset(decisions)
	return s
}

// Path returns the location of the decision file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() ([]Decision, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no decision file yet: %w", err)
		}
		s.corrupt = true
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.corrupt = true
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if err := validateArbitrationDocument(raw); err != nil {
		s.corrupt = true
		return nil, err
	}
	var doc arbitrationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.corrupt = true
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	decisions := make([]Decision, 0, len(doc.Approved)+len(doc.Rejected))
	for i, e := range doc.Approved {
		at, err := parseDecisionDate(e.Date)
		if err != nil {
			s.logger.Warn("keeping unreadable approved decision aside", "index", i, "error", err)
			s.unparsed.Approved = append(s.unparsed.Approved, e)
			continue
		}
		decisions = append(decisions, Decision{Verdict: VerdictApproved, ProofA: e.P1, ProofB: e.P2, Canonical: e.Canonical, DecidedAt: at})
	}
	for i, e := range doc.Rejected {
		at, err := parseDecisionDate(e.Date)
		if err != nil {
			s.logger.Warn("keeping unreadable rejected decision aside", "index", i, "error", err)
			s.unparsed.Rejected = append(s.unparsed.Rejected, e)
			continue
		}
		decisions = append(decisions, Decision{Verdict: VerdictRejected, ProofA: e.P1, ProofB: e.P2, DecidedAt: at})
	}
	if len(s.unparsed.Approved)+len(s.unparsed.Rejected) > 0 {
		s.corrupt = true
	}
	// Approvals come first in the file; equal dates keep that order.
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].DecidedAt.Before(decisions[j].DecidedAt)
	})
	return decisions, nil
}

// Lookup returns the latest decision for the unordered pair.
func (s *FileStore) Lookup(p1, p2 string) (Decision, bool) { return s.index.lookup(p1, p2) }

// ApprovedFor returns the latest approved decision involving proof.
func (s *FileStore) ApprovedFor(proof string) (Decision, bool) { return s.index.approvedFor(proof) }

// Decisions returns every decision in the order it was recorded.
func (s *FileStore) Decisions() []Decision { return s.index.decisions() }

// Record appends d and rewrites the decision file. The in-memory history only
// changes once the file is safely replaced.
func (s *FileStore) Record(ctx context.Context, d Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	if err := d.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.corrupt {
		backup := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().Format("20060102T150405"))
		if err := copyFile(s.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set aside corrupt decisions: %w", err)
		}
		s.logger.Warn("corrupt arbitration file set aside", "backup", backup)
		s.corrupt = false
	}

	all := append(s.index.decisions(), d)
	if err := s.write(all); err != nil {
		return err
	}
	s.index.add(d)
	return nil
}

func (s *FileStore) write(decisions []Decision) error {
	doc := arbitrationDocument{
		Approved: append([]approvedEntry{}, s.unparsed.Approved...),
		Rejected: append([]rejectedEntry{}, s.unparsed.Rejected...),
	}
	for _, d := range decisions {
		switch d.Verdict {
		case VerdictApproved:
			doc.Approved = append(doc.Approved, approvedEntry{P1: d.ProofA, P2: d.ProofB, Canonical: d.Canonical, Date: formatDecisionDate(d.DecidedAt)})
		case VerdictRejected:
			doc.Rejected = append(doc.Rejected, rejectedEntry{P1: d.ProofA, P2: d.ProofB, Date: formatDecisionDate(d.DecidedAt)})
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create decisions dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp decisions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename decisions: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// Close is a no-op; every decision is already on disk.
func (s *FileStore) Close() error { return nil }
