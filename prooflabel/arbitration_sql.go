package prooflabel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const decisionsTable = "arbitration_decisions"

// SQLStore keeps decisions as append-only rows in SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	backend string
	builder sq.StatementBuilderType
	logger  *slog.Logger
	index   *decisionIndex
	writeMu sync.Mutex
	owned   bool
	ready   bool
}

var _ ArbitrationStore = (*SQLStore)(nil)

// OpenSQLStore opens a database connection for the backend and loads the
// existing decisions.
func OpenSQLStore(ctx context.Context, backend, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s arbitration store: empty dsn", backend)
	}
	driver, err := sqlDriver(backend)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	s, err := NewSQLStore(ctx, db, backend, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLStore wires an existing connection. The table is created when
// missing. An unreachable database or a failing history read leaves the store
// empty and logs a warning; Record retries the migration.
func NewSQLStore(ctx context.Context, db *sql.DB, backend string, logger *slog.Logger) (*SQLStore, error) {
	if _, err := sqlDriver(backend); err != nil {
		return nil, err
	}
	s := &SQLStore{
		db:      db,
		backend: backend,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholderFor(backend)),
		logger:  loggerOrDiscard(logger),
		index:   newDecisionIndex(),
	}
	if err := s.migrate(ctx); err != nil {
		s.logger.Warn("arbitration database unavailable, starting empty", "backend", backend, "error", err)
		return s, nil
	}
	s.ready = true
	decisions, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("arbitration history unavailable, starting empty", "backend", backend, "error", err)
		decisions = nil
	}
	s.index.reset(decisions)
	return s, nil
}

func sqlDriver(backend string) (string, error) {
	switch backend {
	case BackendSQLite:
		return "sqlite", nil
	case BackendPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported sql backend %q", backend)
	}
}

func placeholderFor(backend string) sq.PlaceholderFormat {
	if backend == BackendPostgres {
		return sq.Dollar
	}
	return sq.Question
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == BackendPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	query := `CREATE TABLE IF NOT EXISTS ` + decisionsTable + ` (
	` + idColumn + `,
	verdict TEXT NOT NULL,
	proof_a TEXT NOT NULL,
	proof_b TEXT NOT NULL,
	canonical TEXT,
	decided_at TEXT NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", decisionsTable, err)
	}
	return nil
}

func (s *SQLStore) load(ctx context.Context) ([]Decision, error) {
	query, args, err := s.builder.
		Select("verdict", "proof_a", "proof_b", "canonical", "decided_at").
		From(decisionsTable).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []Decision
	for rows.Next() {
		var (
			verdict, a, b, at string
			canonical         sql.NullString
		)
		if err := rows.Scan(&verdict, &a, &b, &canonical, &at); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decidedAt, err := parseDecisionDate(at)
		if err != nil {
			s.logger.Warn("skipping decision row", "error", err)
			continue
		}
		d := Decision{Verdict: Verdict(verdict), ProofA: a, ProofB: b, Canonical: canonical.String, DecidedAt: decidedAt}
		if err := d.Validate(); err != nil {
			s.logger.Warn("skipping decision row", "error", err)
			continue
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return decisions, nil
}

// Lookup returns the latest decision for the unordered pair.
func (s *SQLStore) Lookup(p1, p2 string) (Decision, bool) { return s.index.lookup(p1, p2) }

// ApprovedFor returns the latest approved decision involving proof.
func (s *SQLStore) ApprovedFor(proof string) (Decision, bool) { return s.index.approvedFor(proof) }

// Decisions returns every decision in insertion order.
func (s *SQLStore) Decisions() []Decision { return s.index.decisions() }

// Record inserts a new row. Existing rows are never updated.
func (s *SQLStore) Record(ctx context.Context, d Decision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	if err := d.Validate(); err != nil {
		return err
	}
	var canonical any
	if d.Verdict == VerdictApproved {
		canonical = d.Canonical
	}
	query, args, err := s.builder.
		Insert(decisionsTable).
		Columns("verdict", "proof_a", "proof_b", "canonical", "decided_at").
		Values(string(d.Verdict), d.ProofA, d.ProofB, canonical, formatDecisionDate(d.DecidedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.ready {
		if err := s.migrate(ctx); err != nil {
			return err
		}
		s.ready = true
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	s.index.add(d)
	return nil
}

// Close releases the connection when the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("close %s: %w", s.backend, err)
	}
	return nil
}
