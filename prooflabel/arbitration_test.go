package prooflabel

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func approved(a, b, canonical string, at time.Time) Decision {
	return Decision{Verdict: VerdictApproved, ProofA: a, ProofB: b, Canonical: canonical, DecidedAt: at}
}

func rejected(a, b string, at time.Time) Decision {
	return Decision{Verdict: VerdictRejected, ProofA: a, ProofB: b, DecidedAt: at}
}

func TestNewPairKeyIsSymmetric(t *testing.T) {
	t.Parallel()
	require.Equal(t, NewPairKey("texte b", " Texte  A"), NewPairKey("Texte A", "Texte B"))
	require.Equal(t, PairKey{A: "TEXTE A", B: "TEXTE B"}, NewPairKey("texte b", "texte a"))
}

func TestDecisionValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, approved("A", "B", "A", baseTime).Validate())
	require.NoError(t, rejected("A", "B", baseTime).Validate())

	invalid := []Decision{
		approved("A", "B", " ", baseTime),
		approved("", "B", "A", baseTime),
		rejected("A", "\t", baseTime),
		{Verdict: "maybe", ProofA: "A", ProofB: "B", DecidedAt: baseTime},
		rejected("A", "B", time.Time{}),
	}
	for _, d := range invalid {
		require.True(t, errors.Is(d.Validate(), ErrInvalidDecision), "%+v", d)
	}
}

func TestDecisionIndexLastWriteWins(t *testing.T) {
	t.Parallel()
	x := newDecisionIndex()
	x.add(approved("A", "B", "A", baseTime))
	x.add(rejected("B", "A", baseTime.Add(time.Hour)))

	d, ok := x.lookup("a", "b")
	require.True(t, ok)
	require.Equal(t, VerdictRejected, d.Verdict)
	_, ok = x.approvedFor("A")
	require.False(t, ok)

	// An older decision appended later does not supersede the newer one.
	x.add(approved("A", "B", "Ancien", baseTime.Add(-time.Hour)))
	d, _ = x.lookup("A", "B")
	require.Equal(t, VerdictRejected, d.Verdict)

	// Same timestamp: the entry appended later wins.
	x.add(approved("A", "B", "Final", baseTime.Add(time.Hour)))
	d, _ = x.lookup("B", "A")
	require.Equal(t, VerdictApproved, d.Verdict)
	require.Equal(t, "Final", d.Canonical)

	require.Len(t, x.decisions(), 4)
}

func TestDecisionIndexApprovedForPicksLatestPair(t *testing.T) {
	t.Parallel()
	x := newDecisionIndex()
	x.add(approved("Texte A", "Texte B", "Libellé 1", baseTime))
	x.add(approved("Texte A", "Texte C", "Libellé 2", baseTime.Add(time.Minute)))
	x.add(rejected("Texte A", "Texte D", baseTime.Add(time.Hour)))

	d, ok := x.approvedFor("texte a")
	require.True(t, ok)
	require.Equal(t, "Libellé 2", d.Canonical)

	d, ok = x.approvedFor("Texte B")
	require.True(t, ok)
	require.Equal(t, "Libellé 1", d.Canonical)

	_, ok = x.approvedFor("Texte D")
	require.False(t, ok)
	_, ok = x.approvedFor("  ")
	require.False(t, ok)
}

func TestFileStoreMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "arbitrage_decisions.json")
	s := OpenFileStore(path, nil)
	require.Empty(t, s.Decisions())
	require.Equal(t, path, s.Path())

	require.NoError(t, s.Record(context.Background(), approved("Texte A", "Texte B", "Texte A", baseTime)))
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
	require.NoError(t, s.Close())
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "decisions.json")
	ctx := context.Background()

	s := OpenFileStore(path, nil)
	require.NoError(t, s.Record(ctx, approved("Texte A", "Texte B", "Texte A", baseTime)))
	require.NoError(t, s.Record(ctx, rejected("Texte C", "Texte D", baseTime.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, rejected("Texte B", "Texte A", baseTime.Add(time.Hour))))

	reopened := OpenFileStore(path, nil)
	require.Len(t, reopened.Decisions(), 3)

	d, ok := reopened.Lookup("Texte A", "Texte B")
	require.True(t, ok)
	require.Equal(t, VerdictRejected, d.Verdict)
	require.True(t, d.DecidedAt.Equal(baseTime.Add(time.Hour)))

	d, ok = reopened.Lookup("texte d", "texte c")
	require.True(t, ok)
	require.Equal(t, VerdictRejected, d.Verdict)
}

func TestFileStoreReadsLegacyDates(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "decisions.json")
	doc := `{
  "approved": [
    {"p1": "Texte A", "p2": "Texte B", "canonical": "Texte A", "date": "2024-05-01 10:00:00.123456"},
    {"p1": "Texte E", "p2": "Texte F", "canonical": "Texte E", "date": "hier"}
  ],
  "rejected": [
    {"p1": "Texte C", "p2": "Texte D", "date": "2024-05-02"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := OpenFileStore(path, nil)
	require.Len(t, s.Decisions(), 2)
	d, ok := s.ApprovedFor("TEXTE B")
	require.True(t, ok)
	require.Equal(t, "Texte A", d.Canonical)
	require.Equal(t, 2024, d.DecidedAt.Year())
}

func TestFileStoreKeepsUnreadableEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.json")
	content := `{"approved": [{"p1": "Registre A", "p2": "Registre B", "canonical": "Registre", "date": "15/03/2025 10:00"}], "rejected": []}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := OpenFileStore(path, nil)
	require.Empty(t, s.Decisions())
	require.NoError(t, s.Record(context.Background(), rejected("X", "Y", baseTime)))

	backups, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	kept, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	require.Equal(t, content, string(kept))

	var doc arbitrationDocument
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, []approvedEntry{{P1: "Registre A", P2: "Registre B", Canonical: "Registre", Date: "15/03/2025 10:00"}}, doc.Approved)
	require.Len(t, doc.Rejected, 1)

	// A second write keeps the entry without another backup.
	require.NoError(t, s.Record(context.Background(), rejected("X", "Z", baseTime.Add(time.Minute))))
	reopened := OpenFileStore(path, nil)
	require.Len(t, reopened.Decisions(), 2)
	require.NoError(t, json.Unmarshal(mustRead(t, path), &doc))
	require.Len(t, doc.Approved, 1)
	backups, err = filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestFileStoreReloadsInDecisionOrder(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "decisions.json")
	ctx := context.Background()

	s := OpenFileStore(path, nil)
	require.NoError(t, s.Record(ctx, rejected("Texte C", "Texte D", baseTime)))
	require.NoError(t, s.Record(ctx, approved("Texte A", "Texte B", "Texte A", baseTime.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, rejected("Texte A", "Texte B", baseTime.Add(time.Minute))))

	var verdicts []Verdict
	for _, d := range OpenFileStore(path, nil).Decisions() {
		verdicts = append(verdicts, d.Verdict)
	}
	require.Equal(t, []Verdict{VerdictRejected, VerdictApproved, VerdictRejected}, verdicts)

	d, ok := OpenFileStore(path, nil).Lookup("Texte B", "Texte A")
	require.True(t, ok)
	require.Equal(t, VerdictRejected, d.Verdict)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestFileStoreSetsAsideCorruptFile(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"syntax": "{not json",
		"schema": `{"approved": [{"p1": "Texte A"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "decisions.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			s := OpenFileStore(path, nil)
			require.Empty(t, s.Decisions())

			require.NoError(t, s.Record(context.Background(), approved("Texte A", "Texte B", "Texte A", baseTime)))

			backups, err := filepath.Glob(path + ".corrupt-*")
			require.NoError(t, err)
			require.Len(t, backups, 1)
			kept, err := os.ReadFile(backups[0])
			require.NoError(t, err)
			require.Equal(t, content, string(kept))

			reopened := OpenFileStore(path, nil)
			require.Len(t, reopened.Decisions(), 1)
		})
	}
}

func TestFileStoreRejectsInvalidDecision(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "decisions.json")
	s := OpenFileStore(path, nil)

	err := s.Record(context.Background(), approved("Texte A", "Texte B", "", baseTime))
	require.ErrorIs(t, err, ErrInvalidDecision)
	require.Empty(t, s.Decisions())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Record(ctx, rejected("A", "B", baseTime)), context.Canceled)
}

func TestFileStoreDefaultsDecisionTime(t *testing.T) {
	t.Parallel()
	s := OpenFileStore(filepath.Join(t.TempDir(), "decisions.json"), nil)
	require.NoError(t, s.Record(context.Background(), Decision{Verdict: VerdictRejected, ProofA: "A", ProofB: "B"}))
	d, ok := s.Lookup("A", "B")
	require.True(t, ok)
	require.False(t, d.DecidedAt.IsZero())
}

func TestOpenArbitrationStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenArbitrationStore(ctx, ArbitrationConfig{Path: filepath.Join(dir, "d.json")}, nil)
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, store)

	store, err = OpenArbitrationStore(ctx, ArbitrationConfig{Backend: "SQLite", Path: filepath.Join(dir, "d.db")}, nil)
	require.NoError(t, err)
	require.IsType(t, &SQLStore{}, store)
	require.NoError(t, store.Close())

	_, err = OpenArbitrationStore(ctx, ArbitrationConfig{Backend: "mongo"}, nil)
	require.ErrorContains(t, err, "unknown arbitration backend")

	_, err = OpenArbitrationStore(ctx, ArbitrationConfig{Backend: BackendPostgres}, nil)
	require.ErrorContains(t, err, "empty dsn")
}
