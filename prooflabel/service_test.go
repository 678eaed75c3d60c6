package prooflabel

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store := OpenFileStore(filepath.Join(t.TempDir(), "arbitrage_decisions.json"), nil)
	opts = append([]Option{WithStore(store), WithClock(func() time.Time { return baseTime })}, opts...)
	svc, err := NewService(context.Background(), Config{}, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Close()) })
	return svc
}

func TestCanonicalizeTaxonomy(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	res, ok := svc.Canonicalize("Registre des déchets dangereux", "R-12")
	require.True(t, ok)
	require.Equal(t, "Suivi & Bordereaux de Déchets (BSD)", res.Label)
	require.Equal(t, SourceTaxonomy, res.Source)
	require.Equal(t, "R-12", res.RecordID)
	require.Equal(t, "REGISTRE DES DÉCHETS DANGEREUX", res.Normalized)
	require.Equal(t, "Déchets & Traçabilité", res.Bucket)
}

func TestCanonicalizeFuzzy(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, WithTaxonomy(fdsTaxonomy(t)))
	for _, in := range []string{"FDS produit X", "Fiche de données de sécurité"} {
		res, ok := svc.Canonicalize(in, "")
		require.True(t, ok)
		require.Equal(t, SourceFuzzy, res.Source, in)
		require.Equal(t, "Fiches de Données de Sécurité (FDS)", res.Label)
		require.Greater(t, res.Score, 0.4)
		require.Equal(t, "Certificats & FDS", res.Bucket)
	}

	cfg := svc.Config()
	cfg.FuzzyThreshold = 0.9
	svc.UpdateConfig(cfg)
	res, ok := svc.Canonicalize("FDS produit X", "")
	require.True(t, ok)
	require.Equal(t, SourceFallback, res.Source)
	require.Equal(t, "FDS PRODUIT X", res.Label)
}

func TestArbitrationOverridesHeuristics(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{{Label: "Autre libellé", Keywords: []string{"TEXTE"}}}, false)
	require.NoError(t, err)
	svc := newTestService(t, WithTaxonomy(tax))

	res, ok := svc.Canonicalize("Texte A", "")
	require.True(t, ok)
	require.Equal(t, "Autre libellé", res.Label)

	d, err := svc.Approve(context.Background(), " Texte A ", "Texte B", "Texte A")
	require.NoError(t, err)
	require.Equal(t, "Texte A", d.ProofA)
	require.True(t, d.DecidedAt.Equal(baseTime))

	for _, in := range []string{"Texte A", "texte b", "  TEXTE   B "} {
		res, ok := svc.Canonicalize(in, "")
		require.True(t, ok)
		require.Equal(t, "Texte A", res.Label, in)
		require.Equal(t, SourceArbitration, res.Source)
	}

	heuristic, ok := svc.HeuristicLabel("Texte B")
	require.True(t, ok)
	require.Equal(t, "Autre libellé", heuristic.Label)
	require.Equal(t, SourceTaxonomy, heuristic.Source)

	// A later rejection of the same pair withdraws the merge.
	_, err = svc.Reject(context.Background(), "Texte B", "Texte A")
	require.NoError(t, err)
	res, _ = svc.Canonicalize("Texte B", "")
	require.Equal(t, "Autre libellé", res.Label)
}

func TestApproveRejectsInvalidDecision(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	_, err := svc.Approve(context.Background(), "Texte A", "Texte B", "  ")
	require.ErrorIs(t, err, ErrInvalidDecision)
	_, err = svc.Reject(context.Background(), "", "Texte B")
	require.ErrorIs(t, err, ErrInvalidDecision)
	require.Empty(t, svc.Store().Decisions())
}

func TestCanonicalizeIgnoresEmptyAndPlaceholders(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	for _, in := range []string{"", "   ", "\t\n", "nan", "None", "n/a", "Non spécifiée", "non specifiee (analyse requise)"} {
		_, ok := svc.Canonicalize(in, "")
		require.False(t, ok, "%q", in)
	}

	res := svc.CanonicalizeAll([]ProofRecord{
		{RecordID: "1", Proof: "NaN"},
		{RecordID: "2", Proof: "Plan de prévention"},
		{RecordID: "3", Proof: " "},
	})
	require.Len(t, res, 1)
	require.Equal(t, "2", res[0].RecordID)
	require.Equal(t, "Registres & Consignes", res[0].Label)
}

func TestCanonicalizeFallbackTruncates(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	res, ok := svc.Canonicalize("lorem ipsum", "")
	require.True(t, ok)
	require.Equal(t, SourceFallback, res.Source)
	require.Equal(t, "LOREM IPSUM", res.Label)
	require.Equal(t, CatchAllBucket, res.Bucket)

	long := "lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor incididunt"
	res, ok = svc.Canonicalize(long, "")
	require.True(t, ok)
	require.Equal(t, SourceFallback, res.Source)
	norm := NormalizeText(long)
	require.Equal(t, strings.TrimSpace(string([]rune(norm)[:60]))+"…", res.Label)
	require.True(t, strings.HasPrefix(norm, strings.TrimSuffix(res.Label, "…")))
}

func TestCanonicalizeIsStable(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	tax := svc.Taxonomy()
	inputs := []string{
		"Registre des déchets dangereux",
		"FDS des produits chimiques",
		"Rapport APAVE installations électriques",
		"lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor",
	}
	for _, in := range inputs {
		first, ok := svc.Canonicalize(in, "")
		require.True(t, ok)
		second, ok := svc.Canonicalize(in, "")
		require.True(t, ok)
		require.Equal(t, first, second)

		variant, ok := svc.Canonicalize("  "+strings.ToLower(in)+"\t", "")
		require.True(t, ok)
		require.Equal(t, first.Label, variant.Label)

		if first.Source == SourceTaxonomy {
			again, ok := svc.Canonicalize(first.Label, "")
			require.True(t, ok)
			label, matched := tax.Match(NormalizeText(first.Label))
			require.True(t, matched)
			require.Equal(t, label, again.Label)
		}
	}
}

func sameLabel(a Resolution, aok bool, b Resolution, bok bool) bool {
	return aok == bok && a.Label == b.Label && a.Source == b.Source && a.Score == b.Score && a.Bucket == b.Bucket
}

func TestCanonicalizeProperties(t *testing.T) {
	svc := newTestService(t, WithTaxonomy(fdsTaxonomy(t)))
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalization is deterministic", prop.ForAll(
		func(s string) bool {
			a, aok := svc.Canonicalize(s, "")
			b, bok := svc.Canonicalize(s, "")
			return sameLabel(a, aok, b, bok)
		},
		frenchText(),
	))

	properties.Property("the normalized form resolves to the same label", prop.ForAll(
		func(s string) bool {
			a, aok := svc.Canonicalize(s, "")
			b, bok := svc.Canonicalize(NormalizeText(s), "")
			return sameLabel(a, aok, b, bok)
		},
		frenchText(),
	))

	properties.Property("case and whitespace variants resolve identically", prop.ForAll(
		func(s string) bool {
			variant := "  " + strings.ToLower(strings.ReplaceAll(s, " ", " \t ")) + "\n"
			a, aok := svc.Canonicalize(s, "")
			b, bok := svc.Canonicalize(variant, "")
			return sameLabel(a, aok, b, bok)
		},
		frenchText(),
	))

	properties.Property("untruncated fallback labels are fixed points", prop.ForAll(
		func(s string) bool {
			res, ok := svc.Canonicalize(s, "")
			if !ok || res.Source != SourceFallback || strings.HasSuffix(res.Label, "…") {
				return true
			}
			again, ok := svc.Canonicalize(res.Label, "")
			return ok && again.Label == res.Label && again.Source == SourceFallback
		},
		frenchText(),
	))

	properties.TestingRun(t)
}

func TestServiceAppliesColumnCandidates(t *testing.T) {
	defer SetColumnCandidates(ColumnCandidates{})
	path := writeTemp(t, "export.csv", "Ref,Justificatif\nA-1,Registre des déchets\n")

	var cfg Config
	cfg.Columns = ColumnCandidates{Proof: []string{"Justificatif"}, ID: []string{"Ref"}}
	svc, err := NewService(context.Background(), cfg, nil, WithStore(OpenFileStore(filepath.Join(t.TempDir(), "d.json"), nil)))
	require.NoError(t, err)
	defer svc.Close()

	records, err := ParseProofRecords(path, InputParseOptions{})
	require.NoError(t, err)
	require.Equal(t, []ProofRecord{{RecordID: "A-1", Proof: "Registre des déchets"}}, records)
	require.Equal(t, []string{"Justificatif"}, ActiveColumnCandidates().Proof)

	svc.UpdateConfig(Config{})
	require.Equal(t, DefaultColumnCandidates(), ActiveColumnCandidates())
}

func TestServiceRecordsMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { require.NoError(t, mp.Shutdown(ctx)) }()

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	svc := newTestService(t, WithMetrics(m))

	svc.Canonicalize("Registre des déchets", "")
	svc.Canonicalize("Fiche FDS", "")
	svc.Canonicalize("lorem ipsum", "")
	svc.Canonicalize("nan", "")
	_, err = svc.Approve(ctx, "Texte A", "Texte B", "Texte A")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "Texte C", "Texte D")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	require.EqualValues(t, 2, counterValue(t, rm, "veille.proof.resolutions", attribute.String("source", string(SourceTaxonomy))))
	require.EqualValues(t, 1, counterValue(t, rm, "veille.proof.resolutions", attribute.String("source", string(SourceFallback))))
	require.EqualValues(t, 1, counterValue(t, rm, "veille.arbitration.decisions", attribute.String("verdict", string(VerdictApproved))))
	require.EqualValues(t, 1, counterValue(t, rm, "veille.arbitration.decisions", attribute.String("verdict", string(VerdictRejected))))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.recordResolution(context.Background(), SourceFallback)
	m.recordDecision(context.Background(), VerdictApproved)
	m.recordProposals(context.Background(), []MergeProposal{{}})
	m.recordMinerRun(context.Background(), time.Second, "ok")
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attr.Key); found && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}
