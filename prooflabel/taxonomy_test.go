package prooflabel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomyMatchesWasteRegister(t *testing.T) {
	t.Parallel()
	tax := DefaultTaxonomy()
	label, ok := tax.Match(NormalizeText("Registre des déchets dangereux"))
	require.True(t, ok)
	require.Equal(t, "Suivi & Bordereaux de Déchets (BSD)", label)

	label, ok = tax.Match(NormalizeText("Registre des consignes de sécurité"))
	require.True(t, ok)
	require.Equal(t, "Registres & Consignes", label)
}

func TestTaxonomyFirstCategoryWins(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{
		{Label: "Spécifique", Keywords: []string{"CONTRÔLE ÉTANCHÉITÉ"}},
		{Label: "Générique", Keywords: []string{"CONTRÔLE"}},
	}, false)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		label, ok := tax.Match(NormalizeText("Contrôle d'étanchéité annuel"))
		require.True(t, ok)
		require.Equal(t, "Spécifique", label)
	}
	label, ok := tax.Match(NormalizeText("Contrôle des extincteurs"))
	require.True(t, ok)
	require.Equal(t, "Générique", label)
}

func TestTaxonomyAcronymNeedsWordBoundary(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{{Label: "EPI", Keywords: []string{"EPI"}}}, false)
	require.NoError(t, err)

	_, ok := tax.Match(NormalizeText("Épicerie fine"))
	require.False(t, ok)

	for _, in := range []string{"Port des EPI obligatoire", "EPI", "gants/EPI", "Registre EPI-2024"} {
		label, ok := tax.Match(NormalizeText(in))
		require.True(t, ok, in)
		require.Equal(t, "EPI", label)
	}
}

func TestTaxonomyOrderedTerms(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{{Label: "BSD", Keywords: []string{"REGISTRE DÉCHET"}}}, false)
	require.NoError(t, err)

	_, ok := tax.Match(NormalizeText("Registre chronologique des déchets"))
	require.True(t, ok)

	_, ok = tax.Match(NormalizeText("Déchets : tenue du registre"))
	require.False(t, ok)
}

func TestTaxonomyAccentSensitivity(t *testing.T) {
	t.Parallel()
	cats := []Category{{Label: "BSD", Keywords: []string{"REGISTRE DÉCHET"}}}

	insensitive, err := NewTaxonomy(cats, false)
	require.NoError(t, err)
	_, ok := insensitive.Match(NormalizeText("registre dechets"))
	require.True(t, ok)

	sensitive, err := NewTaxonomy(cats, true)
	require.NoError(t, err)
	_, ok = sensitive.Match(NormalizeText("registre dechets"))
	require.False(t, ok)
	_, ok = sensitive.Match(NormalizeText("registre déchets"))
	require.True(t, ok)
}

func TestNewTaxonomyRejectsInvalidCategories(t *testing.T) {
	t.Parallel()
	_, err := NewTaxonomy(nil, false)
	require.Error(t, err)

	_, err = NewTaxonomy([]Category{{Label: "  ", Keywords: []string{"X"}}}, false)
	require.Error(t, err)

	_, err = NewTaxonomy([]Category{{Label: "A"}, {Label: "A"}}, false)
	require.ErrorContains(t, err, "duplicate")
}

func TestTaxonomyCategoriesIsACopy(t *testing.T) {
	t.Parallel()
	tax := DefaultTaxonomy()
	cats := tax.Categories()
	cats[0].Label = "changed"
	cats[0].Keywords[0] = "changed"
	require.Equal(t, "Suivi & Bordereaux de Déchets (BSD)", tax.Categories()[0].Label)
	require.Equal(t, "BSD", tax.Categories()[0].Keywords[0])
	require.Equal(t, len(DefaultCategories()), tax.Len())
}

func fdsTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := NewTaxonomy([]Category{
		{Label: "Registres", Keywords: []string{"REGISTRE"}},
		{Label: "Fiches de Données de Sécurité (FDS)", Keywords: []string{
			"FDS PRODUIT CHIMIQUE",
			"FICHE DONNÉES SÉCURITÉ PRODUIT",
		}},
	}, false)
	require.NoError(t, err)
	return tax
}

func TestMatchFuzzyFindsSafetyDataSheets(t *testing.T) {
	t.Parallel()
	tax := fdsTaxonomy(t)
	for _, in := range []string{"FDS produit X", "Fiche de données de sécurité"} {
		norm := NormalizeText(in)
		_, exact := tax.Match(norm)
		require.False(t, exact, in)

		m, ok := tax.MatchFuzzy(norm, 0.4)
		require.True(t, ok, in)
		require.Equal(t, "Fiches de Données de Sécurité (FDS)", m.Label)
		require.Greater(t, m.Score, 0.4)
	}
}

func TestMatchFuzzyThresholdIsExclusive(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{{Label: "AB", Keywords: []string{"ALPHA BETA"}}}, false)
	require.NoError(t, err)

	// 2 shared words out of 5 distinct: exactly 0.4.
	_, ok := tax.MatchFuzzy("ALPHA BETA GAMMA DELTA EPSILON", 0.4)
	require.False(t, ok)

	m, ok := tax.MatchFuzzy("ALPHA BETA GAMMA DELTA", 0.4)
	require.True(t, ok)
	require.InDelta(t, 0.5, m.Score, 1e-9)
}

func TestMatchFuzzyJustAboveThreshold(t *testing.T) {
	t.Parallel()
	shared := make([]string, 7)
	for i := range shared {
		shared[i] = fmt.Sprintf("MOT%d", i+1)
	}
	extra := make([]string, 10)
	for i := range extra {
		extra[i] = fmt.Sprintf("AUTRE%d", i+1)
	}
	tax, err := NewTaxonomy([]Category{{Label: "Sept", Keywords: []string{strings.Join(shared, " ")}}}, false)
	require.NoError(t, err)

	// 7 / 17 ≈ 0.41
	text := strings.Join(append(extra, shared...), " ")
	m, ok := tax.MatchFuzzy(text, 0.4)
	require.True(t, ok)
	require.InDelta(t, 7.0/17.0, m.Score, 1e-9)
}

func TestMatchFuzzyTieKeepsTaxonomyOrder(t *testing.T) {
	t.Parallel()
	tax, err := NewTaxonomy([]Category{
		{Label: "Premier", Keywords: []string{"ANALYSE EAU"}},
		{Label: "Second", Keywords: []string{"ANALYSE EAU"}},
	}, false)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		m, ok := tax.MatchFuzzy("EAU ANALYSE", 0.4)
		require.True(t, ok)
		require.Equal(t, "Premier", m.Label)
	}
}

func TestMatchFuzzyEmptyInput(t *testing.T) {
	t.Parallel()
	_, ok := DefaultTaxonomy().MatchFuzzy("", 0.4)
	require.False(t, ok)
}

func TestJaccard(t *testing.T) {
	t.Parallel()
	a := wordSet([]string{"A", "B", "C"})
	b := wordSet([]string{"B", "C", "D"})
	require.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	require.InDelta(t, 1.0, Jaccard(a, a), 1e-9)
	require.Zero(t, Jaccard(nil, nil))
	require.Zero(t, Jaccard(a, nil))
}

func TestLoadTaxonomyYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	data := `categories:
  - label: Bruit
    keywords: [BRUIT, SONOM]
  - label: Registres
    keywords:
      - REGISTRE
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tax, err := LoadTaxonomy(path, false)
	require.NoError(t, err)
	require.Equal(t, 2, tax.Len())
	require.Equal(t, "Bruit", tax.Categories()[0].Label)

	label, ok := tax.Match(NormalizeText("Mesure sonométrique"))
	require.True(t, ok)
	require.Equal(t, "Bruit", label)
}

func TestLoadTaxonomyErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadTaxonomy(filepath.Join(dir, "missing.json"), false)
	require.ErrorContains(t, err, "read taxonomy")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadTaxonomy(bad, false)
	require.ErrorContains(t, err, "decode taxonomy")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"categories":[]}`), 0o644))
	_, err = LoadTaxonomy(empty, false)
	require.ErrorContains(t, err, "compile taxonomy")

	tax, err := LoadTaxonomy("", false)
	require.NoError(t, err)
	require.Equal(t, len(DefaultCategories()), tax.Len())
}

func TestEnsureTaxonomyFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"nested/taxonomy.json", "taxonomy.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, EnsureTaxonomyFile(path))

		tax, err := LoadTaxonomy(path, false)
		require.NoError(t, err)
		require.Equal(t, DefaultCategories(), tax.Categories())
	}

	custom := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(custom, []byte(`{"categories":[{"label":"X","keywords":["X"]}]}`), 0o644))
	require.NoError(t, EnsureTaxonomyFile(custom))
	tax, err := LoadTaxonomy(custom, false)
	require.NoError(t, err)
	require.Equal(t, 1, tax.Len())

	require.NoError(t, EnsureTaxonomyFile(""))
}
