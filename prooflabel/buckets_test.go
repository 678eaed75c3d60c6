package prooflabel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketClassifier(t *testing.T) {
	t.Parallel()
	b, err := NewBucketClassifier(nil, "")
	require.NoError(t, err)

	cases := map[string]string{
		"Suivi & Bordereaux de Déchets (BSD)":     "Déchets & Traçabilité",
		"Fiches de Données de Sécurité (FDS)":     "Certificats & FDS",
		"Arrêtés & Autorisations ICPE / IOTA":     "Autorisations ICPE",
		"Mesures de Bruit & Vibrations":           "Mesures & Analyses",
		"Bilan GES & Carbone":                     "Énergie & Climat",
		"Sécurité Incendie & Risques Industriels": "Santé-Sécurité",
		"Registres & Consignes":                   "Registres & Documentation",
		"JUSTIFICATIF 001":                        CatchAllBucket,
	}
	for label, want := range cases {
		require.Equal(t, want, b.Bucket(label), label)
	}
}

func TestAggregateAndReport(t *testing.T) {
	t.Parallel()
	b, err := NewBucketClassifier([]Category{
		{Label: "Déchets", Keywords: []string{"DÉCHET"}},
		{Label: "Bruit", Keywords: []string{"BRUIT"}},
	}, "Divers")
	require.NoError(t, err)

	rows := b.Aggregate([]string{
		"Registre déchets", "Bruit", "Facture", "Déchets BSD", "Mesure bruit", "Contrat",
	})
	require.Equal(t, []BucketCount{
		{Bucket: "Bruit", Count: 2},
		{Bucket: "Divers", Count: 2},
		{Bucket: "Déchets", Count: 2},
	}, rows)

	report := Report(rows, 2)
	require.Equal(t, BucketReport{Labels: []string{"Bruit", "Divers"}, Values: []int{2, 2}}, report)
	require.Len(t, Report(rows, 0).Labels, 3)
	require.Empty(t, Report(nil, 5).Labels)
}
