package prooflabel

import (
	"sort"
	"strings"
)

// CatchAllBucket receives labels no reporting bucket claims.
const CatchAllBucket = "Autres preuves"

// DefaultBuckets groups canonical labels into the families shown on reports.
// Order matters: the FDS label mentions "SÉCURITÉ" and must land in its own
// bucket before the health and safety one.
func DefaultBuckets() []Category {
	return []Category{
		{Label: "Déchets & Traçabilité", Keywords: []string{"DÉCHET", "BSD", "BORDEREAU", "REP", "ÉCO-ORGANISME"}},
		{Label: "Certificats & FDS", Keywords: []string{"FDS", "CERTIFICAT", "REACH", "ROHS", "FSC", "PEFC", "CONFORMITÉ PRODUITS"}},
		{Label: "Autorisations ICPE", Keywords: []string{"ICPE", "IOTA", "ARRÊTÉ", "AUTORISATION"}},
		{Label: "Mesures & Analyses", Keywords: []string{"MESURE", "ANALYSE", "BRUIT", "ÉMISSION", "REJET"}},
		{Label: "Énergie & Climat", Keywords: []string{"ÉNERG", "GES", "CARBONE", "FRIGORIG"}},
		{Label: "Santé-Sécurité", Keywords: []string{"SÉCURITÉ", "SANTÉ", "INCENDIE", "DOCUMENT UNIQUE", "FORMATION", "VÉRIFICATION", "ADR"}},
		{Label: "Registres & Documentation", Keywords: []string{"REGISTRE", "PROCÉDURE", "CONTRAT", "ATTESTATION", "VEILLE", "CONSIGNE"}},
	}
}

// BucketClassifier maps canonical labels onto reporting buckets.
type BucketClassifier struct {
	taxonomy *Taxonomy
	catchAll string
}

// BucketCount is one row of an aggregation.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// BucketReport is the chart-friendly form of an aggregation.
type BucketReport struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// NewBucketClassifier compiles the bucket table. A nil table uses DefaultBuckets.
func NewBucketClassifier(buckets []Category, catchAll string) (*BucketClassifier, error) {
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	if strings.TrimSpace(catchAll) == "" {
		catchAll = CatchAllBucket
	}
	t, err := NewTaxonomy(buckets, false)
	if err != nil {
		return nil, err
	}
	return &BucketClassifier{taxonomy: t, catchAll: catchAll}, nil
}

// Bucket returns the reporting bucket for a canonical label.
func (b *BucketClassifier) Bucket(label string) string {
	if name, ok := b.taxonomy.Match(NormalizeText(label)); ok {
		return name
	}
	return b.catchAll
}

// Aggregate counts labels per bucket, largest first, ties by name.
func (b *BucketClassifier) Aggregate(labels []string) []BucketCount {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[b.Bucket(l)]++
	}
	out := make([]BucketCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, BucketCount{Bucket: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out
}

// Report keeps the topN largest rows (all when topN <= 0).
func Report(rows []BucketCount, topN int) BucketReport {
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	r := BucketReport{Labels: make([]string, len(rows)), Values: make([]int, len(rows))}
	for i, row := range rows {
		r.Labels[i] = row.Bucket
		r.Values[i] = row.Count
	}
	return r
}
