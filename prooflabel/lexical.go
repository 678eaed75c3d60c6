package prooflabel

import "context"

// ProofCluster is one group of proofs the lexical strategy considers the same.
type ProofCluster struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
}

// ClusterReport summarizes a clustering pass.
type ClusterReport struct {
	InputCount      int            `json:"inputCount"`
	ClusterCount    int            `json:"clusterCount"`
	ReductionRatio  float64        `json:"reductionRatio"`
	FusionsDetected int            `json:"fusionsDetected"`
	Clusters        []ProofCluster `json:"clusters"`
}

// LexicalStrategy clusters proofs on word n-gram overlap.
type LexicalStrategy struct {
	cfg LexicalConfig
}

var _ Strategy = (*LexicalStrategy)(nil)

// NewLexicalStrategy returns the n-gram clustering strategy.
func NewLexicalStrategy(cfg LexicalConfig) *LexicalStrategy {
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = 0.5
	}
	return &LexicalStrategy{cfg: cfg}
}

// Name implements Strategy.
func (l *LexicalStrategy) Name() string { return StrategyLexical }

// Mine clusters texts and reports every pair inside a multi-member cluster.
func (l *LexicalStrategy) Mine(ctx context.Context, texts []string) (StrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return StrategyResult{}, err
	}
	report, vecs := l.cluster(texts)
	if err := ctx.Err(); err != nil {
		return StrategyResult{}, err
	}
	pos := make(map[string]int, len(texts))
	for i, t := range texts {
		pos[t] = i
	}
	var pairs []ScoredPair
	for _, c := range report.Clusters {
		for i := 0; i < len(c.Members); i++ {
			for j := i + 1; j < len(c.Members); j++ {
				a, b := c.Members[i], c.Members[j]
				pairs = append(pairs, ScoredPair{A: a, B: b, Similarity: sparseCosine(vecs[pos[a]], vecs[pos[b]])})
			}
		}
	}
	return StrategyResult{Pairs: pairs, Clusters: &report}, nil
}

// Cluster groups texts with average-linkage clustering cut at the configured
// cosine distance.
func (l *LexicalStrategy) Cluster(texts []string) ClusterReport {
	report, _ := l.cluster(texts)
	return report
}

func (l *LexicalStrategy) cluster(texts []string) (ClusterReport, []sparseVector) {
	vecs := newNgramVectorizer(l.cfg).fitTransform(texts)
	merges := averageLinkage(cosineDistances(vecs))
	labels := cutTree(len(texts), merges, l.cfg.DistanceThreshold)

	report := ClusterReport{InputCount: len(texts)}
	for i, id := range labels {
		if id == len(report.Clusters) {
			report.Clusters = append(report.Clusters, ProofCluster{ID: id})
		}
		report.Clusters[id].Members = append(report.Clusters[id].Members, texts[i])
	}
	report.ClusterCount = len(report.Clusters)
	for _, c := range report.Clusters {
		if len(c.Members) > 1 {
			report.FusionsDetected++
		}
	}
	if report.InputCount > 0 {
		report.ReductionRatio = 1 - float64(report.ClusterCount)/float64(report.InputCount)
	}
	return report, vecs
}
