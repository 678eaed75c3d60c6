package app

import (
	"fmt"
	"strings"

	"github.com/Antho-TB/veille/prooflabel"
)

type tableColumn struct {
	Title  string
	Width  float32
	Render func(ProposalRow) string
}

func proposalColumns() []tableColumn {
	return []tableColumn{
		{Title: "Preuve A", Width: 300, Render: func(r ProposalRow) string { return r.Proposal.ProofA }},
		{Title: "Preuve B", Width: 300, Render: func(r ProposalRow) string { return r.Proposal.ProofB }},
		{Title: "Similarité", Width: 90, Render: func(r ProposalRow) string { return fmt.Sprintf("%.3f", r.Proposal.Similarity) }},
		{Title: "Libellé proposé", Width: 220, Render: func(r ProposalRow) string { return r.Canonical }},
		{Title: "Stratégies", Width: 120, Render: func(r ProposalRow) string { return strings.Join(r.Proposal.Strategies, ",") }},
		{Title: "Statut", Width: 100, Render: func(r ProposalRow) string { return statusLabel(r) }},
	}
}

func statusLabel(r ProposalRow) string {
	switch r.Status {
	case StatusApproved:
		return "Fusionnée"
	case StatusRejected:
		return "Rejetée"
	}
	if r.Proposal.AlreadyCovered {
		return "Déjà couverte"
	}
	return "À revoir"
}

func formatResolution(res prooflabel.Resolution, ok bool) string {
	if !ok {
		return "Aucun libellé (preuve vide ou non spécifiée)"
	}
	out := fmt.Sprintf("%s\nsource : %s / famille : %s", res.Label, res.Source, res.Bucket)
	if res.Source == prooflabel.SourceFuzzy {
		out += fmt.Sprintf(" (score %.2f)", res.Score)
	}
	return out
}

func formatRunSummary(run *prooflabel.MiningRun) string {
	m := run.Metrics
	summary := fmt.Sprintf("%d preuves / %d propositions (%d nouvelles)", m.InputSize, m.Proposals, m.NewFusionsSuggested)
	if run.Clusters != nil {
		summary += fmt.Sprintf(" / %d clusters (réduction %.1f%%)", m.NClusters, m.ReductionRate*100)
	}
	if m.SkippedArbitrated > 0 {
		summary += fmt.Sprintf(" / %d déjà arbitrées", m.SkippedArbitrated)
	}
	return summary
}

func formatConfigSummary(cfg prooflabel.Config, decisions int) string {
	return fmt.Sprintf("Stratégies : %s / Jaccard > %.2f / distance < %.2f / cosinus ≥ %.2f / arbitrage : %s (%d décisions)",
		strings.Join(cfg.Miner.Strategies, "+"),
		cfg.FuzzyThreshold,
		cfg.Miner.Lexical.DistanceThreshold,
		cfg.Miner.Semantic.Threshold,
		cfg.Arbitration.Backend,
		decisions,
	)
}
