package app

import "github.com/Antho-TB/veille/prooflabel"

const (
	fyneAppID    = "fr.antho-tb.veille.review"
	logLineLimit = 300
)

// RowStatus tracks what the reviewer did with a proposal.
type RowStatus string

const (
	StatusPending  RowStatus = ""
	StatusApproved RowStatus = "approved"
	StatusRejected RowStatus = "rejected"
)

// ProposalRow is one line of the review table.
type ProposalRow struct {
	Proposal  prooflabel.MergeProposal
	Status    RowStatus
	Canonical string
}

var strategyChoices = []struct {
	Value string
	Label string
}{
	{Value: prooflabel.StrategyLexical, Label: "Lexical (n-grammes)"},
	{Value: prooflabel.StrategySemantic, Label: "Sémantique (embeddings)"},
}
