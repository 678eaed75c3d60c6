package prooflabel

import "sync"

// ColumnCandidates defines possible header names for auto-detecting CSV/TSV columns.
type ColumnCandidates struct {
	Proof []string `json:"proof,omitempty" yaml:"proof,omitempty"`
	ID    []string `json:"id,omitempty" yaml:"id,omitempty"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Proof: []string{
			"Preuve de Conformité Attendue", "Preuves de Conformité Attendues", "Preuve attendue",
			"Preuve", "preuve", "proof", "proof_A", "raw",
		},
		ID: []string{"id", "ID", "CELEX", "NOR", "Référence", "reference", "Identifiant", "record_id"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the candidates used during auto-detection.
// Fields left nil fall back to the built-in defaults.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

// ActiveColumnCandidates returns the candidates currently used for detection.
func ActiveColumnCandidates() ColumnCandidates {
	return getColumnCandidates()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Proof: pickStrings(c.Proof, defaults.Proof),
		ID:    pickStrings(c.ID, defaults.ID),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Proof: cloneStrings(c.Proof),
		ID:    cloneStrings(c.ID),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
