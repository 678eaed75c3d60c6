package app

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/Antho-TB/veille/prooflabel"
)

type csvColumnChoice struct {
	Index int
	Label string
}

func splitNonEmptyLines(s string) []string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	lines := make([]string, 0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func readCSVRecords(data []byte, delim rune) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("le fichier CSV est vide")
	}
	return records, nil
}

func extractCSVColumn(records [][]string, idx int, hasHeader bool) []string {
	start := 0
	if hasHeader {
		start = 1
	}
	res := make([]string, 0, len(records))
	for i := start; i < len(records); i++ {
		row := records[i]
		if idx >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[idx])
		if val != "" {
			res = append(res, val)
		}
	}
	return res
}

func buildCSVColumnChoices(records [][]string, hasHeader bool) []csvColumnChoice {
	maxCols := 0
	for _, row := range records {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}
	choices := make([]csvColumnChoice, 0, maxCols)
	for col := 0; col < maxCols; col++ {
		header := fmt.Sprintf("Colonne %d", col+1)
		if hasHeader && len(records) > 0 && col < len(records[0]) {
			h := strings.TrimSpace(records[0][col])
			if h != "" {
				header = h
			}
		}
		sample := csvColumnSample(records, col, hasHeader)
		label := fmt.Sprintf("[%d] %s", col+1, header)
		if sample != "" {
			label = fmt.Sprintf("%s (ex : %s)", label, sample)
		}
		choices = append(choices, csvColumnChoice{Index: col, Label: label})
	}
	return choices
}

func csvColumnSample(records [][]string, col int, hasHeader bool) string {
	start := 0
	if hasHeader {
		start = 1
	}
	for i := start; i < len(records); i++ {
		row := records[i]
		if col >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[col])
		if val == "" {
			continue
		}
		return truncateRunes(val, 20)
	}
	return ""
}

func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// detectProofColumn returns the index of the first header matching a proof
// column candidate, or -1.
func detectProofColumn(header []string) int {
	if len(header) == 0 {
		return -1
	}
	candidates := prooflabel.ActiveColumnCandidates().Proof
	for _, c := range candidates {
		want := prooflabel.FoldAccents(prooflabel.NormalizeText(c))
		for idx, h := range header {
			if prooflabel.FoldAccents(prooflabel.NormalizeText(strings.TrimPrefix(h, "\ufeff"))) == want {
				return idx
			}
		}
	}
	return -1
}
