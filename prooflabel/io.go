package prooflabel

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const utf8BOM = "\ufeff"

var proposalHeader = []string{"proof_A", "proof_B", "similarity", "already_merged_by_heuristic", "suggested_canonical"}

// InputParseOptions lets callers choose which columns hold the proof and the
// record id. Columns are header names or 1-based "#n" positions.
type InputParseOptions struct {
	IDColumn    string
	ProofColumn string
}

// InputFileMetadata provides header information and automatic column suggestions.
type InputFileMetadata struct {
	Columns   []string
	Suggested InputParseOptions
}

// ParseProofRecords reads proofs from a CSV/TSV file, or from a plain text
// file with one proof per line.
func ParseProofRecords(path string, opts InputParseOptions) ([]ProofRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseDelimitedRecords(path, ',', opts)
	case ".tsv":
		return parseDelimitedRecords(path, '\t', opts)
	default:
		return parsePlainTextRecords(path)
	}
}

// Proofs extracts the proof strings from records.
func Proofs(records []ProofRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Proof
	}
	return out
}

func parsePlainTextRecords(path string) ([]ProofRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	var out []ProofRecord
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := cleanCell(scanner.Text())
		if text == "" {
			continue
		}
		out = append(out, ProofRecord{RecordID: strconv.Itoa(line), Proof: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text file: %w", err)
	}
	return out, nil
}

func readDelimited(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	return rows, nil
}

func parseDelimitedRecords(path string, comma rune, opts InputParseOptions) ([]ProofRecord, error) {
	rows, err := readDelimited(path, comma)
	if err != nil {
		return nil, err
	}
	header := cleanHeader(rows[0])
	idCol, proofCol, skipHeader, err := resolveInputColumns(header, opts)
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	records := make([]ProofRecord, 0, len(rows)-start)
	for n, row := range rows[start:] {
		if proofCol >= len(row) {
			continue
		}
		rec := ProofRecord{Proof: cleanCell(row[proofCol])}
		if idCol >= 0 && idCol < len(row) {
			rec.RecordID = cleanCell(row[idCol])
		}
		if rec.RecordID == "" {
			rec.RecordID = strconv.Itoa(n + start + 1)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cleanHeader(row []string) []string {
	header := make([]string, len(row))
	for i, cell := range row {
		header[i] = cleanCell(cell)
	}
	return header
}

func cleanCell(v string) string {
	v = strings.TrimPrefix(v, utf8BOM)
	return strings.TrimSpace(v)
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

// resolveInputColumns picks the id and proof columns. Without a recognizable
// header the first column is taken as the proof and no row is skipped.
func resolveInputColumns(header []string, opts InputParseOptions) (idCol, proofCol int, skipHeader bool, err error) {
	candidates := getColumnCandidates()
	idCol, idFromHeader, err := pickColumn(header, opts.IDColumn, candidates.ID)
	if err != nil {
		return -1, -1, false, err
	}
	proofCol, proofFromHeader, err := pickColumn(header, opts.ProofColumn, candidates.Proof)
	if err != nil {
		return -1, -1, false, err
	}
	skipHeader = idFromHeader || proofFromHeader
	if proofCol < 0 {
		if skipHeader {
			return -1, -1, false, errors.New("no proof column found")
		}
		proofCol = 0
	}
	return idCol, proofCol, skipHeader, nil
}

func pickColumn(header []string, explicit string, candidates []string) (int, bool, error) {
	if strings.TrimSpace(explicit) != "" {
		return matchExplicitColumn(header, explicit)
	}
	if idx := findColumn(header, candidates); idx >= 0 {
		return idx, true, nil
	}
	return -1, false, nil
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	idx, err := strconv.Atoi(trimmed)
	if err != nil || trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

// ReadInputFileMetadata returns the header of a structured file and the
// columns auto-detection would pick.
func ReadInputFileMetadata(path string) (InputFileMetadata, error) {
	meta := InputFileMetadata{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".tsv" {
		return meta, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	if ext == ".tsv" {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return meta, nil
		}
		return meta, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	header := cleanHeader(row)
	meta.Columns = header
	if idCol, proofCol, _, err := resolveInputColumns(header, InputParseOptions{}); err == nil {
		meta.Suggested = InputParseOptions{
			IDColumn:    headerName(header, idCol),
			ProofColumn: headerName(header, proofCol),
		}
	}
	return meta, nil
}

func headerName(header []string, idx int) string {
	if idx < 0 {
		return ""
	}
	if idx < len(header) && header[idx] != "" {
		return header[idx]
	}
	return fmt.Sprintf("#%d", idx+1)
}

// WriteProposalsCSV writes the review table with a UTF-8 BOM so spreadsheet
// tools detect the encoding. Covered proposals are skipped unless
// includeCovered is set.
func WriteProposalsCSV(w io.Writer, proposals []MergeProposal, includeCovered bool) (int, error) {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(proposalHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	written := 0
	for _, p := range proposals {
		if p.AlreadyCovered && !includeCovered {
			continue
		}
		row := []string{
			p.ProofA,
			p.ProofB,
			strconv.FormatFloat(p.Similarity, 'f', 4, 64),
			strconv.FormatBool(p.AlreadyCovered),
			p.SuggestedCanonical,
		}
		if err := cw.Write(row); err != nil {
			return written, fmt.Errorf("write proposal: %w", err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flush proposals: %w", err)
	}
	return written, nil
}

// ReadProposalsCSV loads a table written by WriteProposalsCSV.
func ReadProposalsCSV(r io.Reader) ([]MergeProposal, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read proposals: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := cleanHeader(rows[0])
	cols := make([]int, len(proposalHeader))
	for i, name := range proposalHeader {
		cols[i] = findColumn(header, []string{name})
		if cols[i] < 0 && i < 2 {
			return nil, fmt.Errorf("proposals: missing column %s", name)
		}
	}
	cell := func(row []string, i int) string {
		if cols[i] < 0 || cols[i] >= len(row) {
			return ""
		}
		return cleanCell(row[cols[i]])
	}
	out := make([]MergeProposal, 0, len(rows)-1)
	for n, row := range rows[1:] {
		p := MergeProposal{ProofA: cell(row, 0), ProofB: cell(row, 1), SuggestedCanonical: cell(row, 4)}
		if p.ProofA == "" || p.ProofB == "" {
			continue
		}
		if s := cell(row, 2); s != "" {
			if p.Similarity, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("proposals row %d: similarity: %w", n+2, err)
			}
		}
		if s := cell(row, 3); s != "" {
			if p.AlreadyCovered, err = strconv.ParseBool(s); err != nil {
				return nil, fmt.Errorf("proposals row %d: already_merged_by_heuristic: %w", n+2, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteClustersCSV writes one row per proof with its cluster id.
func WriteClustersCSV(w io.Writer, report ClusterReport) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"raw", "cluster"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range report.Clusters {
		for _, m := range c.Members {
			if err := cw.Write([]string{m, strconv.Itoa(c.ID)}); err != nil {
				return fmt.Errorf("write cluster row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResolutionsCSV writes canonicalization results.
func WriteResolutionsCSV(w io.Writer, results []Resolution) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"record_id", "raw", "label", "source", "score", "bucket"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		score := ""
		if r.Source == SourceFuzzy {
			score = strconv.FormatFloat(r.Score, 'f', 4, 64)
		}
		if err := cw.Write([]string{r.RecordID, r.Raw, r.Label, string(r.Source), score, r.Bucket}); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// RunArtifacts lists the files ExportRun produced.
type RunArtifacts struct {
	Proposals string
	Clusters  string
	Report    string
	Written   int
}

// ExportRun writes the proposals table, the cluster membership (when the run
// clustered) and the run report into dir.
func ExportRun(dir string, run *MiningRun, includeCovered bool) (RunArtifacts, error) {
	var art RunArtifacts
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return art, fmt.Errorf("create output dir: %w", err)
	}
	stamp := run.StartedAt.Format("20060102_150405")

	art.Proposals = filepath.Join(dir, "fusion_proposals_"+stamp+".csv")
	if err := writeFile(art.Proposals, func(w io.Writer) error {
		n, err := WriteProposalsCSV(w, run.Proposals, includeCovered)
		art.Written = n
		return err
	}); err != nil {
		return art, err
	}
	if run.Clusters != nil {
		art.Clusters = filepath.Join(dir, "proof_clusters_"+stamp+".csv")
		if err := writeFile(art.Clusters, func(w io.Writer) error { return WriteClustersCSV(w, *run.Clusters) }); err != nil {
			return art, err
		}
	}
	art.Report = filepath.Join(dir, "mining_run_"+stamp+".json")
	if err := writeFile(art.Report, func(w io.Writer) error { return WriteJSON(w, run) }); err != nil {
		return art, err
	}
	return art, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
