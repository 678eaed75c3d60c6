package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Antho-TB/veille/prooflabel"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgWhite)
)

var sourceColors = map[prooflabel.Source]*color.Color{
	prooflabel.SourceArbitration: color.New(color.FgMagenta),
	prooflabel.SourceTaxonomy:    color.New(color.FgGreen),
	prooflabel.SourceFuzzy:       color.New(color.FgYellow),
	prooflabel.SourceFallback:    color.New(color.FgRed),
}

func printSourceSummary(results []prooflabel.Resolution) {
	counts := make(map[prooflabel.Source]int)
	for _, r := range results {
		counts[r.Source]++
	}
	order := []prooflabel.Source{
		prooflabel.SourceArbitration,
		prooflabel.SourceTaxonomy,
		prooflabel.SourceFuzzy,
		prooflabel.SourceFallback,
	}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, sourceColors[s].Sprintf("%s=%d", s, counts[s]))
	}
	fmt.Printf("  %s\n", strings.Join(parts, "  "))
}

func printResolutions(results []prooflabel.Resolution) {
	fmt.Println()
	headerColor.Println("==== Resolutions ====")
	for i, r := range results {
		id := r.RecordID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		fmt.Printf("%s. %s\n", id, summarize(r.Raw, 60))
		line := fmt.Sprintf("    → %s [%s]", r.Label, r.Source)
		if r.Source == prooflabel.SourceFuzzy {
			line += fmt.Sprintf(" (score=%.3f)", r.Score)
		}
		sourceColors[r.Source].Println(line)
	}
}

func printBuckets(rows []prooflabel.BucketCount) {
	fmt.Println()
	headerColor.Println("==== Buckets ====")
	for _, row := range rows {
		fmt.Printf("  %-28s %d\n", row.Bucket, row.Count)
	}
}

func printRunSummary(run *prooflabel.MiningRun, art prooflabel.RunArtifacts, elapsed time.Duration) {
	headerColor.Printf("Mining run %s\n", run.ID)
	fmt.Printf("  Proofs:        %d\n", run.Metrics.InputSize)
	if run.Clusters != nil {
		fmt.Printf("  Clusters:      %d (reduction %.1f%%, %d fusions)\n",
			run.Metrics.NClusters, run.Metrics.ReductionRate*100, run.Metrics.FusionsDetected)
	}
	fmt.Printf("  Proposals:     %d (%d new", run.Metrics.Proposals, run.Metrics.NewFusionsSuggested)
	if run.Metrics.SkippedArbitrated > 0 {
		fmt.Printf(", %d already arbitrated", run.Metrics.SkippedArbitrated)
	}
	fmt.Println(")")
	fmt.Printf("  Duration:      %s\n", elapsed.Round(time.Millisecond))
	for _, d := range run.Diagnostics {
		warnColor.Printf("  ! %s: %s\n", d.Strategy, d.Message)
	}
	successColor.Printf("Proposals → %s (%d rows)\n", art.Proposals, art.Written)
	if art.Clusters != "" {
		fmt.Printf("Clusters  → %s\n", art.Clusters)
	}
	fmt.Printf("Report    → %s\n", art.Report)
}

func printDecisions(decisions []prooflabel.Decision) {
	if len(decisions) == 0 {
		dimColor.Println("No decisions recorded.")
		return
	}
	headerColor.Printf("==== %d decisions ====\n", len(decisions))
	for _, d := range decisions {
		when := d.DecidedAt.Local().Format("2006-01-02 15:04")
		switch d.Verdict {
		case prooflabel.VerdictApproved:
			successColor.Printf("%s  approved  %q + %q → %q\n", when, d.ProofA, d.ProofB, d.Canonical)
		default:
			warnColor.Printf("%s  rejected  %q / %q\n", when, d.ProofA, d.ProofB)
		}
	}
}

func printMetrics(ctx context.Context, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return err
	}
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s{%s} %d", m.Name, encodeAttrs(dp.Attributes), dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s{%s} count=%d sum=%.3f", m.Name, encodeAttrs(dp.Attributes), dp.Count, dp.Sum))
				}
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}
	sort.Strings(lines)
	fmt.Println()
	headerColor.Println("==== Metrics ====")
	for _, l := range lines {
		fmt.Println("  " + l)
	}
	return nil
}

func encodeAttrs(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}

func summarize(text string, limit int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "(empty)"
	}
	r := []rune(text)
	if len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return text
}
