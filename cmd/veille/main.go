package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Antho-TB/veille/internal/logging"
	"github.com/Antho-TB/veille/prooflabel"
)

var version = "0.3.0"

type globalOptions struct {
	configPath string
	logLevel   string
	metrics    bool
	// logOut receives log records; stdout is reserved for command output.
	logOut io.Writer
}

func (o *globalOptions) logWriter() io.Writer {
	if o.logOut != nil {
		return o.logOut
	}
	return os.Stderr
}

// env bundles what every subcommand needs once the configuration is loaded.
type env struct {
	cfg    prooflabel.Config
	logger *slog.Logger
	svc    *prooflabel.Service
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
}

func main() {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "veille",
		Short: "Canonicalize and deduplicate regulatory compliance proofs",
		Long: `Veille maps the free-text "expected proof of compliance" of each
regulatory record onto a short canonical label.

It provides:
  - Canonicalization through arbitration, taxonomy and fuzzy matching
  - An offline miner proposing near-duplicate proofs for review
  - Human approve/reject decisions that override the heuristics
  - Bucket reports for dashboards`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.json or config.yaml (default: $VEILLE_CONFIG or ./config.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "Print the collected counters when the command finishes")

	rootCmd.AddCommand(initCmd(opts))
	rootCmd.AddCommand(canonicalizeCmd(opts))
	rootCmd.AddCommand(mineCmd(opts))
	rootCmd.AddCommand(approveCmd(opts))
	rootCmd.AddCommand(rejectCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "veille: %v\n", err)
		os.Exit(1)
	}
}

func openEnv(ctx context.Context, opts *globalOptions) (*env, error) {
	cfg, err := prooflabel.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := logging.NewWithWriter(opts.logWriter(), cfg.LogLevel)

	e := &env{cfg: cfg, logger: logger}
	var svcOpts []prooflabel.Option
	if opts.metrics {
		e.reader = sdkmetric.NewManualReader()
		e.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(e.reader))
		m, err := prooflabel.NewMetrics(e.mp.Meter("veille"))
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		svcOpts = append(svcOpts, prooflabel.WithMetrics(m))
	}
	svc, err := prooflabel.NewService(ctx, cfg, logger, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("init service: %w", err)
	}
	e.svc = svc
	return e, nil
}

func (e *env) close(ctx context.Context) {
	if e.reader != nil {
		if err := printMetrics(ctx, e.reader); err != nil {
			e.logger.Warn("collect metrics", "error", err)
		}
		_ = e.mp.Shutdown(ctx)
	}
	if err := e.svc.Close(); err != nil {
		e.logger.Warn("close service", "error", err)
	}
}

func initCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration and taxonomy file",
		Long: `Write the default configuration to --config (or config.json) and,
when taxonomyPath is set, the built-in taxonomy so it can be edited.

Existing files are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := prooflabel.ResolveConfigPath(opts.configPath)
			cfg, err := prooflabel.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if cfg.TaxonomyPath == "" {
					cfg.TaxonomyPath = "data/taxonomy.json"
				}
				if err := prooflabel.SaveConfig(path, cfg); err != nil {
					return err
				}
				fmt.Printf("Wrote configuration: %s\n", path)
			} else {
				fmt.Printf("Configuration already present: %s\n", path)
			}
			if err := prooflabel.EnsureTaxonomyFile(cfg.TaxonomyPath); err != nil {
				return err
			}
			if cfg.TaxonomyPath != "" {
				fmt.Printf("Taxonomy: %s\n", cfg.TaxonomyPath)
			}
			return nil
		},
	}
}

func canonicalizeCmd(opts *globalOptions) *cobra.Command {
	var (
		input      string
		output     string
		outputDir  string
		reportPath string
		inputOpts  prooflabel.InputParseOptions
		stdout     bool
	)
	cmd := &cobra.Command{
		Use:   "canonicalize",
		Short: "Resolve every proof of a record file to its canonical label",
		Long: `Resolve every proof of a CSV/TSV (or plain text) file and write a
results CSV with the label, its source and its reporting bucket.

Example:
  veille canonicalize --input veille.csv
  veille canonicalize --input veille.csv --proof-column "Preuve attendue" --report buckets.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("--input flag is required")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			records, err := prooflabel.ParseProofRecords(input, inputOpts)
			if err != nil {
				return fmt.Errorf("read input records: %w", err)
			}
			if len(records) == 0 {
				return errors.New("input file does not contain any proofs")
			}
			results := e.svc.CanonicalizeAll(records)

			path, err := resolveOutputPath(output, outputDir, "canonical")
			if err != nil {
				return err
			}
			if err := writeCSVFile(path, func(f *os.File) error { return prooflabel.WriteResolutionsCSV(f, results) }); err != nil {
				return err
			}
			successColor.Printf("Resolved %d of %d proofs → %s\n", len(results), len(records), path)
			printSourceSummary(results)

			rows := e.svc.Buckets().Aggregate(labelsOf(results))
			if reportPath != "" {
				report := prooflabel.Report(rows, e.cfg.ReportTopN)
				if err := writeJSONFile(reportPath, report); err != nil {
					return err
				}
				fmt.Printf("Bucket report → %s\n", reportPath)
			}
			if stdout {
				printResolutions(results)
				printBuckets(rows)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV/TSV/text file containing the proofs")
	cmd.Flags().StringVar(&output, "output", "", "CSV file to write results (default uses --output-dir/canonical_*.csv)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "csv", "Directory where result CSVs are written when --output is omitted")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write the bucket report JSON to this path")
	cmd.Flags().StringVar(&inputOpts.ProofColumn, "proof-column", "", "Column name or #index holding the proof")
	cmd.Flags().StringVar(&inputOpts.IDColumn, "id-column", "", "Column name or #index holding the record id")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the resolutions and buckets to STDOUT")
	return cmd
}

func mineCmd(opts *globalOptions) *cobra.Command {
	var (
		input          string
		outputDir      string
		inputOpts      prooflabel.InputParseOptions
		all            bool
		keepArbitrated bool
		strategies     []string
		noEmbedder     bool
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Propose near-duplicate proofs for human review",
		Long: `Run the offline miner over every distinct proof of a record file.

The lexical strategy clusters word n-grams; the semantic strategy
compares sentence embeddings. A strategy that cannot run is reported as a
diagnostic and the other one still contributes.

Example:
  veille mine --input veille.csv
  veille mine --input veille.csv --strategies lexical --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("--input flag is required")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			records, err := prooflabel.ParseProofRecords(input, inputOpts)
			if err != nil {
				return fmt.Errorf("read input records: %w", err)
			}

			minerCfg := e.cfg.Miner
			if len(strategies) > 0 {
				minerCfg.Strategies = strategies
			}
			if cmd.Flags().Changed("keep-arbitrated") {
				minerCfg.KeepArbitrated = keepArbitrated
			}
			includeCovered := minerCfg.IncludeCovered || all
			if cmd.Flags().Changed("output-dir") || minerCfg.OutputDir == "" {
				minerCfg.OutputDir = outputDir
			}

			var embedder prooflabel.Embedder
			if !noEmbedder && containsString(minerCfg.Strategies, prooflabel.StrategySemantic) {
				embedder, err = prooflabel.NewEmbedder(e.cfg.Embedder, e.logger)
				if err != nil {
					e.logger.Warn("embedder unavailable", "error", err)
					embedder = nil
				} else {
					defer embedder.Close()
				}
			}
			modelID := ""
			if embedder != nil {
				modelID = embedder.ModelID()
			}

			miner := prooflabel.NewMiner(minerCfg, modelID, prooflabel.NewDefaultRegistry(minerCfg, embedder), e.svc, e.logger)
			start := time.Now()
			run, err := miner.Run(ctx, prooflabel.Proofs(records))
			if err != nil {
				return fmt.Errorf("mine: %w", err)
			}
			art, err := prooflabel.ExportRun(minerCfg.OutputDir, run, includeCovered)
			if err != nil {
				return fmt.Errorf("export run: %w", err)
			}
			printRunSummary(run, art, time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV/TSV/text file containing the proofs")
	cmd.Flags().StringVar(&outputDir, "output-dir", "csv", "Directory for the proposals, clusters and run report")
	cmd.Flags().StringVar(&inputOpts.ProofColumn, "proof-column", "", "Column name or #index holding the proof")
	cmd.Flags().StringVar(&inputOpts.IDColumn, "id-column", "", "Column name or #index holding the record id")
	cmd.Flags().BoolVar(&all, "all", false, "Export proposals the heuristics already cover as well")
	cmd.Flags().BoolVar(&keepArbitrated, "keep-arbitrated", false, "Keep pairs that already have a decision")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Strategies to run, in order (lexical, semantic)")
	cmd.Flags().BoolVar(&noEmbedder, "no-embedder", false, "Do not load an embedder; the semantic strategy is reported as skipped")
	return cmd
}

func approveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <proof-a> <proof-b> <canonical>",
		Short: "Record that two proofs mean the same thing",
		Long: `Record an approved decision: both proofs resolve to the canonical
label from now on, whatever the heuristics say.

Example:
  veille approve "Registre des déchets" "Registre déchets dangereux" "Registre déchets"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			d, err := e.svc.Approve(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			successColor.Printf("Approved: %q + %q → %q\n", d.ProofA, d.ProofB, d.Canonical)
			return nil
		},
	}
}

func rejectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <proof-a> <proof-b>",
		Short: "Record that two proofs must stay distinct",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			d, err := e.svc.Reject(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			warnColor.Printf("Rejected: %q / %q\n", d.ProofA, d.ProofB)
			return nil
		},
	}
}

func historyCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded arbitration decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			decisions := e.svc.Store().Decisions()
			if asJSON {
				return prooflabel.WriteJSON(os.Stdout, decisions)
			}
			printDecisions(decisions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print decisions as JSON")
	return cmd
}

func reportCmd(opts *globalOptions) *cobra.Command {
	var (
		input     string
		inputOpts prooflabel.InputParseOptions
		topN      int
		output    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Count canonical labels per reporting bucket",
		Long: `Canonicalize a record file and print the {labels, values} bucket
report used by dashboards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("--input flag is required")
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, opts)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			records, err := prooflabel.ParseProofRecords(input, inputOpts)
			if err != nil {
				return fmt.Errorf("read input records: %w", err)
			}
			if topN <= 0 {
				topN = e.cfg.ReportTopN
			}
			rows := e.svc.Buckets().Aggregate(labelsOf(e.svc.CanonicalizeAll(records)))
			report := prooflabel.Report(rows, topN)
			if output != "" {
				if err := writeJSONFile(output, report); err != nil {
					return err
				}
				fmt.Printf("Bucket report → %s\n", output)
				return nil
			}
			return prooflabel.WriteJSON(os.Stdout, report)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "CSV/TSV/text file containing the proofs")
	cmd.Flags().StringVar(&inputOpts.ProofColumn, "proof-column", "", "Column name or #index holding the proof")
	cmd.Flags().StringVar(&inputOpts.IDColumn, "id-column", "", "Column name or #index holding the record id")
	cmd.Flags().IntVar(&topN, "top", 0, "Keep only the N largest buckets (default: reportTopN)")
	cmd.Flags().StringVar(&output, "output", "", "Write the report to this file instead of STDOUT")
	return cmd
}

func resolveOutputPath(path, dir, prefix string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.csv", prefix, time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func writeCSVFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := prooflabel.WriteJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func labelsOf(results []prooflabel.Resolution) []string {
	labels := make([]string, len(results))
	for i, r := range results {
		labels[i] = r.Label
	}
	return labels
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
