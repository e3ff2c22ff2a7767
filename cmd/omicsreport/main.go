// Command omicsreport builds the m6A regulator report for one lineage and
// publishes its figures, workbook and index to the artifact store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"omicsreport/internal/blob"
	"omicsreport/internal/config"
	"omicsreport/internal/dataset"
	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/ledger"
	"omicsreport/internal/logging"
	"omicsreport/internal/metrics"
	"omicsreport/internal/render"
	"omicsreport/internal/report"
	"omicsreport/internal/samples"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

// app carries what every subcommand shares.
type app struct {
	stdout, stderr io.Writer
	getenv         func(string) string
	configPath     string
	verbose        bool
}

func cli(args []string, stdout, stderr io.Writer) int {
	return runCLI(args, stdout, stderr, os.Getenv)
}

func runCLI(args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	a := &app{stdout: stdout, stderr: stderr, getenv: getenv}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "omicsreport: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "omicsreport",
		Short:         "Exploratory m6A regulator report over DepMap/CCLE tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file (defaults apply when omitted)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.AddCommand(a.runCmd(), a.sectionsCmd(), a.genesCmd(), a.runsCmd())
	return root
}

func (a *app) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.configPath, a.getenv)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log, a.verbose, a.stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (a *app) runCmd() *cobra.Command {
	var (
		sections []string
		lineage  string
		contains bool
		format   string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and publish a report",
		Long: `Run the section catalog for one lineage. Sections run one at a time;
the first failing section stops the run and no index is published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if lineage != "" {
				cfg.Report.Lineage = lineage
			}
			if contains {
				cfg.Report.LineageMatch = samples.MatchContains
			}
			if format != "" {
				cfg.Report.Format = render.Format(strings.ToLower(format))
				if !cfg.Report.Format.Valid() {
					return fmt.Errorf("unsupported format %q", format)
				}
			}
			if len(sections) > 0 {
				cfg.Report.Sections = sections
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return a.run(ctx, cfg, log)
		},
	}
	cmd.Flags().StringSliceVarP(&sections, "section", "s", nil, "Section id to run (repeatable; default all)")
	cmd.Flags().StringVar(&lineage, "lineage", "", "Override the configured lineage")
	cmd.Flags().BoolVar(&contains, "contains", false, "Match lineages containing the pattern instead of equal to it")
	cmd.Flags().StringVar(&format, "format", "", "Figure format: png or svg")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long")
	return cmd
}

func (a *app) run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	selected, err := report.Select(report.DefaultSections(), cfg.Report.Sections)
	if err != nil {
		return err
	}
	data, err := blob.Open(ctx, cfg.Data)
	if err != nil {
		return fmt.Errorf("open data store: %w", err)
	}
	artifacts, err := blob.Open(ctx, cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	rec := metrics.New()
	provider, err := dataset.NewBlobProvider(data, cfg.Tables, dataset.WithLogger(log), dataset.WithObserver(rec))
	if err != nil {
		return err
	}
	runs, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = runs.Close() }()

	pub := report.NewPublisher(artifacts,
		report.WithPrefix(cfg.Report.Prefix),
		report.WithParallelism(cfg.Report.UploadParallelism),
		report.WithArtifactObserver(rec),
		report.WithPublisherLogger(log),
	)
	opts := []report.Option{
		report.WithLogger(log),
		report.WithMetrics(rec),
		report.WithLineage(cfg.Report.Lineage, cfg.Report.LineageMatch),
		report.WithFormat(cfg.Report.Format),
		report.WithLabels(map[string]string{"format": string(cfg.Report.Format)}),
	}
	if cfg.GeneInfo.Enabled {
		cache, err := geneinfo.OpenCache(cfg.GeneInfo.CachePath, cfg.GeneInfo.CacheTTL)
		if err != nil {
			return fmt.Errorf("open gene info cache: %w", err)
		}
		defer func() { _ = cache.Close() }()
		client := geneinfo.NewClient(cfg.GeneInfo.BaseURL,
			geneinfo.WithSpecies(cfg.GeneInfo.Species),
			geneinfo.WithBatchSize(cfg.GeneInfo.BatchSize),
			geneinfo.WithHTTPClient(&http.Client{Timeout: cfg.GeneInfo.Timeout}),
		)
		opts = append(opts, report.WithGeneInfo(geneinfo.NewCached(client, cache, log)))
	}

	res, err := report.NewRunner(provider, pub, runs, opts...).Run(ctx, selected)
	if err != nil {
		if res.Run.ID != "" {
			return fmt.Errorf("run %s: %w", res.Run.ID, err)
		}
		return err
	}
	index := res.IndexKey
	if art, ok := lo.Find(res.Run.Artifacts, func(x ledger.Artifact) bool { return x.Kind == report.KindIndex }); ok && art.URL != "" {
		index = art.URL
	}
	_, err = fmt.Fprintf(a.stdout, "run %s succeeded: %d sections, %d artifacts\nindex: %s\n",
		res.Run.ID, len(res.Run.Sections), len(res.Run.Artifacts), index)
	return err
}

func (a *app) sectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List the section catalog",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tMODE\tTABLES\tTITLE")
			for _, s := range report.DefaultSections() {
				tables := strings.Join(s.Tables(), ",")
				if tables == "" {
					tables = "-"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Mode, tables, s.Title)
			}
			return tw.Flush()
		},
	}
}

func (a *app) genesCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "genes",
		Short: "List the curated m6A regulators",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			set := genes.Curated()
			symbols := set.Symbols()
			if category != "" {
				c := genes.Category(strings.ToLower(category))
				if !c.Valid() {
					return fmt.Errorf("unknown category %q", category)
				}
				symbols = set.ByCategory(c)
			}
			for _, g := range symbols {
				c, _ := set.Category(g)
				if _, err := fmt.Fprintf(a.stdout, "%s\t%s\n", g, c); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list writing, erasing or reading genes")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show one as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			runs, err := ledger.Open(cmd.Context(), cfg.Ledger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = runs.Close() }()

			if len(args) == 1 {
				run, err := runs.Get(cmd.Context(), args[0])
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("no run %s", args[0])
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			list, err := runs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tLINEAGE\tSTARTED\tSECTIONS")
			for _, r := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Status, r.Lineage, r.StartedAt.Format(time.RFC3339), len(r.Sections))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
