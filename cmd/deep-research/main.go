package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/analyst"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/indexer"
	"github.com/mikeboe/deep-research/pkg/report"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

var (
	interactive   bool
	saveTo        string
	noSave        bool
	markdownTo    string
	configPath    string
	maxIterations int
	indexSources  bool
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deep-research [query]",
		Short: "Iterative web research from the terminal",
		Long: `deep-research expands a question into search queries, searches, scores every new source,
synthesizes a draft report and repeats on the remaining gaps until it is confident enough.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the research query")
	rootCmd.Flags().StringVarP(&saveTo, "save-to", "o", "", "Report file name (default: derived from the query)")
	rootCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the JSON report")
	rootCmd.Flags().StringVar(&markdownTo, "markdown", "", "Also write the report as markdown to this file")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML file overriding environment settings")
	rootCmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Override the maximum number of iterations")
	rootCmd.Flags().BoolVar(&indexSources, "index", false, "Index the retained sources into the vector store (needs DATABASE_URL)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	query, err := readQuery(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if maxIterations > 0 {
		cfg.MaxIterations = maxIterations
	}
	if err := cfg.RequireKeys(); err != nil {
		return err
	}
	rc, err := cfg.Research()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models, err := clients.New(ctx, cfg)
	if err != nil {
		return err
	}
	searcher, err := tools.FromConfig(cfg)
	if err != nil {
		return err
	}
	a := analyst.New(models.Reasoning, models.Fast)
	a.SnippetLength = cfg.ContentSnippetLength

	engine, err := research.NewEngine(rc, a.Collaborator(searcher))
	if err != nil {
		return err
	}
	engine.Logger = logger

	r, runErr := engine.Run(ctx, query)
	if r == nil {
		return runErr
	}
	// Interrupted runs still print and save what was gathered.
	if runErr != nil {
		logger.Warn("Research interrupted", "error", runErr)
	}

	report.PrintSummary(os.Stdout, r)

	if !noSave {
		path, err := report.Save(r, saveTo)
		if err != nil {
			return err
		}
		fmt.Printf("\nReport saved to %s\n", path)
	}
	if markdownTo != "" {
		if err := os.WriteFile(markdownTo, []byte(report.RenderMarkdown(r)), 0o644); err != nil {
			return fmt.Errorf("failed to write markdown report: %w", err)
		}
		fmt.Printf("Markdown report saved to %s\n", markdownTo)
	}

	if indexSources {
		if err := index(context.WithoutCancel(ctx), cfg, r, logger); err != nil {
			return err
		}
	}

	if r.Reason.Failed() {
		return fmt.Errorf("research ended early: %s", r.Reason)
	}
	return nil
}

func readQuery(args []string) (string, error) {
	if len(args) == 1 && !interactive {
		if q := strings.TrimSpace(args[0]); q != "" {
			return q, nil
		}
		return "", research.ErrEmptySeed
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter your research query: ")
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	q := strings.TrimSpace(input)
	if q == "" {
		return "", research.ErrEmptySeed
	}
	return q, nil
}

func index(ctx context.Context, cfg *config.Config, r *research.FinalReport, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("--index needs DATABASE_URL")
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ret, err := indexer.FromConfig(ctx, cfg, db)
	if err != nil {
		return err
	}
	ret.Indexer.Logger = logger

	stats, err := ret.Indexer.Index(ctx, r)
	if err != nil {
		return fmt.Errorf("failed to index sources: %w", err)
	}
	fmt.Printf("Indexed %d sources (%d chunks, %d already indexed, %d failed)\n", stats.Indexed, stats.Chunks, stats.Skipped, stats.Failed)
	return nil
}
