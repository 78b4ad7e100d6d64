package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/inference"
	"github.com/rohankatakam/repograph/internal/ingestion"
	"github.com/rohankatakam/repograph/internal/plugins"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repository-id>",
	Short: "Run the analysis pipeline and rebuild a repository graph",
	Long: `Runs every producer, the configured plugins and relationship inference
over a registered repository, then reconciles the stored graph with the result.

Only one analysis of a repository can run at a time, across every process
sharing the progress file. Progress can be followed
from another terminal with 'repograph progress <repository-id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var noPlugins bool

func init() {
	analyzeCmd.Flags().BoolVar(&noPlugins, "no-plugins", false, "skip external analyzer plugins")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(config.ValidationContextAnalyze)
	if err != nil {
		return err
	}
	defer store.Close()

	progressStore, err := ingestion.NewBoltProgressStore(cfg.Pipeline.ProgressPath)
	if err != nil {
		return err
	}
	tracker := ingestion.NewProgressTracker(progressStore, logger)
	tracker.Cleanup(cfg.Pipeline.ProgressRetention)

	reg := prometheus.NewRegistry()
	metrics, err := ingestion.NewMetrics(reg)
	if err != nil {
		return err
	}

	registry := entity.NewRegistry()
	analysis.RegisterBuiltins(registry, logger, analysis.Options{
		MaxFileSize: cfg.Pipeline.MaxFileSize,
		Workers:     cfg.Pipeline.Workers,
	})

	engine := inference.NewEngine(logger, inference.Options{
		MinConfidence: cfg.Inference.MinConfidence,
		ContextLines:  cfg.Inference.ContextLines,
		MaxFileSize:   cfg.Pipeline.MaxFileSize,
		Workers:       cfg.Pipeline.Workers,
	})
	builder := graph.NewBuilder(store, logger, cfg.Inference.MinConfidence)

	orch := ingestion.NewOrchestrator(store, registry, engine, builder, tracker, metrics, logger).
		WithWorkers(cfg.Pipeline.Workers).
		WithRunLock(progressStore)

	if !noPlugins {
		orch.WithPlugins(plugins.NewAdapter(plugins.Options{
			Directory:       cfg.Plugins.Directory,
			Timeout:         cfg.Plugins.Timeout,
			SpawnsPerSecond: cfg.Plugins.SpawnsPerSecond,
			Workers:         cfg.Pipeline.Workers,
			OnFailure:       metrics.PluginFailed,
		}, logger))
	}

	if cfg.Neo4j.Enabled {
		mirror, err := graph.NewNeo4jMirror(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mirror.Close(closeCtx)
		}()
		orch.WithMirror(mirror)
	}

	result, runErr := orch.RunAnalysis(ctx, args[0])

	if cfg.Pipeline.MetricsFile != "" {
		if err := ingestion.WriteTextfile(cfg.Pipeline.MetricsFile, reg); err != nil {
			logger.WithError(err).Warn("failed to write metrics file")
		}
	}

	if result == nil {
		return runErr
	}
	if err := printResult(result, func() { printRunResult(result) }); err != nil {
		return err
	}
	return runErr
}

func printRunResult(r *ingestion.RunResult) {
	fmt.Printf("Analysis %s: %s (%s)\n", r.RunID, r.Status, r.Duration.Round(time.Millisecond))
	fmt.Println()
	for _, s := range r.Steps {
		status := "ok"
		if s.Error != "" {
			status = "FAILED: " + s.Error
		}
		fmt.Printf("  %-24s %4d entities %4d skipped  %s\n", s.Name, s.Entities, s.Skipped, status)
	}

	if r.Inference != nil {
		fmt.Printf("\nInference: %d candidates\n", r.Inference.Candidates)
	}
	if b := r.Build; b != nil {
		fmt.Println("\nGraph:")
		fmt.Printf("  Nodes: %d created, %d updated, %d unchanged, %d removed\n", b.NodesCreated, b.NodesUpdated, b.NodesUnchanged, b.NodesRemoved)
		fmt.Printf("  Edges: %d created, %d updated, %d unchanged, %d removed\n", b.EdgesCreated, b.EdgesUpdated, b.EdgesUnchanged, b.EdgesRemoved)
		if b.DroppedCandidates > 0 {
			fmt.Printf("  Dropped below confidence threshold: %d\n", b.DroppedCandidates)
		}
	}

	if len(r.Errors) > 0 {
		steps := make([]string, 0, len(r.Errors))
		for step := range r.Errors {
			steps = append(steps, step)
		}
		sort.Strings(steps)
		fmt.Println("\nErrors:")
		for _, step := range steps {
			fmt.Printf("  %s: %s\n", step, r.Errors[step])
		}
	}
}
