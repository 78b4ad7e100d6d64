package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/ingestion"
	"github.com/rohankatakam/repograph/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the graph queries as MCP tools over stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing
get_graph, get_statistics, get_neighbors, refactoring_impact and
get_analysis_progress. All tools are read-only.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(config.ValidationContextQuery)
	if err != nil {
		return err
	}
	defer store.Close()

	progressStore, err := ingestion.NewBoltProgressStore(cfg.Pipeline.ProgressPath)
	if err != nil {
		return err
	}

	server := mcp.NewServer(
		graph.NewQueryEngine(store, logger),
		ingestion.NewProgressTracker(progressStore, logger),
		impactLimits(),
		Version,
		logger,
	)
	return server.Run(ctx)
}
