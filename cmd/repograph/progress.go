package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/ingestion"
	"github.com/rohankatakam/repograph/internal/models"
)

var progressCmd = &cobra.Command{
	Use:   "progress [repository-id]",
	Short: "Show analysis progress",
	Long: `Shows the latest analysis run of a repository, or of every repository when
no id is given. Safe to run while an analysis is in progress.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProgress,
}

func runProgress(cmd *cobra.Command, args []string) error {
	store, err := ingestion.NewBoltProgressStore(cfg.Pipeline.ProgressPath)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		p, ok := ingestion.NewProgressTracker(store, logger).Get(args[0])
		if !ok {
			return fmt.Errorf("no analysis recorded for repository %s", args[0])
		}
		return printResult(p, func() { printProgress(p) })
	}

	all, err := store.List()
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastUpdated.After(all[j].LastUpdated) })

	return printResult(all, func() {
		if len(all) == 0 {
			fmt.Println("No analyses recorded")
			return
		}
		for i, p := range all {
			if i > 0 {
				fmt.Println()
			}
			printProgress(p)
		}
	})
}

func printProgress(p *models.AnalysisProgress) {
	fmt.Printf("Repository %s (run %s)\n", p.RepositoryID, p.RunID)
	fmt.Printf("  Status:  %s  %.0f%%\n", p.Status, p.ProgressPercent)
	fmt.Printf("  Step:    %d/%d %s\n", p.CurrentStep, p.TotalSteps, p.StepName)
	if p.StatusMessage != "" {
		fmt.Printf("  Message: %s\n", p.StatusMessage)
	}
	fmt.Printf("  Updated: %s\n", p.LastUpdated.Format(time.RFC3339))

	if errs, ok := p.Details[ingestion.DetailErrors].(map[string]interface{}); ok && len(errs) > 0 {
		fmt.Println("  Errors:")
		for step, msg := range errs {
			fmt.Printf("    %s: %v\n", step, msg)
		}
	}
}
