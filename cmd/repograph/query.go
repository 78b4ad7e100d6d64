package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph <repository-id>",
	Short: "Print every node and edge of a repository graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

var statsCmd = &cobra.Command{
	Use:   "stats <repository-id>",
	Short: "Show node and edge counts and the most connected nodes",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <node-id>",
	Short: "List the nodes one edge away from a node",
	Args:  cobra.ExactArgs(1),
	RunE:  runNeighbors,
}

var impactCmd = &cobra.Command{
	Use:   "impact <repository-id> <node-id>...",
	Short: "Estimate what breaks when the given nodes change",
	Long: `Walks callers and users of the target nodes, reports every affected node
with its distance, the call chains that reach the targets, and a risk level.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runImpact,
}

var (
	impactDepth  int
	impactFanOut int
	impactChains int
)

func init() {
	impactCmd.Flags().IntVar(&impactDepth, "max-depth", 0, "maximum traversal depth (default from config)")
	impactCmd.Flags().IntVar(&impactFanOut, "max-fan-out", 0, "maximum callers followed per node (default from config)")
	impactCmd.Flags().IntVar(&impactChains, "max-chains", 0, "maximum call chains reported (default from config)")
}

func queryEngine() (*graph.QueryEngine, func() error, error) {
	store, err := openStore(config.ValidationContextQuery)
	if err != nil {
		return nil, nil, err
	}
	return graph.NewQueryEngine(store, logger), store.Close, nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	queries, closeStore, err := queryEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	g, err := queries.GetGraph(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(g, func() {
		names := make(map[string]string, len(g.Nodes))
		fmt.Printf("Nodes (%d):\n", len(g.Nodes))
		for _, n := range g.Nodes {
			names[n.ID] = n.Name
			location := ""
			if fp := n.Properties[entity.PropFilePath]; fp != "" {
				location = "  " + fp
			}
			fmt.Printf("  [%s] %s%s\n", n.NodeType, n.Name, location)
		}
		fmt.Printf("\nEdges (%d):\n", len(g.Edges))
		for _, e := range g.Edges {
			fmt.Printf("  %s -[%s %.2f]-> %s\n", names[e.SourceNodeID], e.EdgeType, e.Confidence, names[e.TargetNodeID])
		}
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	queries, closeStore, err := queryEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := queries.GetStatistics(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(stats, func() {
		fmt.Printf("Repository %s\n", stats.RepositoryID)
		fmt.Printf("  Nodes: %d\n", stats.TotalNodes)
		for _, k := range sortedKeys(stats.CountsByNodeType) {
			fmt.Printf("    %-16s %d\n", k, stats.CountsByNodeType[k])
		}
		fmt.Printf("  Edges: %d\n", stats.TotalEdges)
		for _, k := range sortedKeys(stats.CountsByEdgeType) {
			fmt.Printf("    %-16s %d\n", k, stats.CountsByEdgeType[k])
		}
		if len(stats.MostConnectedNodes) > 0 {
			fmt.Println("\nMost connected:")
			for _, d := range stats.MostConnectedNodes {
				fmt.Printf("  %4d  [%s] %s\n", d.Degree, d.NodeType, d.Name)
			}
		}
	})
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	queries, closeStore, err := queryEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	neighbors, err := queries.GetNeighbors(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printResult(neighbors, func() {
		if len(neighbors) == 0 {
			fmt.Println("No neighbors")
			return
		}
		for _, n := range neighbors {
			arrow := "->"
			if n.Direction == graph.Incoming {
				arrow = "<-"
			}
			fmt.Printf("  %s %-18s [%s] %s (%.2f)\n", arrow, n.Edge.EdgeType, n.Node.NodeType, n.Node.Name, n.Edge.Confidence)
		}
	})
}

func runImpact(cmd *cobra.Command, args []string) error {
	queries, closeStore, err := queryEngine()
	if err != nil {
		return err
	}
	defer closeStore()

	limits := impactLimits()
	if impactDepth > 0 {
		limits.MaxDepth = impactDepth
	}
	if impactFanOut > 0 {
		limits.MaxFanOut = impactFanOut
	}
	if impactChains > 0 {
		limits.MaxChains = impactChains
	}

	report, err := queries.RefactoringImpact(cmd.Context(), args[0], args[1:], limits)
	if err != nil {
		return err
	}

	return printResult(report, func() {
		fmt.Printf("Risk: %s\n", strings.ToUpper(string(report.RiskLevel)))
		fmt.Printf("Affected nodes: %d (max depth %d)\n", len(report.AffectedNodes), report.MaxDepth)
		for _, a := range report.AffectedNodes {
			fmt.Printf("  %d  [%s] %s\n", a.Depth, a.Node.NodeType, a.Node.Name)
		}
		if len(report.CallChains) > 0 {
			fmt.Printf("\nCall chains: %d\n", len(report.CallChains))
		}
		if report.Truncated {
			fmt.Println("\nTraversal limits were reached; results are partial.")
		}
		if len(report.UnknownTargets) > 0 {
			fmt.Printf("\nUnknown targets: %s\n", strings.Join(report.UnknownTargets, ", "))
		}
	})
}
