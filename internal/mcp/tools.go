package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type RepositoryArgs struct {
	RepositoryID string `json:"repository_id" jsonschema:"id of an analyzed repository"`
}

type NeighborsArgs struct {
	NodeID string `json:"node_id" jsonschema:"id of the node whose neighbors to list"`
}

type ImpactArgs struct {
	RepositoryID string   `json:"repository_id" jsonschema:"id of an analyzed repository"`
	TargetIDs    []string `json:"target_ids" jsonschema:"ids of the nodes being changed"`
	MaxDepth     int      `json:"max_depth,omitempty" jsonschema:"maximum traversal depth"`
	MaxFanOut    int      `json:"max_fan_out,omitempty" jsonschema:"maximum callers followed per node"`
	MaxChains    int      `json:"max_chains,omitempty" jsonschema:"maximum call chains reported"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_graph",
		Description: "Returns every node and edge of a repository graph",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args RepositoryArgs) (*sdk.CallToolResult, any, error) {
		g, err := s.queries.GetGraph(ctx, args.RepositoryID)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(g)
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_statistics",
		Description: "Counts nodes and edges by type and lists the most connected nodes",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args RepositoryArgs) (*sdk.CallToolResult, any, error) {
		stats, err := s.queries.GetStatistics(ctx, args.RepositoryID)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(stats)
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_neighbors",
		Description: "Lists the nodes one edge away from a node, in either direction",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args NeighborsArgs) (*sdk.CallToolResult, any, error) {
		neighbors, err := s.queries.GetNeighbors(ctx, args.NodeID)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(neighbors)
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "refactoring_impact",
		Description: "Walks callers and users of the target nodes and classifies the risk of changing them",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args ImpactArgs) (*sdk.CallToolResult, any, error) {
		if len(args.TargetIDs) == 0 {
			return errorResult(fmt.Errorf("target_ids is required"))
		}
		limits := s.limits
		if args.MaxDepth > 0 {
			limits.MaxDepth = args.MaxDepth
		}
		if args.MaxFanOut > 0 {
			limits.MaxFanOut = args.MaxFanOut
		}
		if args.MaxChains > 0 {
			limits.MaxChains = args.MaxChains
		}
		report, err := s.queries.RefactoringImpact(ctx, args.RepositoryID, args.TargetIDs, limits)
		if err != nil {
			return errorResult(err)
		}
		return jsonResult(report)
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "get_analysis_progress",
		Description: "Returns the status of the latest analysis run of a repository",
	}, func(ctx context.Context, req *sdk.CallToolRequest, args RepositoryArgs) (*sdk.CallToolResult, any, error) {
		if s.progress == nil {
			return errorResult(fmt.Errorf("progress tracking is not available"))
		}
		p, ok := s.progress.Get(args.RepositoryID)
		if !ok {
			return errorResult(fmt.Errorf("no analysis recorded for repository %s", args.RepositoryID))
		}
		return jsonResult(p)
	})
}
