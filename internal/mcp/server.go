// Package mcp exposes the read-only graph queries as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/models"
)

// ProgressSource returns the latest analysis progress of a repository
type ProgressSource interface {
	Get(repoID string) (*models.AnalysisProgress, bool)
}

// Server wraps an MCP server bound to a query engine
type Server struct {
	queries  *graph.QueryEngine
	progress ProgressSource
	limits   graph.ImpactLimits
	logger   *logrus.Logger
	server   *sdk.Server
}

// NewServer creates the server and registers its tools. limits are the
// impact defaults a tool call may override.
func NewServer(queries *graph.QueryEngine, progress ProgressSource, limits graph.ImpactLimits, version string, logger *logrus.Logger) *Server {
	s := &Server{
		queries:  queries,
		progress: progress,
		limits:   limits,
		logger:   logger,
		server: sdk.NewServer(&sdk.Implementation{
			Name:    "repograph",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx ends
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio")
	if err := s.server.Run(ctx, &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Connect serves a single session over transport
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

func jsonResult(v any) (*sdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) (*sdk.CallToolResult, any, error) {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, nil, nil
}
