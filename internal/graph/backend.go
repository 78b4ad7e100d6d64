package graph

import (
	"context"

	"github.com/rohankatakam/repograph/internal/models"
)

// Mirror receives a full copy of a repository graph after each successful
// build. The SQL store stays the source of truth; a mirror only serves
// external graph tooling.
type Mirror interface {
	// SyncRepository replaces the mirrored subgraph of repoID
	SyncRepository(ctx context.Context, repoID string, nodes []*models.Node, edges []*models.Edge) error

	// Close closes the mirror connection
	Close(ctx context.Context) error
}

// GraphNode is a node in mirror form
type GraphNode struct {
	Label      string         // Node label: "Dependency", "CodeElement", ...
	ID         string         // Stable node id
	Properties map[string]any // Node properties
}

// GraphEdge is an edge in mirror form
type GraphEdge struct {
	Label      string         // Relationship type: "USES_SERVICE", "CALLS", ...
	ID         string         // Stable edge id
	From       string         // Source node ID
	To         string         // Target node ID
	Properties map[string]any // Edge properties
}

// ToGraphNode converts a stored node for mirroring
func ToGraphNode(n *models.Node) GraphNode {
	props := make(map[string]any, len(n.Properties)+4)
	for k, v := range n.Properties {
		props[sanitizeIdentifier(k)] = v
	}
	props["id"] = n.ID
	props["repository_id"] = n.RepositoryID
	props["name"] = n.Name
	props["natural_key"] = n.NaturalKey
	return GraphNode{Label: NodeLabel(n.NodeType), ID: n.ID, Properties: props}
}

// ToGraphEdge converts a stored edge for mirroring
func ToGraphEdge(e *models.Edge) GraphEdge {
	return GraphEdge{
		Label: RelationshipType(e.EdgeType),
		ID:    e.ID,
		From:  e.SourceNodeID,
		To:    e.TargetNodeID,
		Properties: map[string]any{
			"id":            e.ID,
			"repository_id": e.RepositoryID,
			"confidence":    e.Confidence,
			"evidence":      e.Evidence,
		},
	}
}
