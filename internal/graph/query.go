package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
)

// mostConnectedLimit is the size of the most-connected list in statistics
const mostConnectedLimit = 10

// Direction of an edge relative to the queried node
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Graph is the full node and edge set of one repository
type Graph struct {
	RepositoryID string         `json:"repository_id"`
	Nodes        []*models.Node `json:"nodes"`
	Edges        []*models.Edge `json:"edges"`
}

// Statistics summarizes a repository graph
type Statistics struct {
	RepositoryID       string              `json:"repository_id"`
	CountsByNodeType   map[string]int      `json:"counts_by_node_type"`
	CountsByEdgeType   map[string]int      `json:"counts_by_edge_type"`
	TotalNodes         int                 `json:"total_nodes"`
	TotalEdges         int                 `json:"total_edges"`
	MostConnectedNodes []models.NodeDegree `json:"most_connected_nodes"`
}

// Neighbor is one hop from a queried node
type Neighbor struct {
	Edge      *models.Edge `json:"edge"`
	Node      *models.Node `json:"neighbor"`
	Direction Direction    `json:"direction"`
}

// QueryEngine answers read-only structural queries over the store
type QueryEngine struct {
	store  storage.Store
	logger *logrus.Logger
}

// NewQueryEngine creates a query engine over store
func NewQueryEngine(store storage.Store, logger *logrus.Logger) *QueryEngine {
	return &QueryEngine{store: store, logger: logger}
}

// GetGraph returns every node and edge of the repository
func (q *QueryEngine) GetGraph(ctx context.Context, repoID string) (*Graph, error) {
	if _, err := q.store.GetRepository(ctx, repoID); err != nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, err)
	}

	nodes, err := q.store.ListNodes(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := q.store.ListEdges(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}

	return &Graph{RepositoryID: repoID, Nodes: nodes, Edges: edges}, nil
}

// GetStatistics counts nodes and edges by type and lists the most
// connected nodes.
func (q *QueryEngine) GetStatistics(ctx context.Context, repoID string) (*Statistics, error) {
	if _, err := q.store.GetRepository(ctx, repoID); err != nil {
		return nil, fmt.Errorf("repository %s: %w", repoID, err)
	}

	nodeCounts, err := q.store.CountNodesByType(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	edgeCounts, err := q.store.CountEdgesByType(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("count edges: %w", err)
	}
	top, err := q.store.MostConnected(ctx, repoID, mostConnectedLimit)
	if err != nil {
		return nil, fmt.Errorf("most connected: %w", err)
	}

	stats := &Statistics{
		RepositoryID:       repoID,
		CountsByNodeType:   make(map[string]int, len(nodeCounts)),
		CountsByEdgeType:   make(map[string]int, len(edgeCounts)),
		MostConnectedNodes: top,
	}
	for t, n := range nodeCounts {
		stats.CountsByNodeType[string(t)] = n
		stats.TotalNodes += n
	}
	for t, n := range edgeCounts {
		stats.CountsByEdgeType[string(t)] = n
		stats.TotalEdges += n
	}
	if stats.MostConnectedNodes == nil {
		stats.MostConnectedNodes = []models.NodeDegree{}
	}
	return stats, nil
}

// GetNeighbors returns the nodes one hop from nodeID in either direction
func (q *QueryEngine) GetNeighbors(ctx context.Context, nodeID string) ([]Neighbor, error) {
	if _, err := q.store.GetNode(ctx, nodeID); err != nil {
		return nil, fmt.Errorf("node %s: %w", nodeID, err)
	}

	edges, err := q.store.ListIncidentEdges(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("incident edges: %w", err)
	}

	otherIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		otherIDs = append(otherIDs, otherEnd(e, nodeID))
	}
	others, err := q.store.GetNodes(ctx, otherIDs)
	if err != nil {
		return nil, fmt.Errorf("neighbor nodes: %w", err)
	}
	byID := make(map[string]*models.Node, len(others))
	for _, n := range others {
		byID[n.ID] = n
	}

	neighbors := make([]Neighbor, 0, len(edges))
	for _, e := range edges {
		other, ok := byID[otherEnd(e, nodeID)]
		if !ok {
			continue
		}
		dir := Outgoing
		if e.TargetNodeID == nodeID {
			dir = Incoming
		}
		neighbors = append(neighbors, Neighbor{Edge: e, Node: other, Direction: dir})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Direction != neighbors[j].Direction {
			return neighbors[i].Direction == Outgoing
		}
		if neighbors[i].Edge.EdgeType != neighbors[j].Edge.EdgeType {
			return neighbors[i].Edge.EdgeType < neighbors[j].Edge.EdgeType
		}
		return neighbors[i].Node.ID < neighbors[j].Node.ID
	})
	return neighbors, nil
}

func otherEnd(e *models.Edge, nodeID string) string {
	if e.SourceNodeID == nodeID {
		return e.TargetNodeID
	}
	return e.SourceNodeID
}
