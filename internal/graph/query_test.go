package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
)

func TestQueryEngine_GetGraphAndStatistics(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	repo := seedRepo(t, store, "r1")
	b := NewBuilder(store, testLogger(), 0.5)

	_, err := b.Build(ctx, repo, buildSet(
		dependency("lodash", "4.17.21"),
		dependency("axios", "1.6.0"),
		service("Firebase Auth", "firebase"),
	), nil)
	require.NoError(t, err)

	q := NewQueryEngine(store, testLogger())

	graph, err := q.GetGraph(ctx, "r1")
	require.NoError(t, err)
	// repository, 2 dependencies, npm, service, provider
	assert.Len(t, graph.Nodes, 6)
	// 2 HasDependency, 3 UsesPackageManager, UsesService, ProvidedBy
	assert.Len(t, graph.Edges, 7)

	stats, err := q.GetStatistics(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalNodes)
	assert.Equal(t, 7, stats.TotalEdges)
	assert.Equal(t, 2, stats.CountsByNodeType[string(models.NodeDependency)])
	assert.Equal(t, 3, stats.CountsByEdgeType[string(models.EdgeUsesPackageManager)])
	require.NotEmpty(t, stats.MostConnectedNodes)
	assert.Equal(t, string(models.NodeRepository), string(stats.MostConnectedNodes[0].NodeType))

	_, err = q.GetGraph(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueryEngine_GetNeighbors(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	repo := seedRepo(t, store, "r1")
	b := NewBuilder(store, testLogger(), 0.5)

	_, err := b.Build(ctx, repo, buildSet(dependency("lodash", "4.17.21")), nil)
	require.NoError(t, err)

	dep, err := store.GetNodeByKey(ctx, "r1", models.NodeDependency, "lodash|4.17.21|npm")
	require.NoError(t, err)

	q := NewQueryEngine(store, testLogger())
	neighbors, err := q.GetNeighbors(ctx, dep.ID)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	assert.Equal(t, Outgoing, neighbors[0].Direction)
	assert.Equal(t, models.EdgeUsesPackageManager, neighbors[0].Edge.EdgeType)
	assert.Equal(t, "npm", neighbors[0].Node.Name)

	assert.Equal(t, Incoming, neighbors[1].Direction)
	assert.Equal(t, models.EdgeHasDependency, neighbors[1].Edge.EdgeType)
	assert.Equal(t, models.NodeRepository, neighbors[1].Node.NodeType)

	_, err = q.GetNeighbors(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
