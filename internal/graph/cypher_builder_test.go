package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/models"
)

func TestNodeLabel(t *testing.T) {
	tests := []struct {
		input models.NodeType
		want  string
	}{
		{models.NodeCodeElement, "CodeElement"},
		{models.NodeDependency, "Dependency"},
		{models.NodeServiceProvider, "ServiceProvider"},
		{models.NodeTestFramework, "TestFramework"},
	}
	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.want, NodeLabel(tt.input))
		})
	}
	assert.Equal(t, "USES_SERVICE", RelationshipType(models.EdgeUsesService))
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "file_path", sanitizeIdentifier("file_path"))
	assert.Equal(t, "sdk_version", sanitizeIdentifier("sdk-version"))
	assert.Equal(t, "_1st", sanitizeIdentifier("1st"))
	assert.True(t, isValidIdentifier(sanitizeIdentifier("a.b c")))
}

func TestBuildMergeNodes_RejectsBadIdentifiers(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.BuildMergeNodes("Bad Label", nil)
	assert.Error(t, err)

	_, err = b.BuildMergeNodes("Tool", []GraphNode{{Label: "Tool", ID: "x", Properties: map[string]any{"bad key": 1}}})
	assert.Error(t, err)

	_, err = b.BuildMergeNodes("Tool", []GraphNode{{Label: "Test", ID: "x"}})
	assert.Error(t, err)
}

func TestBuildSyncQueries(t *testing.T) {
	nodes := []*models.Node{
		{ID: "n1", RepositoryID: "r1", NodeType: models.NodeTool, Name: "eslint",
			Properties: models.Properties{"file-path": ".eslintrc"}},
		{ID: "n2", RepositoryID: "r1", NodeType: models.NodeRepository, Name: "r1"},
	}
	edges := []*models.Edge{
		{ID: "e1", RepositoryID: "r1", SourceNodeID: "n2", TargetNodeID: "n1", EdgeType: models.EdgeUsesTool, Confidence: 1},
	}

	queries, err := BuildSyncQueries("r1", nodes, edges)
	require.NoError(t, err)
	require.Len(t, queries, 4)

	assert.Contains(t, queries[0].Query, "DETACH DELETE")
	assert.Equal(t, "r1", queries[0].Params["p0"])
	assert.Contains(t, queries[1].Query, "SET n:Repository")
	assert.Contains(t, queries[2].Query, "SET n:Tool")
	assert.Contains(t, queries[3].Query, "[r:USES_TOOL")

	rows := queries[2].Params["p0"].([]map[string]any)
	require.Len(t, rows, 1)
	props := rows[0]["props"].(map[string]any)
	assert.Equal(t, ".eslintrc", props["file_path"])
	assert.Equal(t, "r1", props["repository_id"])

	for _, q := range queries {
		assert.False(t, strings.Contains(q.Query, "eslint"), "values must travel as parameters")
	}
}
