package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/models"
)

// neo4jBatchSize bounds the rows sent in one UNWIND
const neo4jBatchSize = 1000

// Neo4jMirror mirrors repository graphs into Neo4j
type Neo4jMirror struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// QueryWithParams represents a Cypher query with its parameters
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// NewNeo4jMirror connects to Neo4j and ensures the id index exists
func NewNeo4jMirror(ctx context.Context, uri, username, password, database string, logger *logrus.Logger) (*Neo4jMirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	m := &Neo4jMirror{
		driver:   driver,
		database: database,
		logger:   logger,
	}

	_, err = neo4j.ExecuteQuery(ctx, driver,
		fmt.Sprintf("CREATE INDEX graph_node_id IF NOT EXISTS FOR (n:%s) ON (n.id)", CommonLabel),
		nil, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(database))
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to create id index: %w", err)
	}

	return m, nil
}

// SyncRepository replaces the mirrored subgraph of repoID in one transaction
func (m *Neo4jMirror) SyncRepository(ctx context.Context, repoID string, nodes []*models.Node, edges []*models.Edge) error {
	queries, err := BuildSyncQueries(repoID, nodes, edges)
	if err != nil {
		return err
	}
	if err := m.ExecuteBatchWithParams(ctx, queries); err != nil {
		return fmt.Errorf("sync repository %s: %w", repoID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"repository_id": repoID,
		"nodes":         len(nodes),
		"edges":         len(edges),
	}).Info("mirrored graph to neo4j")
	return nil
}

// BuildSyncQueries renders the delete-then-merge statements for one
// repository, grouping nodes by label and edges by type.
func BuildSyncQueries(repoID string, nodes []*models.Node, edges []*models.Edge) ([]QueryWithParams, error) {
	var queries []QueryWithParams

	del := NewCypherBuilder()
	queries = append(queries, QueryWithParams{Query: del.BuildDeleteRepository(repoID), Params: del.Params()})

	nodesByLabel := make(map[string][]GraphNode)
	for _, n := range nodes {
		gn := ToGraphNode(n)
		nodesByLabel[gn.Label] = append(nodesByLabel[gn.Label], gn)
	}
	for _, label := range sortedKeys(nodesByLabel) {
		batch := nodesByLabel[label]
		for start := 0; start < len(batch); start += neo4jBatchSize {
			end := min(start+neo4jBatchSize, len(batch))
			b := NewCypherBuilder()
			q, err := b.BuildMergeNodes(label, batch[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to build node query: %w", err)
			}
			queries = append(queries, QueryWithParams{Query: q, Params: b.Params()})
		}
	}

	edgesByType := make(map[string][]GraphEdge)
	for _, e := range edges {
		ge := ToGraphEdge(e)
		edgesByType[ge.Label] = append(edgesByType[ge.Label], ge)
	}
	for _, relType := range sortedKeys(edgesByType) {
		batch := edgesByType[relType]
		for start := 0; start < len(batch); start += neo4jBatchSize {
			end := min(start+neo4jBatchSize, len(batch))
			b := NewCypherBuilder()
			q, err := b.BuildMergeEdges(relType, batch[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to build edge query: %w", err)
			}
			queries = append(queries, QueryWithParams{Query: q, Params: b.Params()})
		}
	}

	return queries, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExecuteBatchWithParams executes multiple parameterized queries in a single transaction
func (m *Neo4jMirror) ExecuteBatchWithParams(ctx context.Context, queries []QueryWithParams) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: m.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch command %d failed: %w", i, err)
			}
		}
		return nil, nil
	})

	return err
}

// Close closes the Neo4j driver connection
func (m *Neo4jMirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}
