package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/models"
)

// idBatchSize keeps IN lists below SQLite's bound-variable limit
const idBatchSize = 500

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries use ? placeholders and are rebound for the driver.
type sqlStore struct {
	db     *sqlx.DB
	logger *logrus.Logger

	// inIDs renders "column matches any of ids" for the dialect
	inIDs func(column string, ids []string) (string, []interface{}, error)
}

func (s *sqlStore) q(query string) string {
	return s.db.Rebind(query)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

const repositoryColumns = `id, name, path, url, branch, created_at, last_analyzed`

// SaveRepository inserts or updates a repository registration
func (s *sqlStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = time.Now().UTC()
	}
	query := s.q(`
		INSERT INTO repositories (` + repositoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			url = excluded.url,
			branch = excluded.branch`)
	_, err := s.db.ExecContext(ctx, query,
		repo.ID, repo.Name, repo.Path, repo.URL, repo.Branch, repo.CreatedAt, repo.LastAnalyzed)
	if err != nil {
		return fmt.Errorf("save repository: %w", err)
	}
	return nil
}

// GetRepository retrieves a repository by ID
func (s *sqlStore) GetRepository(ctx context.Context, repoID string) (*models.Repository, error) {
	var repo models.Repository
	query := s.q(`SELECT ` + repositoryColumns + ` FROM repositories WHERE id = ?`)
	if err := s.db.GetContext(ctx, &repo, query, repoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("repository %s: %w", repoID, ErrNotFound)
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &repo, nil
}

// ListRepositories returns all registered repositories ordered by id
func (s *sqlStore) ListRepositories(ctx context.Context) ([]*models.Repository, error) {
	var repos []*models.Repository
	query := `SELECT ` + repositoryColumns + ` FROM repositories ORDER BY id`
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

// DeleteRepository removes a repository; its nodes and edges cascade
func (s *sqlStore) DeleteRepository(ctx context.Context, repoID string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM repositories WHERE id = ?`), repoID)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %s: %w", repoID, ErrNotFound)
	}
	return nil
}

// MarkAnalyzed records the completion time of the last successful run
func (s *sqlStore) MarkAnalyzed(ctx context.Context, repoID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE repositories SET last_analyzed = ? WHERE id = ?`), at, repoID)
	if err != nil {
		return fmt.Errorf("mark analyzed: %w", err)
	}
	return nil
}

const nodeColumns = `id, repository_id, node_type, name, natural_key, properties, created_at, updated_at`

// GetNode retrieves a node by id
func (s *sqlStore) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	var node models.Node
	query := s.q(`SELECT ` + nodeColumns + ` FROM graph_nodes WHERE id = ?`)
	if err := s.db.GetContext(ctx, &node, query, nodeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return &node, nil
}

// GetNodeByKey looks a node up by its natural identity
func (s *sqlStore) GetNodeByKey(ctx context.Context, repoID string, nodeType models.NodeType, naturalKey string) (*models.Node, error) {
	var node models.Node
	query := s.q(`SELECT ` + nodeColumns + ` FROM graph_nodes
		WHERE repository_id = ? AND node_type = ? AND natural_key = ?`)
	if err := s.db.GetContext(ctx, &node, query, repoID, nodeType, naturalKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get node by key: %w", err)
	}
	return &node, nil
}

// GetNodes loads nodes by id; unknown ids are ignored
func (s *sqlStore) GetNodes(ctx context.Context, nodeIDs []string) ([]*models.Node, error) {
	var out []*models.Node
	for _, batch := range chunk(nodeIDs, idBatchSize) {
		pred, args, err := s.inIDs("id", batch)
		if err != nil {
			return nil, err
		}
		var nodes []*models.Node
		query := s.q(`SELECT ` + nodeColumns + ` FROM graph_nodes WHERE ` + pred + ` ORDER BY id`)
		if err := s.db.SelectContext(ctx, &nodes, query, args...); err != nil {
			return nil, fmt.Errorf("get nodes: %w", err)
		}
		out = append(out, nodes...)
	}
	return out, nil
}

// InsertNode creates a node
func (s *sqlStore) InsertNode(ctx context.Context, node *models.Node) error {
	query := s.q(`INSERT INTO graph_nodes (` + nodeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		node.ID, node.RepositoryID, node.NodeType, node.Name, node.NaturalKey,
		node.Properties, node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", node.ID, err)
	}
	return nil
}

// UpdateNode refreshes name and properties of an existing node
func (s *sqlStore) UpdateNode(ctx context.Context, node *models.Node) error {
	query := s.q(`UPDATE graph_nodes SET name = ?, properties = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, node.Name, node.Properties, node.UpdatedAt, node.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", node.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node.ID, ErrNotFound)
	}
	return nil
}

// ListNodes returns every node of a repository ordered by id
func (s *sqlStore) ListNodes(ctx context.Context, repoID string) ([]*models.Node, error) {
	var nodes []*models.Node
	query := s.q(`SELECT ` + nodeColumns + ` FROM graph_nodes WHERE repository_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &nodes, query, repoID); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// ListNodeIDs returns the ids of every node of a repository
func (s *sqlStore) ListNodeIDs(ctx context.Context, repoID string) ([]string, error) {
	var ids []string
	query := s.q(`SELECT id FROM graph_nodes WHERE repository_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &ids, query, repoID); err != nil {
		return nil, fmt.Errorf("list node ids: %w", err)
	}
	return ids, nil
}

// DeleteNodes removes nodes of a repository; incident edges cascade
func (s *sqlStore) DeleteNodes(ctx context.Context, repoID string, nodeIDs []string) (int, error) {
	return s.deleteByIDs(ctx, "graph_nodes", repoID, nodeIDs)
}

const edgeColumns = `id, repository_id, source_node_id, target_node_id, edge_type, confidence, evidence, created_at, updated_at`

// GetEdge looks an edge up by its (source, target, type) identity
func (s *sqlStore) GetEdge(ctx context.Context, sourceID, targetID string, edgeType models.EdgeType) (*models.Edge, error) {
	var edge models.Edge
	query := s.q(`SELECT ` + edgeColumns + ` FROM graph_edges
		WHERE source_node_id = ? AND target_node_id = ? AND edge_type = ?`)
	if err := s.db.GetContext(ctx, &edge, query, sourceID, targetID, edgeType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return &edge, nil
}

// InsertEdge creates an edge
func (s *sqlStore) InsertEdge(ctx context.Context, edge *models.Edge) error {
	query := s.q(`INSERT INTO graph_edges (` + edgeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		edge.ID, edge.RepositoryID, edge.SourceNodeID, edge.TargetNodeID, edge.EdgeType,
		edge.Confidence, edge.Evidence, edge.CreatedAt, edge.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert edge %s: %w", edge.ID, err)
	}
	return nil
}

// UpdateEdge stores new confidence and evidence for an existing edge
func (s *sqlStore) UpdateEdge(ctx context.Context, edge *models.Edge) error {
	query := s.q(`UPDATE graph_edges SET confidence = ?, evidence = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, edge.Confidence, edge.Evidence, edge.UpdatedAt, edge.ID)
	if err != nil {
		return fmt.Errorf("update edge %s: %w", edge.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("edge %s: %w", edge.ID, ErrNotFound)
	}
	return nil
}

// ListEdges returns every edge of a repository ordered by id
func (s *sqlStore) ListEdges(ctx context.Context, repoID string) ([]*models.Edge, error) {
	var edges []*models.Edge
	query := s.q(`SELECT ` + edgeColumns + ` FROM graph_edges WHERE repository_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &edges, query, repoID); err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}

// ListEdgesByType returns the repository's edges of the given types
func (s *sqlStore) ListEdgesByType(ctx context.Context, repoID string, types []models.EdgeType) ([]*models.Edge, error) {
	if len(types) == 0 {
		return nil, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	pred, args, err := s.inIDs("edge_type", names)
	if err != nil {
		return nil, err
	}
	var edges []*models.Edge
	query := s.q(`SELECT ` + edgeColumns + ` FROM graph_edges WHERE repository_id = ? AND ` + pred + ` ORDER BY id`)
	if err := s.db.SelectContext(ctx, &edges, query, append([]interface{}{repoID}, args...)...); err != nil {
		return nil, fmt.Errorf("list edges by type: %w", err)
	}
	return edges, nil
}

// ListEdgeIDs returns the ids of every edge of a repository
func (s *sqlStore) ListEdgeIDs(ctx context.Context, repoID string) ([]string, error) {
	var ids []string
	query := s.q(`SELECT id FROM graph_edges WHERE repository_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &ids, query, repoID); err != nil {
		return nil, fmt.Errorf("list edge ids: %w", err)
	}
	return ids, nil
}

// ListIncidentEdges returns edges entering or leaving a node
func (s *sqlStore) ListIncidentEdges(ctx context.Context, nodeID string) ([]*models.Edge, error) {
	var edges []*models.Edge
	query := s.q(`SELECT ` + edgeColumns + ` FROM graph_edges
		WHERE source_node_id = ? OR target_node_id = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &edges, query, nodeID, nodeID); err != nil {
		return nil, fmt.Errorf("list incident edges: %w", err)
	}
	return edges, nil
}

// DeleteEdges removes edges of a repository
func (s *sqlStore) DeleteEdges(ctx context.Context, repoID string, edgeIDs []string) (int, error) {
	return s.deleteByIDs(ctx, "graph_edges", repoID, edgeIDs)
}

func (s *sqlStore) deleteByIDs(ctx context.Context, table, repoID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, batch := range chunk(ids, idBatchSize) {
		pred, args, err := s.inIDs("id", batch)
		if err != nil {
			return 0, err
		}
		query := s.q(`DELETE FROM ` + table + ` WHERE repository_id = ? AND ` + pred)
		res, err := tx.ExecContext(ctx, query, append([]interface{}{repoID}, args...)...)
		if err != nil {
			return 0, fmt.Errorf("delete from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return total, nil
}

type typeCount struct {
	Type  string `db:"type"`
	Count int    `db:"count"`
}

// CountNodesByType groups node counts over the (repository_id, node_type) index
func (s *sqlStore) CountNodesByType(ctx context.Context, repoID string) (map[models.NodeType]int, error) {
	var rows []typeCount
	query := s.q(`SELECT node_type AS type, COUNT(*) AS count FROM graph_nodes
		WHERE repository_id = ? GROUP BY node_type`)
	if err := s.db.SelectContext(ctx, &rows, query, repoID); err != nil {
		return nil, fmt.Errorf("count nodes: %w", err)
	}
	out := make(map[models.NodeType]int, len(rows))
	for _, r := range rows {
		out[models.NodeType(r.Type)] = r.Count
	}
	return out, nil
}

// CountEdgesByType groups edge counts over the (repository_id, edge_type) index
func (s *sqlStore) CountEdgesByType(ctx context.Context, repoID string) (map[models.EdgeType]int, error) {
	var rows []typeCount
	query := s.q(`SELECT edge_type AS type, COUNT(*) AS count FROM graph_edges
		WHERE repository_id = ? GROUP BY edge_type`)
	if err := s.db.SelectContext(ctx, &rows, query, repoID); err != nil {
		return nil, fmt.Errorf("count edges: %w", err)
	}
	out := make(map[models.EdgeType]int, len(rows))
	for _, r := range rows {
		out[models.EdgeType(r.Type)] = r.Count
	}
	return out, nil
}

// MostConnected ranks nodes by incident-edge count, ties broken by id
func (s *sqlStore) MostConnected(ctx context.Context, repoID string, limit int) ([]models.NodeDegree, error) {
	var rows []models.NodeDegree
	query := s.q(`
		SELECT n.id AS id, n.name AS name, n.node_type AS node_type, COUNT(*) AS degree
		FROM graph_nodes n
		JOIN (
			SELECT source_node_id AS node_id FROM graph_edges WHERE repository_id = ?
			UNION ALL
			SELECT target_node_id AS node_id FROM graph_edges WHERE repository_id = ?
		) ends ON ends.node_id = n.id
		WHERE n.repository_id = ?
		GROUP BY n.id, n.name, n.node_type
		ORDER BY degree DESC, n.id ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, repoID, repoID, repoID, limit); err != nil {
		return nil, fmt.Errorf("most connected: %w", err)
	}
	return rows, nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
