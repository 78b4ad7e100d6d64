package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/models"
)

// Store persists repositories and their knowledge graphs
type Store interface {
	// Repository registry
	SaveRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, repoID string) (*models.Repository, error)
	ListRepositories(ctx context.Context) ([]*models.Repository, error)
	DeleteRepository(ctx context.Context, repoID string) error
	MarkAnalyzed(ctx context.Context, repoID string, at time.Time) error

	// Nodes
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	GetNodeByKey(ctx context.Context, repoID string, nodeType models.NodeType, naturalKey string) (*models.Node, error)
	GetNodes(ctx context.Context, nodeIDs []string) ([]*models.Node, error)
	InsertNode(ctx context.Context, node *models.Node) error
	UpdateNode(ctx context.Context, node *models.Node) error
	ListNodes(ctx context.Context, repoID string) ([]*models.Node, error)
	ListNodeIDs(ctx context.Context, repoID string) ([]string, error)
	DeleteNodes(ctx context.Context, repoID string, nodeIDs []string) (int, error)

	// Edges
	GetEdge(ctx context.Context, sourceID, targetID string, edgeType models.EdgeType) (*models.Edge, error)
	InsertEdge(ctx context.Context, edge *models.Edge) error
	UpdateEdge(ctx context.Context, edge *models.Edge) error
	ListEdges(ctx context.Context, repoID string) ([]*models.Edge, error)
	ListEdgesByType(ctx context.Context, repoID string, types []models.EdgeType) ([]*models.Edge, error)
	ListEdgeIDs(ctx context.Context, repoID string) ([]string, error)
	ListIncidentEdges(ctx context.Context, nodeID string) ([]*models.Edge, error)
	DeleteEdges(ctx context.Context, repoID string, edgeIDs []string) (int, error)

	// Statistics
	CountNodesByType(ctx context.Context, repoID string) (map[models.NodeType]int, error)
	CountEdgesByType(ctx context.Context, repoID string) (map[models.EdgeType]int, error)
	MostConnected(ctx context.Context, repoID string, limit int) ([]models.NodeDegree, error)

	Close() error
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Open creates the store selected by storeType ("sqlite" or "postgres")
func Open(storeType, sqlitePath, postgresDSN string, logger *logrus.Logger) (Store, error) {
	switch storeType {
	case "", "sqlite":
		return NewSQLiteStore(sqlitePath, logger)
	case "postgres":
		return NewPostgresStore(postgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", storeType)
	}
}
