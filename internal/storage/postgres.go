package storage

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects to PostgreSQL and ensures the graph schema exists
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{
		sqlStore: &sqlStore{
			db:     db,
			logger: logger,
			inIDs:  postgresInIDs,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func postgresInIDs(column string, ids []string) (string, []interface{}, error) {
	return column + " = ANY(?)", []interface{}{pq.Array(ids)}, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		last_analyzed TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS graph_nodes (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		node_type TEXT NOT NULL,
		name TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (repository_id, node_type, natural_key)
	);

	CREATE TABLE IF NOT EXISTS graph_edges (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		source_node_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
		target_node_id TEXT NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
		edge_type TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		evidence TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (source_node_id, target_node_id, edge_type)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_repo_type ON graph_nodes(repository_id, node_type);
	CREATE INDEX IF NOT EXISTS idx_edges_repo_type ON graph_edges(repository_id, edge_type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target_node_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
