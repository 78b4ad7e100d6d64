package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store using SQLite (local default)
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (creating if needed) a SQLite graph database.
// path may be ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and every
	// connection to :memory: would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("failed to apply sqlite pragma")
		}
	}

	store := &SQLiteStore{
		sqlStore: &sqlStore{
			db:     db,
			logger: logger,
			inIDs:  sqliteInIDs,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func sqliteInIDs(column string, ids []string) (string, []interface{}, error) {
	query, args, err := sqlx.In(column+" IN (?)", ids)
	if err != nil {
		return "", nil, fmt.Errorf("expand %s list: %w", column, err)
	}
	return query, args, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		last_analyzed DATETIME
	);

	CREATE TABLE IF NOT EXISTS graph_nodes (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		name TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (repository_id) REFERENCES repositories(id) ON DELETE CASCADE,
		UNIQUE (repository_id, node_type, natural_key)
	);

	CREATE TABLE IF NOT EXISTS graph_edges (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		source_node_id TEXT NOT NULL,
		target_node_id TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		evidence TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (repository_id) REFERENCES repositories(id) ON DELETE CASCADE,
		FOREIGN KEY (source_node_id) REFERENCES graph_nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_node_id) REFERENCES graph_nodes(id) ON DELETE CASCADE,
		UNIQUE (source_node_id, target_node_id, edge_type)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_repo_type ON graph_nodes(repository_id, node_type);
	CREATE INDEX IF NOT EXISTS idx_edges_repo_type ON graph_edges(repository_id, edge_type);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target_node_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
