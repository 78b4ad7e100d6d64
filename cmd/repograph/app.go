package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"golang.org/x/term"

	"github.com/rohankatakam/repograph/internal/config"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/storage"
)

// resolveSecrets fills secrets that are not in the config file from the
// environment, the keychain or an interactive prompt
func resolveSecrets(needMirror bool) error {
	creds := config.NewCredentialManager()

	if cfg.Storage.Type == "postgres" && cfg.Storage.PostgresDSN == "" {
		dsn, err := creds.Resolve(config.KeyringPostgresDSNItem, "POSTGRES_DSN", true)
		if err != nil {
			return err
		}
		cfg.Storage.PostgresDSN = dsn
	}

	if needMirror && cfg.Neo4j.Enabled && cfg.Neo4j.Password == "" {
		password, err := creds.Resolve(config.KeyringNeo4jPasswordItem, "NEO4J_PASSWORD", true)
		if err != nil {
			return err
		}
		cfg.Neo4j.Password = password
	}
	return nil
}

// openStore validates the configuration for vctx and opens the graph store
func openStore(vctx config.ValidationContext) (storage.Store, error) {
	if err := resolveSecrets(vctx == config.ValidationContextAnalyze); err != nil {
		return nil, err
	}

	result := cfg.Validate(vctx)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if result.HasErrors() {
		return nil, result.AsError()
	}

	return storage.Open(cfg.Storage.Type, cfg.Storage.LocalPath, cfg.Storage.PostgresDSN, logger)
}

// impactLimits returns the configured impact bounds
func impactLimits() graph.ImpactLimits {
	return graph.ImpactLimits{
		MaxDepth:  cfg.Impact.MaxDepth,
		MaxFanOut: cfg.Impact.MaxFanOut,
		MaxChains: cfg.Impact.MaxChains,
	}
}

// wantJSON reports whether results should be printed as JSON.
// Piped output is always JSON.
func wantJSON() bool {
	return jsonOutput || !term.IsTerminal(int(os.Stdout.Fd()))
}

// printResult prints v as JSON or through human when stdout is a terminal
func printResult(v interface{}, human func()) error {
	if !wantJSON() {
		human()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
