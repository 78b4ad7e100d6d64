package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/logging"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextAnalyze - analyze writes to the store and may mirror to Neo4j
	ValidationContextAnalyze ValidationContext = "analyze"
	// ValidationContextQuery - read-only commands only need the store
	ValidationContextQuery ValidationContext = "query"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// AsError converts a failed result into a config error, nil otherwise
func (vr *ValidationResult) AsError() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateStorage(result)
	c.validateLogging(result)

	switch ctx {
	case ValidationContextAnalyze:
		c.validateInference(result)
		c.validatePipeline(result)
		c.validatePlugins(result)
		c.validateNeo4j(result)
	case ValidationContextQuery:
		c.validateImpact(result)
	case ValidationContextAll:
		c.validateInference(result)
		c.validatePipeline(result)
		c.validatePlugins(result)
		c.validateNeo4j(result)
		c.validateImpact(result)
	}

	return result
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	case "postgres":
		dsn := c.Storage.PostgresDSN
		if dsn == "" {
			result.AddError("POSTGRES_DSN is required for postgres storage")
			return
		}
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			result.AddError("POSTGRES_DSN must start with postgres:// or postgresql://")
		}
		if strings.Contains(dsn, "sslmode=disable") && !strings.Contains(dsn, "localhost") {
			result.AddWarning("PostgreSQL DSN has sslmode=disable for a remote host")
		}
	default:
		result.AddError("storage.type must be sqlite or postgres, got %q", c.Storage.Type)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult) {
	if !c.Neo4j.Enabled {
		return
	}

	if c.Neo4j.URI == "" {
		result.AddError("NEO4J_URI is required when the Neo4j mirror is enabled")
	} else if _, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	}

	if c.Neo4j.Username == "" {
		result.AddError("NEO4J_USER is required when the Neo4j mirror is enabled")
	}
	if c.Neo4j.Password == "" {
		result.AddError("NEO4J_PASSWORD is required when the Neo4j mirror is enabled. Set it via environment variable or `repograph credentials set neo4j-password`.")
	} else if c.Neo4j.Password == "neo4j" || c.Neo4j.Password == "password" {
		result.AddWarning("NEO4J_PASSWORD is set to a very common password")
	}

	if c.Neo4j.Database == "" {
		result.AddWarning("neo4j.database is not set, will use 'neo4j' as default")
	}
}

func (c *Config) validateInference(result *ValidationResult) {
	if c.Inference.MinConfidence < 0 || c.Inference.MinConfidence > 1 {
		result.AddError("inference.min_confidence must be within [0, 1], got %.2f", c.Inference.MinConfidence)
	}
	if c.Inference.ContextLines <= 0 {
		result.AddError("inference.context_lines must be positive")
	}
}

func (c *Config) validateImpact(result *ValidationResult) {
	if c.Impact.MaxDepth <= 0 {
		result.AddError("impact.max_depth must be positive")
	} else if c.Impact.MaxDepth > 20 {
		result.AddWarning("impact.max_depth %d may be slow on dense call graphs", c.Impact.MaxDepth)
	}
	if c.Impact.MaxFanOut <= 0 {
		result.AddError("impact.max_fan_out must be positive")
	}
	if c.Impact.MaxChains <= 0 {
		result.AddError("impact.max_chains must be positive")
	}
}

func (c *Config) validatePipeline(result *ValidationResult) {
	if c.Pipeline.Workers <= 0 {
		result.AddError("pipeline.workers must be positive")
	}
	if c.Pipeline.MaxFileSize <= 0 {
		result.AddError("pipeline.max_file_size must be positive")
	}
	if c.Pipeline.ProgressPath == "" {
		result.AddWarning("pipeline.progress_path is empty, progress is kept in memory only")
	}
}

func (c *Config) validatePlugins(result *ValidationResult) {
	if c.Plugins.Timeout <= 0 {
		result.AddError("plugins.timeout must be positive")
	}
	if c.Plugins.SpawnsPerSecond <= 0 {
		result.AddError("plugins.spawns_per_second must be positive")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result.AddError("logging.level: %v", err)
	}
}
