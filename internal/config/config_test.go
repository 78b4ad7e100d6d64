package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 0.5, cfg.Inference.MinConfidence)
	assert.Equal(t, 5, cfg.Impact.MaxDepth)
	assert.Equal(t, 20, cfg.Impact.MaxFanOut)
	assert.False(t, cfg.Neo4j.Enabled)
	assert.False(t, cfg.Validate(ValidationContextAll).HasErrors())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repograph.yaml")
	content := `
storage:
  type: sqlite
  local_path: ` + filepath.Join(dir, "graph.db") + `
inference:
  min_confidence: 0.7
impact:
  max_depth: 3
plugins:
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("REPOGRAPH_IMPACT_MAX_FAN_OUT", "7")
	t.Setenv("PIPELINE_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Inference.MinConfidence)
	assert.Equal(t, 3, cfg.Impact.MaxDepth)
	assert.Equal(t, 7, cfg.Impact.MaxFanOut)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Plugins.Timeout)
	// untouched sections keep defaults
	assert.Equal(t, 100, cfg.Impact.MaxChains)
	assert.Equal(t, 200, cfg.Inference.ContextLines)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSave_OmitsPassword(t *testing.T) {
	cfg := Default()
	cfg.Neo4j.Password = "super-secret"

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), "min_confidence: 0.5")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		ctx       ValidationContext
		wantError bool
	}{
		{
			name:   "defaults are valid for analyze",
			mutate: func(c *Config) {},
			ctx:    ValidationContextAnalyze,
		},
		{
			name:      "unknown storage type",
			mutate:    func(c *Config) { c.Storage.Type = "mongo" },
			ctx:       ValidationContextQuery,
			wantError: true,
		},
		{
			name:      "postgres without dsn",
			mutate:    func(c *Config) { c.Storage.Type = "postgres" },
			ctx:       ValidationContextQuery,
			wantError: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Storage.Type = "postgres"
				c.Storage.PostgresDSN = "postgres://u:p@localhost:5432/graph?sslmode=disable"
			},
			ctx: ValidationContextQuery,
		},
		{
			name:      "min confidence out of range",
			mutate:    func(c *Config) { c.Inference.MinConfidence = 1.5 },
			ctx:       ValidationContextAnalyze,
			wantError: true,
		},
		{
			name:      "zero traversal depth",
			mutate:    func(c *Config) { c.Impact.MaxDepth = 0 },
			ctx:       ValidationContextQuery,
			wantError: true,
		},
		{
			name:      "neo4j enabled without password",
			mutate:    func(c *Config) { c.Neo4j.Enabled = true },
			ctx:       ValidationContextAnalyze,
			wantError: true,
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "loud" },
			ctx:       ValidationContextQuery,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate(tt.ctx)
			assert.Equal(t, tt.wantError, result.HasErrors(), result.Error())
			if tt.wantError {
				assert.Error(t, result.AsError())
			} else {
				assert.NoError(t, result.AsError())
			}
		})
	}
}

func TestKeyringManager_RoundTrip(t *testing.T) {
	keyring.MockInit()
	km := NewKeyringManager()

	require.True(t, km.IsAvailable())

	got, err := km.Get(KeyringNeo4jPasswordItem)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, km.Set(KeyringNeo4jPasswordItem, "s3cret-pass"))
	got, err = km.Get(KeyringNeo4jPasswordItem)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", got)

	require.NoError(t, km.Delete(KeyringNeo4jPasswordItem))
	require.NoError(t, km.Delete(KeyringNeo4jPasswordItem))

	assert.Error(t, km.Set(KeyringNeo4jPasswordItem, ""))
}

func TestCredentialManager_EnvWins(t *testing.T) {
	keyring.MockInit()
	cm := NewCredentialManager()
	require.NoError(t, cm.keyring.Set(KeyringNeo4jPasswordItem, "from-keychain"))

	t.Setenv("NEO4J_PASSWORD", "from-env")
	got, err := cm.Resolve(KeyringNeo4jPasswordItem, "NEO4J_PASSWORD", false)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	t.Setenv("NEO4J_PASSWORD", "")
	got, err = cm.Resolve(KeyringNeo4jPasswordItem, "NEO4J_PASSWORD", false)
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", got)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("short"))
	assert.Equal(t, "ab...yz", MaskSecret("abcdefwxyz"))
}
