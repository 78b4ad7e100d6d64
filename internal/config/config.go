package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Impact    ImpactConfig    `mapstructure:"impact" yaml:"impact"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Plugins   PluginsConfig   `mapstructure:"plugins" yaml:"plugins"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type StorageConfig struct {
	Type        string `mapstructure:"type" yaml:"type"` // "sqlite", "postgres"
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn,omitempty"`
	LocalPath   string `mapstructure:"local_path" yaml:"local_path"`
}

// Neo4jConfig controls the optional graph mirror
type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	Database string `mapstructure:"database" yaml:"database"`
}

type InferenceConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	ContextLines  int     `mapstructure:"context_lines" yaml:"context_lines"`
}

type ImpactConfig struct {
	MaxDepth  int `mapstructure:"max_depth" yaml:"max_depth"`
	MaxFanOut int `mapstructure:"max_fan_out" yaml:"max_fan_out"`
	MaxChains int `mapstructure:"max_chains" yaml:"max_chains"`
}

type PipelineConfig struct {
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	MaxFileSize       int64         `mapstructure:"max_file_size" yaml:"max_file_size"`
	ProgressPath      string        `mapstructure:"progress_path" yaml:"progress_path"`
	ProgressRetention time.Duration `mapstructure:"progress_retention" yaml:"progress_retention"`
	MetricsFile       string        `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
}

type PluginsConfig struct {
	Directory       string        `mapstructure:"directory" yaml:"directory"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SpawnsPerSecond float64       `mapstructure:"spawns_per_second" yaml:"spawns_per_second"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".repograph")
	return &Config{
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(base, "graph.db"),
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Inference: InferenceConfig{
			MinConfidence: 0.5,
			ContextLines:  200,
		},
		Impact: ImpactConfig{
			MaxDepth:  5,
			MaxFanOut: 20,
			MaxChains: 100,
		},
		Pipeline: PipelineConfig{
			Workers:           8,
			MaxFileSize:       1024 * 1024,
			ProgressPath:      filepath.Join(base, "progress.db"),
			ProgressRetention: 24 * time.Hour,
		},
		Plugins: PluginsConfig{
			Directory:       filepath.Join(base, "plugins"),
			Timeout:         2 * time.Minute,
			SpawnsPerSecond: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file, environment and .env files
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix("REPOGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".repograph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".repograph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Pipeline.ProgressPath = expandPath(cfg.Pipeline.ProgressPath)
	cfg.Plugins.Directory = expandPath(cfg.Plugins.Directory)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)

	v.SetDefault("neo4j.enabled", cfg.Neo4j.Enabled)
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.username", cfg.Neo4j.Username)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)

	v.SetDefault("inference.min_confidence", cfg.Inference.MinConfidence)
	v.SetDefault("inference.context_lines", cfg.Inference.ContextLines)

	v.SetDefault("impact.max_depth", cfg.Impact.MaxDepth)
	v.SetDefault("impact.max_fan_out", cfg.Impact.MaxFanOut)
	v.SetDefault("impact.max_chains", cfg.Impact.MaxChains)

	v.SetDefault("pipeline.workers", cfg.Pipeline.Workers)
	v.SetDefault("pipeline.max_file_size", cfg.Pipeline.MaxFileSize)
	v.SetDefault("pipeline.progress_path", cfg.Pipeline.ProgressPath)
	v.SetDefault("pipeline.progress_retention", cfg.Pipeline.ProgressRetention)
	v.SetDefault("pipeline.metrics_file", cfg.Pipeline.MetricsFile)

	v.SetDefault("plugins.directory", cfg.Plugins.Directory)
	v.SetDefault("plugins.timeout", cfg.Plugins.Timeout)
	v.SetDefault("plugins.spawns_per_second", cfg.Plugins.SpawnsPerSecond)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.json", cfg.Logging.JSON)
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".repograph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the unprefixed environment variables shared with
// other tooling (docker-compose files, CI).
func applyEnvOverrides(cfg *Config) {
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = path
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.Username = user
	}
	if enabled := os.Getenv("NEO4J_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Neo4j.Enabled = b
		}
	}

	// Precedence: env var, then keychain
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	} else if cfg.Neo4j.Enabled && cfg.Neo4j.Password == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if secret, err := km.Get(KeyringNeo4jPasswordItem); err == nil && secret != "" {
				cfg.Neo4j.Password = secret
			}
		}
	}

	if minConf := os.Getenv("INFERENCE_MIN_CONFIDENCE"); minConf != "" {
		if f, err := strconv.ParseFloat(minConf, 64); err == nil {
			cfg.Inference.MinConfidence = f
		}
	}
	if workers := os.Getenv("PIPELINE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration as YAML. Secrets are never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
