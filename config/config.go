// Package config loads service configuration.
//
// Precedence, lowest first: built-in defaults, YAML file, environment
// variables prefixed INSIGHTS_ (e.g. INSIGHTS_SERVER_PORT,
// INSIGHTS_PIPELINE_DATA_DIR). The merged result is validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "INSIGHTS"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reference ReferenceConfig `yaml:"reference"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true" validate:"min=1"`
}

// PipelineConfig contains pipeline configuration
type PipelineConfig struct {
	DataDir     string        `yaml:"data_dir" split_words:"true" validate:"required"`
	Sigma       float64       `yaml:"sigma" validate:"gt=0"`
	AnomalyTopN int           `yaml:"anomaly_top_n" split_words:"true" validate:"min=1"`
	RunTimeout  time.Duration `yaml:"run_timeout" split_words:"true" validate:"gt=0"`
}

// StoreConfig selects where the current snapshot is persisted
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite file"`
	Path   string `yaml:"path" validate:"required_unless=Driver memory"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true" validate:"required_unless=Output console"`
}

// ReferenceConfig points at the district reference document. Empty means the
// built-in tables.
type ReferenceConfig struct {
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5*time.Minute + 30*time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Pipeline: PipelineConfig{
			DataDir:     "./data",
			Sigma:       2,
			AnomalyTopN: 3,
			RunTimeout:  5 * time.Minute,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "insights.db",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/insights.log",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Only variables that are set override; there are no envconfig defaults,
	// and no explicit envconfig keys (those fall back to unprefixed names
	// such as PATH).
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct constraints. A trigger is answered synchronously,
// so the server write timeout must outlast the run timeout.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Server.WriteTimeout <= c.Pipeline.RunTimeout {
		return fmt.Errorf("server.write_timeout (%s) must be greater than pipeline.run_timeout (%s)",
			c.Server.WriteTimeout, c.Pipeline.RunTimeout)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
