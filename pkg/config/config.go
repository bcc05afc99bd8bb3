// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration types and loading for the lector
// RAG and routing core. Every config struct follows the same contract:
// SetDefaults() fills in omitted values, Validate() rejects deployment
// errors before anything is constructed from the config.
package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kadirpekel/lector/pkg/observability"
)

// Config is the root configuration for the lector core.
type Config struct {
	Logger    LoggerConfig                `yaml:"logger,omitempty"`
	Providers map[string]*ProviderConfig  `yaml:"providers,omitempty"`
	Vendors   map[string]*VendorConfig    `yaml:"vendors,omitempty"`
	Models    map[string]*ModelConfig     `yaml:"models,omitempty"`
	Embedding EmbeddingConfig             `yaml:"embedding,omitempty"`
	Vector    VectorConfig                `yaml:"vector,omitempty"`
	Search    SearchConfig                `yaml:"search,omitempty"`
	Database  DatabaseConfig              `yaml:"database,omitempty"`
	Prompt    PromptConfig                `yaml:"prompt,omitempty"`
	Routing   RoutingConfig               `yaml:"routing,omitempty"`
	Retrieval RetrievalConfig             `yaml:"retrieval,omitempty"`
	Metrics   observability.MetricsConfig `yaml:"metrics,omitempty"`
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	// Level: debug, info, warn, error (default: info).
	Level string `yaml:"level,omitempty"`

	// File path for log output. Empty means stderr.
	File string `yaml:"file,omitempty"`

	// Format: text or json (default: text).
	Format string `yaml:"format,omitempty"`
}

// DatabaseConfig configures domain record persistence.
type DatabaseConfig struct {
	// Driver: postgres or sqlite (default: sqlite).
	Driver string `yaml:"driver,omitempty"`

	// DSN is the connection string. For sqlite this is a file path;
	// ":memory:" gives an ephemeral database.
	DSN string `yaml:"dsn,omitempty"`
}

// EmbeddingConfig configures embedding request batching.
type EmbeddingConfig struct {
	// BatchSize is the number of texts per embedding request (default: 5).
	BatchSize int `yaml:"batch_size,omitempty"`

	// RequestsPerSecond is the shared submission rate ceiling across a
	// whole batch run (default: 10).
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// MaxConcurrency bounds in-flight embedding requests (default: 4).
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`
}

// knownTopLevelKeys is the closed set of root config keys. Unknown keys are
// deployment errors and abort loading.
var knownTopLevelKeys = map[string]bool{
	"logger": true, "providers": true, "vendors": true, "models": true,
	"embedding": true, "vector": true, "search": true, "database": true,
	"prompt": true, "routing": true, "metrics": true, "retrieval": true,
}

// Load reads, expands and validates a YAML config file.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	raw := k.Raw()
	for key := range raw {
		if !knownTopLevelKeys[key] {
			return nil, fmt.Errorf("unknown config key %q in %s", key, path)
		}
	}

	expanded, ok := ExpandEnvVarsInData(raw).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("config %s: unexpected structure after expansion", path)
	}

	// Check model entries for unknown keys before unmarshaling silently
	// drops them.
	if models, ok := expanded["models"].(map[string]interface{}); ok {
		for id, entry := range models {
			fields, ok := entry.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("model %q: expected a mapping", id)
			}
			for key := range fields {
				if !KnownModelKey(key) {
					return nil, fmt.Errorf("model %q: unknown key %q", id, key)
				}
			}
		}
	}

	expandedK := koanf.New(".")
	if err := expandedK.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to stage expanded config: %w", err)
	}

	var cfg Config
	if err := expandedK.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults applies default values recursively.
func (c *Config) SetDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "lector.db"
	}
	c.Embedding.SetDefaults()
	c.Vector.SetDefaults()
	c.Prompt.SetDefaults()
	c.Routing.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Metrics.SetDefaults()
	for _, p := range c.Providers {
		p.SetDefaults()
	}
	for _, m := range c.Models {
		m.SetDefaults()
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for postgres")
	}

	for name, p := range c.Providers {
		if err := p.Validate(name); err != nil {
			return err
		}
	}
	for id, m := range c.Models {
		if err := m.Validate(id); err != nil {
			return err
		}
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Vector.Validate(); err != nil {
		return err
	}
	if err := c.Prompt.Validate(); err != nil {
		return err
	}
	if err := c.Routing.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}

// SetDefaults applies default values.
func (c *EmbeddingConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
}

// Validate checks the configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("embedding batch_size must be at least 1")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("embedding requests_per_second must be positive")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("embedding max_concurrency must be at least 1")
	}
	return nil
}
