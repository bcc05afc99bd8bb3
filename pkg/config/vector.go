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

package config

import "fmt"

// VectorStoreKind identifies a vector store backend.
type VectorStoreKind string

const (
	// StoreChromem uses chromem-go for embedded vector storage.
	// Zero-config, no external dependencies.
	StoreChromem VectorStoreKind = "chromem"

	// StoreQdrant uses the Qdrant vector database over gRPC.
	StoreQdrant VectorStoreKind = "qdrant"

	// StorePgvector stores vectors in Postgres via the pgvector extension.
	StorePgvector VectorStoreKind = "pgvector"

	// StorePinecone uses the Pinecone managed vector service. Index
	// deployment is asynchronous.
	StorePinecone VectorStoreKind = "pinecone"
)

// VectorConfig configures the available vector store backends.
type VectorConfig struct {
	// Default backend used when an engine build does not name one.
	Default VectorStoreKind `yaml:"default,omitempty"`

	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// PersistPath for file persistence (optional). Empty means in-memory.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress enables gzip compression for persistence.
	Compress bool `yaml:"compress,omitempty"`
}

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// PgvectorConfig configures the Postgres/pgvector backend.
type PgvectorConfig struct {
	// DSN is the Postgres connection string. Falls back to the shared
	// database DSN when empty.
	DSN string `yaml:"dsn,omitempty"`
}

// PineconeConfig configures the Pinecone backend.
type PineconeConfig struct {
	// APIKey for the Pinecone API (required).
	APIKey string `yaml:"api_key"`

	// Cloud provider for serverless indexes (default: aws).
	Cloud string `yaml:"cloud,omitempty"`

	// Region for serverless indexes (default: us-east-1).
	Region string `yaml:"region,omitempty"`
}

// SearchConfig configures the managed keyword-search backend.
type SearchConfig struct {
	// IndexPath is the on-disk bleve index root. Empty means in-memory.
	IndexPath string `yaml:"index_path,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorConfig) SetDefaults() {
	if c.Default == "" {
		c.Default = StoreChromem
	}
	if c.Default == StoreChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
	if c.Qdrant != nil && c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Pinecone != nil {
		if c.Pinecone.Cloud == "" {
			c.Pinecone.Cloud = "aws"
		}
		if c.Pinecone.Region == "" {
			c.Pinecone.Region = "us-east-1"
		}
	}
}

// Validate checks the configuration.
func (c *VectorConfig) Validate() error {
	switch c.Default {
	case StoreChromem, StoreQdrant, StorePgvector, StorePinecone:
	default:
		return fmt.Errorf("unknown vector store kind: %q", c.Default)
	}
	if c.Default == StoreQdrant && (c.Qdrant == nil || c.Qdrant.Host == "") {
		return fmt.Errorf("qdrant host is required")
	}
	if c.Default == StorePinecone && (c.Pinecone == nil || c.Pinecone.APIKey == "") {
		return fmt.Errorf("pinecone api_key is required")
	}
	return nil
}
