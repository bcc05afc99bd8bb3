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

package vector

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kadirpekel/lector/pkg/config"
)

// Factory builds engine-bound stores from the vector configuration. The
// Postgres handle is shared with the domain store and only required for the
// pgvector backend.
type Factory struct {
	cfg *config.VectorConfig
	db  *gorm.DB
}

// NewFactory creates a store factory.
func NewFactory(cfg *config.VectorConfig, db *gorm.DB) *Factory {
	return &Factory{cfg: cfg, db: db}
}

// DefaultKind returns the configured default backend.
func (f *Factory) DefaultKind() config.VectorStoreKind {
	if f.cfg == nil || f.cfg.Default == "" {
		return config.StoreChromem
	}
	return f.cfg.Default
}

// New builds a store of the given kind bound to one engine. The kind is
// persisted on the engine record at build time; queries reattach with the
// same kind.
func (f *Factory) New(kind config.VectorStoreKind, engine string, dimension int) (Store, error) {
	if kind == "" {
		kind = f.DefaultKind()
	}

	switch kind {
	case config.StoreChromem:
		var cc *config.ChromemConfig
		if f.cfg != nil {
			cc = f.cfg.Chromem
		}
		return NewChromemStore(engine, cc)
	case config.StoreQdrant:
		if f.cfg == nil || f.cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant backend is not configured")
		}
		return NewQdrantStore(engine, dimension, f.cfg.Qdrant)
	case config.StorePgvector:
		if f.db == nil {
			return nil, fmt.Errorf("pgvector backend requires a Postgres connection")
		}
		return NewPgvectorStore(f.db, engine, dimension)
	case config.StorePinecone:
		if f.cfg == nil || f.cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone backend is not configured")
		}
		return NewPineconeStore(engine, dimension, f.cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown vector store kind: %q", kind)
	}
}
