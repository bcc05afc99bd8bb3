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

// Package store persists the domain records: engines, documents, chunks,
// references, results and chat history.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kadirpekel/lector/pkg/config"
)

// EngineType is the retrieval family of a knowledge engine.
type EngineType string

const (
	// EngineManagedSearch delegates retrieval to a keyword search index;
	// no local chunk bookkeeping.
	EngineManagedSearch EngineType = "managed_search"

	// EngineVectorBacked retrieves by embedding similarity over a vector
	// store. The default family.
	EngineVectorBacked EngineType = "vector_backed"

	// EngineComposite has no store of its own; its references come only
	// from its children. Children are never composite themselves.
	EngineComposite EngineType = "composite"
)

// Visibility of an engine.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// StringSlice stores a list of strings as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
}

// QueryEngine is one knowledge engine. An engine exclusively owns its
// documents and chunks; deleting it cascades to both.
type QueryEngine struct {
	ID          string                 `gorm:"primaryKey"`
	Name        string                 `gorm:"uniqueIndex"`
	Description string
	Type        EngineType             `gorm:"index"`
	// EmbeddingModel and ChatModel are model ids from the registry.
	EmbeddingModel string
	ChatModel      string
	// StoreKind is fixed at build time so later queries reattach to the
	// same backend. Empty for managed-search and composite engines.
	StoreKind config.VectorStoreKind
	// ParentID links a child to its composite parent.
	ParentID  *string                  `gorm:"index"`
	CorpusURL string
	Visibility Visibility
	Creator    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt          `gorm:"index"`
}

// QueryDocument is one ingested source document. It owns the contiguous
// chunk index range [IndexStart, IndexEnd).
type QueryDocument struct {
	ID         string         `gorm:"primaryKey"`
	EngineID   string         `gorm:"index"`
	Name       string
	URL        string
	IndexStart int
	IndexEnd   int
	CreatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// QueryDocumentChunk is one embedding unit. Index is the join key between
// vector-store search results and chunk content; unique per engine and
// stable for the life of the document.
type QueryDocumentChunk struct {
	ID          string      `gorm:"primaryKey"`
	EngineID    string      `gorm:"index:idx_engine_chunk,unique"`
	DocumentID  string      `gorm:"index"`
	Index       int         `gorm:"column:chunk_index;index:idx_engine_chunk,unique"`
	RawText     string
	CleanedText string
	Sentences   StringSlice
	Modality    string
	CreatedAt   time.Time
}

// QueryReference is a single retrieved chunk bound to a query. Immutable
// once created; persisted immediately per retrieval so a downstream
// generation failure does not lose retrieval cost.
type QueryReference struct {
	ID          string    `gorm:"primaryKey"`
	EngineID    string    `gorm:"index"`
	EngineName  string
	DocumentID  string
	DocumentURL string
	ChunkID     string
	ChunkIndex  int
	Modality    string
	// WindowStart/WindowEnd bound the sentence window quoted in Snippet,
	// when sentence ranking narrowed the chunk.
	WindowStart int
	WindowEnd   int
	Snippet     string
	CreatedAt   time.Time
}

// QueryResult records one successful generation. Append-only history.
type QueryResult struct {
	ID           string      `gorm:"primaryKey"`
	EngineID     string      `gorm:"index"`
	UserID       string      `gorm:"index"`
	Prompt       string
	Response     string
	ReferenceIDs StringSlice
	CreatedAt    time.Time
}

// RouteTag identifies the destination a prompt was dispatched to.
type RouteTag string

const (
	RouteChat RouteTag = "Chat"
	RoutePlan RouteTag = "Plan"
)

// QueryRoute returns the route tag for a knowledge engine.
func QueryRoute(engine string) RouteTag { return RouteTag("Query:" + engine) }

// DatabaseRoute returns the route tag for a dataset.
func DatabaseRoute(dataset string) RouteTag { return RouteTag("Database:" + dataset) }

// HistoryEntry is the normalized envelope every route's outcome is recorded
// as. The common shape is what lets the rest of the platform treat all
// routes uniformly.
type HistoryEntry struct {
	ID        string      `gorm:"primaryKey"`
	UserID    string      `gorm:"index"`
	Agent     string      `gorm:"index"`
	Route     RouteTag
	Rationale string
	Prompt    string
	Content   string
	// ReferenceIDs, Plan and Table carry the route-specific payloads;
	// only the matching one is set.
	ReferenceIDs StringSlice
	Plan         string
	Table        string
	ResourceLink string
	CreatedAt    time.Time
}
