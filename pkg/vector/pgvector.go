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
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// PgvectorStore implements Store on Postgres with the pgvector extension.
// One table per engine; the chunk index is the primary key, so similarity
// search returns the join key directly. Cosine distance via the <=>
// operator.
type PgvectorStore struct {
	db        *gorm.DB
	engine    string
	dimension int
	table     string
}

// NewPgvectorStore creates a pgvector-backed store for one engine on an
// already-open Postgres handle.
func NewPgvectorStore(db *gorm.DB, engine string, dimension int) (*PgvectorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension is required")
	}
	return &PgvectorStore{
		db:        db,
		engine:    engine,
		dimension: dimension,
		table:     vectorTableName(engine),
	}, nil
}

// vectorTableName derives a safe table identifier from the engine name.
func vectorTableName(engine string) string {
	var b strings.Builder
	b.WriteString("engine_vectors_")
	for _, r := range strings.ToLower(engine) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// InitIndex ensures the extension and the engine's table exist.
func (s *PgvectorStore) InitIndex(ctx context.Context) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		chunk_index integer PRIMARY KEY,
		doc_name text NOT NULL,
		chunk_text text,
		embedding vector(%d) NOT NULL
	)`, s.table, s.dimension)
	if err := tx.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// IndexDocument inserts one document's chunks with contiguous indices from
// startOffset and returns the next free offset.
func (s *PgvectorStore) IndexDocument(ctx context.Context, docName string, chunks []Chunk, startOffset int) (int, error) {
	if len(chunks) == 0 {
		return startOffset, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmt := fmt.Sprintf(
			"INSERT INTO %s (chunk_index, doc_name, chunk_text, embedding) VALUES (?, ?, ?, ?)", s.table)
		for i, chunk := range chunks {
			idx := startOffset + i
			if err := tx.Exec(stmt, idx, docName, chunk.Text, pgvector.NewVector(chunk.Vector)).Error; err != nil {
				return fmt.Errorf("chunk %d: %w", idx, err)
			}
		}
		return nil
	})
	if err != nil {
		return startOffset, fmt.Errorf("failed to index document %q: %w", docName, err)
	}
	return startOffset + len(chunks), nil
}

// SimilaritySearch returns chunk indices by increasing cosine distance.
func (s *PgvectorStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]int, error) {
	var indices []int
	query := fmt.Sprintf(
		"SELECT chunk_index FROM %s ORDER BY embedding <=> ? LIMIT ?", s.table)
	err := s.db.WithContext(ctx).
		Raw(query, pgvector.NewVector(queryVector), topK).
		Scan(&indices).Error
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return indices, nil
}

// Deploy is a no-op for database-backed storage.
func (s *PgvectorStore) Deploy(ctx context.Context) error { return nil }

// Delete drops the engine's table.
func (s *PgvectorStore) Delete(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + s.table).Error; err != nil {
		return fmt.Errorf("failed to drop table %s: %w", s.table, err)
	}
	return nil
}

var _ Store = (*PgvectorStore)(nil)
