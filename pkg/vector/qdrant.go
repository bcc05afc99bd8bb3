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

	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/lector/pkg/config"
)

// QdrantStore implements Store using the Qdrant vector database over gRPC.
// One collection per engine; chunk indices are stored as integer point ids,
// so search results come back as the join key directly.
type QdrantStore struct {
	client    *qdrant.Client
	engine    string
	dimension int
}

// NewQdrantStore creates a Qdrant-backed store for one engine.
func NewQdrantStore(engine string, dimension int, cfg *config.QdrantConfig) (*QdrantStore, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, port, err)
	}

	return &QdrantStore{client: client, engine: engine, dimension: dimension}, nil
}

// InitIndex creates the engine's collection with cosine distance.
func (s *QdrantStore) InitIndex(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.engine)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.engine,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection %q: %w", s.engine, err)
	}
	return nil
}

// IndexDocument upserts one document's chunks with contiguous integer point
// ids from startOffset and returns the next free offset.
func (s *QdrantStore) IndexDocument(ctx context.Context, docName string, chunks []Chunk, startOffset int) (int, error) {
	if len(chunks) == 0 {
		return startOffset, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		idx := startOffset + i
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(idx)),
			Vectors: qdrant.NewVectors(chunk.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"doc_name": docName,
				"text":     chunk.Text,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.engine,
		Points:         points,
	})
	if err != nil {
		return startOffset, fmt.Errorf("failed to index document %q: %w", docName, err)
	}
	return startOffset + len(chunks), nil
}

// SimilaritySearch returns chunk indices by decreasing cosine similarity.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]int, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.engine,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	indices := make([]int, 0, len(results))
	for _, r := range results {
		num, ok := r.Id.PointIdOptions.(*qdrant.PointId_Num)
		if !ok {
			return nil, fmt.Errorf("non-integer point id in collection %q", s.engine)
		}
		indices = append(indices, int(num.Num))
	}
	return indices, nil
}

// Deploy is a no-op; Qdrant indexes points as they are upserted.
func (s *QdrantStore) Deploy(ctx context.Context) error { return nil }

// Delete removes the engine's collection.
func (s *QdrantStore) Delete(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.engine); err != nil {
		return fmt.Errorf("failed to delete collection %q: %w", s.engine, err)
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
