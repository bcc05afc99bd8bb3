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
	"strconv"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/lector/pkg/config"
)

// PineconeStore implements Store on the Pinecone managed vector service.
// One serverless index per engine. Index creation is asynchronous on
// Pinecone's side, so Deploy polls readiness instead of assuming it.
type PineconeStore struct {
	client    *pinecone.Client
	engine    string
	index     string
	dimension int
	cloud     string
	region    string
}

// NewPineconeStore creates a Pinecone-backed store for one engine.
func NewPineconeStore(engine string, dimension int, cfg *config.PineconeConfig) (*PineconeStore, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	cloud := cfg.Cloud
	if cloud == "" {
		cloud = "aws"
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	return &PineconeStore{
		client:    client,
		engine:    engine,
		index:     pineconeIndexName(engine),
		dimension: dimension,
		cloud:     cloud,
		region:    region,
	}, nil
}

// pineconeIndexName derives a valid index name from the engine name.
// Pinecone allows lowercase alphanumerics and hyphens.
func pineconeIndexName(engine string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(engine) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// InitIndex creates the engine's serverless index if it does not exist.
func (s *PineconeStore) InitIndex(ctx context.Context) error {
	if _, err := s.client.DescribeIndex(ctx, s.index); err == nil {
		return nil
	}

	_, err := s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      s.index,
		Dimension: int32(s.dimension),
		Metric:    pinecone.Cosine,
		Cloud:     pinecone.Cloud(s.cloud),
		Region:    s.region,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create index %q: %w", s.index, err)
	}
	return nil
}

func (s *PineconeStore) connection(ctx context.Context) (*pinecone.IndexConnection, error) {
	index, err := s.client.DescribeIndex(ctx, s.index)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %q: %w", s.index, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %q: %w", s.index, err)
	}
	return conn, nil
}

// IndexDocument upserts one document's chunks with contiguous indices from
// startOffset and returns the next free offset. Pinecone ids are strings;
// the integer index round-trips through strconv.
func (s *PineconeStore) IndexDocument(ctx context.Context, docName string, chunks []Chunk, startOffset int) (int, error) {
	if len(chunks) == 0 {
		return startOffset, nil
	}

	conn, err := s.connection(ctx)
	if err != nil {
		return startOffset, err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for i, chunk := range chunks {
		idx := startOffset + i
		metadata, err := structpb.NewStruct(map[string]any{
			"doc_name": docName,
			"text":     chunk.Text,
		})
		if err != nil {
			return startOffset, fmt.Errorf("failed to convert metadata: %w", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       strconv.Itoa(idx),
			Values:   chunk.Vector,
			Metadata: metadata,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return startOffset, fmt.Errorf("failed to index document %q: %w", docName, err)
	}
	return startOffset + len(chunks), nil
}

// SimilaritySearch returns chunk indices by decreasing similarity score.
func (s *PineconeStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]int, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector: queryVector,
		TopK:   uint32(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	indices := make([]int, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		idx, err := strconv.Atoi(match.Vector.Id)
		if err != nil {
			return nil, fmt.Errorf("non-integer vector id %q in index %q", match.Vector.Id, s.index)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// Deploy waits for the managed index to become ready. Serving readiness is
// asynchronous on Pinecone's side; the poll gives up when ctx expires.
func (s *PineconeStore) Deploy(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		index, err := s.client.DescribeIndex(ctx, s.index)
		if err != nil {
			return fmt.Errorf("failed to describe index %q: %w", s.index, err)
		}
		if index.Status != nil && index.Status.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("index %q not ready: %w", s.index, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Delete removes the engine's index.
func (s *PineconeStore) Delete(ctx context.Context) error {
	if err := s.client.DeleteIndex(ctx, s.index); err != nil {
		return fmt.Errorf("failed to delete index %q: %w", s.index, err)
	}
	return nil
}

var _ Store = (*PineconeStore)(nil)
