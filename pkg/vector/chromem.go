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
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/lector/pkg/config"
)

// ChromemStore implements Store using chromem-go for embedded vector
// storage. Zero external services; vectors live in memory with optional
// file persistence. Single-process only.
type ChromemStore struct {
	db     *chromem.DB
	engine string
	mu     sync.Mutex
	col    *chromem.Collection
}

// Embedding is always pre-computed; chromem's embedding func must never run.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
}

// chromem DBs are shared across engines within one persist path.
var (
	chromemDBMu sync.Mutex
	chromemDBs  = map[string]*chromem.DB{}
)

func chromemDB(cfg *config.ChromemConfig) (*chromem.DB, error) {
	chromemDBMu.Lock()
	defer chromemDBMu.Unlock()

	key := ""
	if cfg != nil {
		key = cfg.PersistPath
	}
	if db, ok := chromemDBs[key]; ok {
		return db, nil
	}

	var db *chromem.DB
	if key != "" {
		if err := os.MkdirAll(key, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(key, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database at %s: %w", key, err)
		}
	} else {
		db = chromem.NewDB()
	}
	chromemDBs[key] = db
	return db, nil
}

// NewChromemStore creates a chromem-backed store for one engine.
func NewChromemStore(engine string, cfg *config.ChromemConfig) (*ChromemStore, error) {
	db, err := chromemDB(cfg)
	if err != nil {
		return nil, err
	}
	return &ChromemStore{db: db, engine: engine}, nil
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.engine, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", s.engine, err)
	}
	s.col = col
	return col, nil
}

// InitIndex creates the engine's collection.
func (s *ChromemStore) InitIndex(ctx context.Context) error {
	_, err := s.collection()
	return err
}

// IndexDocument writes one document's chunks with contiguous indices from
// startOffset and returns the next free offset.
func (s *ChromemStore) IndexDocument(ctx context.Context, docName string, chunks []Chunk, startOffset int) (int, error) {
	col, err := s.collection()
	if err != nil {
		return startOffset, err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		idx := startOffset + i
		docs = append(docs, chromem.Document{
			ID:      strconv.Itoa(idx),
			Content: chunk.Text,
			Metadata: map[string]string{
				"doc_name": docName,
				"index":    strconv.Itoa(idx),
			},
			Embedding: chunk.Vector,
		})
	}
	if len(docs) == 0 {
		return startOffset, nil
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return startOffset, fmt.Errorf("failed to index document %q: %w", docName, err)
	}
	return startOffset + len(chunks), nil
}

// SimilaritySearch returns chunk indices by decreasing cosine similarity.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]int, error) {
	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem errors when asked for more results than stored documents.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, queryVector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	indices := make([]int, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("non-integer chunk id %q in collection %q", r.ID, s.engine)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// Deploy is a no-op; chromem serves reads as soon as writes land.
func (s *ChromemStore) Deploy(ctx context.Context) error { return nil }

// Delete removes the engine's collection and its vectors.
func (s *ChromemStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.engine); err != nil {
		return fmt.Errorf("failed to delete collection %q: %w", s.engine, err)
	}
	s.col = nil
	return nil
}

var _ Store = (*ChromemStore)(nil)
