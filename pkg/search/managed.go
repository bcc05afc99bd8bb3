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

// Package search backs ManagedSearch engines with a Bleve keyword index.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/kadirpekel/lector/pkg/config"
)

// Result is one keyword-search hit, already resolved to the chunk join key.
type Result struct {
	// ChunkIndex is the engine-scoped chunk index.
	ChunkIndex int

	// DocName of the chunk's parent document.
	DocName string

	// Score assigned by the index.
	Score float64

	// Fragment is the highlighted text excerpt, empty when the index has
	// no stored content for the hit.
	Fragment string
}

type chunkEntry struct {
	DocName string `json:"doc_name"`
	Content string `json:"content"`
}

// ManagedIndex is a per-engine Bleve index over chunk text. It serves the
// ManagedSearch engine family; Deploy is a no-op so the retrieval pipeline
// can treat both engine families uniformly.
type ManagedIndex struct {
	engine string
	path   string
	index  bleve.Index
}

// NewManagedIndex creates or reopens the keyword index for one engine.
// With an empty IndexPath the index lives in memory.
func NewManagedIndex(engine string, cfg config.SearchConfig) (*ManagedIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize without stemming, so exact
	// terms match as typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("doc_name", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	if cfg.IndexPath == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &ManagedIndex{engine: engine, index: index}, nil
	}

	path := filepath.Join(cfg.IndexPath, engine)
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
		}
		return &ManagedIndex{engine: engine, path: path, index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	return &ManagedIndex{engine: engine, path: path, index: index}, nil
}

// IndexDocument indexes one document's chunk texts with contiguous indices
// from startOffset and returns the next free offset. Same offset-handoff
// contract as the vector stores.
func (m *ManagedIndex) IndexDocument(ctx context.Context, docName string, texts []string, startOffset int) (int, error) {
	batch := m.index.NewBatch()
	for i, text := range texts {
		idx := startOffset + i
		if err := batch.Index(strconv.Itoa(idx), chunkEntry{DocName: docName, Content: text}); err != nil {
			return startOffset, fmt.Errorf("failed to batch chunk %d: %w", idx, err)
		}
	}
	if err := m.index.Batch(batch); err != nil {
		return startOffset, fmt.Errorf("failed to index document %q: %w", docName, err)
	}
	return startOffset + len(texts), nil
}

// Query runs a match query and returns up to topK hits with highlights.
func (m *ManagedIndex) Query(ctx context.Context, query string, topK int) ([]Result, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = topK
	req.Fields = []string{"doc_name", "content"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("content")

	results, err := m.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	out := make([]Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		idx, err := strconv.Atoi(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("non-integer chunk id %q in index %q", hit.ID, m.engine)
		}
		r := Result{ChunkIndex: idx, Score: hit.Score}
		if name, ok := hit.Fields["doc_name"].(string); ok {
			r.DocName = name
		}
		if frags, ok := hit.Fragments["content"]; ok && len(frags) > 0 {
			r.Fragment = frags[0]
		}
		out = append(out, r)
	}
	return out, nil
}

// Deploy is a no-op; Bleve serves reads as soon as the batch commits.
func (m *ManagedIndex) Deploy(ctx context.Context) error { return nil }

// Delete closes the index and removes its files.
func (m *ManagedIndex) Delete(ctx context.Context) error {
	if err := m.index.Close(); err != nil {
		return fmt.Errorf("failed to close index %q: %w", m.engine, err)
	}
	if m.path != "" {
		if err := os.RemoveAll(m.path); err != nil {
			return fmt.Errorf("failed to remove index files at %s: %w", m.path, err)
		}
	}
	return nil
}

// Close releases the index without deleting files.
func (m *ManagedIndex) Close() error { return m.index.Close() }
