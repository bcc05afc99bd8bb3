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

// Package builder creates knowledge engines from pre-chunked corpora.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/embedder"
	"github.com/kadirpekel/lector/pkg/search"
	"github.com/kadirpekel/lector/pkg/store"
	"github.com/kadirpekel/lector/pkg/vector"
)

// NoDocumentsIndexedError reports a build that processed zero documents.
// The builder deletes the partially created engine before returning it.
type NoDocumentsIndexedError struct {
	Engine string
}

func (e *NoDocumentsIndexedError) Error() string {
	return fmt.Sprintf("no documents indexed for engine %q", e.Engine)
}

// BuildRequest describes one engine build.
type BuildRequest struct {
	Name        string
	Description string
	Creator     string
	Type        store.EngineType

	CorpusURL      string
	ChatModel      string
	EmbeddingModel string

	// StoreKind selects the vector backend. Empty means the configured
	// default. Ignored for managed-search and composite engines.
	StoreKind config.VectorStoreKind

	Visibility store.Visibility

	// Children names the child engines of a composite build.
	Children []string
}

// BuildResult is the payload a build hands back to its caller.
type BuildResult struct {
	Engine *store.QueryEngine

	// ProcessedDocs and UnprocessedDocs partition the corpus by outcome.
	// A document lands in UnprocessedDocs when it yields no usable chunks
	// or its embedding fails entirely; the build continues regardless.
	ProcessedDocs   []string
	UnprocessedDocs []string
}

// Builder builds engines: it creates the record, indexes the corpus and
// deploys the backing store.
type Builder struct {
	store     store.Store
	embeds    *embedder.Service
	vectors   *vector.Factory
	source    CorpusSource
	searchCfg config.SearchConfig
	logger    *slog.Logger
}

// NewBuilder creates a builder.
func NewBuilder(st store.Store, embeds *embedder.Service, vectors *vector.Factory, source CorpusSource, searchCfg config.SearchConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		source = &DirectorySource{}
	}
	return &Builder{
		store:     st,
		embeds:    embeds,
		vectors:   vectors,
		source:    source,
		searchCfg: searchCfg,
		logger:    logger,
	}
}

// BuildEngine builds one engine. Builds are idempotent by name: a second
// build with the same name fails validation instead of duplicating. A build
// that processes zero documents deletes the engine record it created and
// returns NoDocumentsIndexedError.
func (b *Builder) BuildEngine(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("engine name is required")
	}
	if _, err := b.store.EngineByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("engine %q already exists", req.Name)
	} else if !store.IsNotFound(err) {
		return nil, err
	}

	if req.Type == "" {
		req.Type = store.EngineVectorBacked
	}
	if req.Visibility == "" {
		req.Visibility = store.VisibilityPublic
	}

	if req.Type == store.EngineComposite {
		return b.buildComposite(ctx, req)
	}

	engine := &store.QueryEngine{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		EmbeddingModel: req.EmbeddingModel,
		ChatModel:      req.ChatModel,
		CorpusURL:      req.CorpusURL,
		Visibility:     req.Visibility,
		Creator:        req.Creator,
		CreatedAt:      time.Now(),
	}
	if req.Type == store.EngineVectorBacked {
		engine.StoreKind = req.StoreKind
		if engine.StoreKind == "" {
			engine.StoreKind = b.vectors.DefaultKind()
		}
	}
	if err := b.store.CreateEngine(ctx, engine); err != nil {
		return nil, fmt.Errorf("creating engine %q: %w", req.Name, err)
	}

	result, err := b.indexCorpus(ctx, engine)
	if err != nil {
		if delErr := b.store.DeleteEngine(ctx, engine.ID); delErr != nil {
			b.logger.Error("compensating engine delete failed",
				"engine", engine.Name, "error", delErr)
		}
		return nil, err
	}
	return result, nil
}

// buildComposite creates a composite engine over existing children.
// Children must exist and must not be composite themselves; retrieval
// depth is exactly one level.
func (b *Builder) buildComposite(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if len(req.Children) == 0 {
		return nil, fmt.Errorf("composite engine %q needs at least one child", req.Name)
	}

	children := make([]*store.QueryEngine, 0, len(req.Children))
	for _, name := range req.Children {
		child, err := b.store.EngineByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving child engine %q: %w", name, err)
		}
		if child.Type == store.EngineComposite {
			return nil, fmt.Errorf("child engine %q is composite; composite engines may only contain non-composite children", name)
		}
		children = append(children, child)
	}

	engine := &store.QueryEngine{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Type:        store.EngineComposite,
		ChatModel:   req.ChatModel,
		Visibility:  req.Visibility,
		Creator:     req.Creator,
		CreatedAt:   time.Now(),
	}
	if err := b.store.CreateEngine(ctx, engine); err != nil {
		return nil, fmt.Errorf("creating engine %q: %w", req.Name, err)
	}

	for i, child := range children {
		child.ParentID = &engine.ID
		if err := b.store.UpdateEngine(ctx, child); err != nil {
			// Unwind the links made so far and remove the engine record; a
			// half-linked composite must not survive the failed build.
			for _, linked := range children[:i] {
				linked.ParentID = nil
				if ulErr := b.store.UpdateEngine(ctx, linked); ulErr != nil {
					b.logger.Error("unlinking child engine failed",
						"engine", linked.Name, "error", ulErr)
				}
			}
			if delErr := b.store.DeleteEngine(ctx, engine.ID); delErr != nil {
				b.logger.Error("compensating engine delete failed",
					"engine", engine.Name, "error", delErr)
			}
			return nil, fmt.Errorf("linking child engine %q: %w", child.Name, err)
		}
	}
	return &BuildResult{Engine: engine}, nil
}

// indexCorpus ingests the corpus into the engine's backing store. Document
// failures are non-fatal; only a build processing zero documents fails.
func (b *Builder) indexCorpus(ctx context.Context, engine *store.QueryEngine) (*BuildResult, error) {
	docs, err := b.source.Documents(ctx, engine.CorpusURL)
	if err != nil {
		return nil, fmt.Errorf("loading corpus %q: %w", engine.CorpusURL, err)
	}

	var (
		vstore vector.Store
		index  *search.ManagedIndex
	)
	switch engine.Type {
	case store.EngineVectorBacked:
		emb, err := b.embeds.EmbedderFor(engine.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		vstore, err = b.vectors.New(engine.StoreKind, engine.Name, emb.Dimension())
		if err != nil {
			return nil, err
		}
		if err := vstore.InitIndex(ctx); err != nil {
			return nil, fmt.Errorf("initializing %s index: %w", engine.StoreKind, err)
		}
	case store.EngineManagedSearch:
		index, err = search.NewManagedIndex(engine.Name, b.searchCfg)
		if err != nil {
			return nil, fmt.Errorf("opening search index: %w", err)
		}
	default:
		return nil, fmt.Errorf("cannot index corpus for engine type %q", engine.Type)
	}

	result := &BuildResult{Engine: engine}
	offset, err := b.store.NextChunkOffset(ctx, engine.ID)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		next, err := b.indexDocument(ctx, engine, vstore, index, doc, offset)
		// Indices already handed to the backing store stay consumed even
		// when persisting the document fails; reusing them would hand a
		// later document chunk indices that resolve to the wrong vectors.
		offset = next
		if err != nil {
			b.logger.Warn("document not indexed",
				"engine", engine.Name, "document", doc.Name, "error", err)
			result.UnprocessedDocs = append(result.UnprocessedDocs, doc.URL)
			continue
		}
		result.ProcessedDocs = append(result.ProcessedDocs, doc.Name)
	}

	if len(result.ProcessedDocs) == 0 {
		b.deleteBackingStore(ctx, engine, vstore, index)
		return nil, &NoDocumentsIndexedError{Engine: engine.Name}
	}

	if vstore != nil {
		if err := vstore.Deploy(ctx); err != nil {
			b.deleteBackingStore(ctx, engine, vstore, index)
			return nil, fmt.Errorf("deploying %s index: %w", engine.StoreKind, err)
		}
	}
	if index != nil {
		if err := index.Deploy(ctx); err != nil {
			b.deleteBackingStore(ctx, engine, vstore, index)
			return nil, fmt.Errorf("deploying search index: %w", err)
		}
	}
	b.logger.Info("engine built", "engine", engine.Name, "type", engine.Type,
		"processed", len(result.ProcessedDocs), "unprocessed", len(result.UnprocessedDocs))
	return result, nil
}

// deleteBackingStore removes the engine's vector or search index after a
// failed build so the rollback covers more than the DB records.
func (b *Builder) deleteBackingStore(ctx context.Context, engine *store.QueryEngine, vstore vector.Store, index *search.ManagedIndex) {
	if vstore != nil {
		if err := vstore.Delete(ctx); err != nil {
			b.logger.Error("compensating vector store delete failed",
				"engine", engine.Name, "error", err)
		}
	}
	if index != nil {
		if err := index.Delete(ctx); err != nil {
			b.logger.Error("compensating search index delete failed",
				"engine", engine.Name, "error", err)
		}
	}
}

// indexDocument indexes one document starting at offset and returns the
// next free offset alongside any error. The document record owns the
// contiguous index range [offset, next); a returned offset greater than
// the given one means the range was consumed by the backing store even if
// the document itself failed, and must never be reassigned.
func (b *Builder) indexDocument(ctx context.Context, engine *store.QueryEngine, vstore vector.Store, index *search.ManagedIndex, doc *Document, offset int) (int, error) {
	if len(doc.Chunks) == 0 {
		return offset, fmt.Errorf("no usable chunks")
	}

	kept := doc.Chunks
	var vectors [][]float32
	if vstore != nil {
		texts := make([]string, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			texts[i] = embeddableText(chunk)
		}
		flags, vecs, err := b.embeds.EmbedAll(ctx, texts, engine.EmbeddingModel)
		if err != nil {
			return offset, fmt.Errorf("embedding chunks: %w", err)
		}
		// Vector output skips failed batches; realign against the flags so
		// kept chunks and their vectors stay positionally paired.
		kept = kept[:0:0]
		vi := 0
		for i, ok := range flags {
			if !ok {
				continue
			}
			kept = append(kept, doc.Chunks[i])
			vectors = append(vectors, vecs[vi])
			vi++
		}
		if len(kept) == 0 {
			return offset, fmt.Errorf("all chunk embeddings failed")
		}
	}

	var next int
	if vstore != nil {
		chunks := make([]vector.Chunk, len(kept))
		for i, chunk := range kept {
			chunks[i] = vector.Chunk{Text: embeddableText(chunk), Vector: vectors[i]}
		}
		n, err := vstore.IndexDocument(ctx, doc.Name, chunks, offset)
		if err != nil {
			return offset, fmt.Errorf("indexing vectors: %w", err)
		}
		next = n
	} else {
		texts := make([]string, len(kept))
		for i, chunk := range kept {
			texts[i] = embeddableText(chunk)
		}
		n, err := index.IndexDocument(ctx, doc.Name, texts, offset)
		if err != nil {
			return offset, fmt.Errorf("indexing text: %w", err)
		}
		next = n
	}

	record := &store.QueryDocument{
		ID:         uuid.NewString(),
		EngineID:   engine.ID,
		Name:       doc.Name,
		URL:        doc.URL,
		IndexStart: offset,
		IndexEnd:   next,
		CreatedAt:  time.Now(),
	}
	if err := b.store.CreateDocument(ctx, record); err != nil {
		return next, fmt.Errorf("persisting document: %w", err)
	}

	if vstore != nil {
		rows := make([]*store.QueryDocumentChunk, len(kept))
		for i, chunk := range kept {
			rows[i] = &store.QueryDocumentChunk{
				ID:          uuid.NewString(),
				EngineID:    engine.ID,
				DocumentID:  record.ID,
				Index:       offset + i,
				RawText:     chunk.RawText,
				CleanedText: chunk.CleanedText,
				Sentences:   store.StringSlice(chunk.Sentences),
				Modality:    chunk.Modality,
				CreatedAt:   time.Now(),
			}
		}
		if err := b.store.CreateChunks(ctx, rows); err != nil {
			return next, fmt.Errorf("persisting chunks: %w", err)
		}
	}
	return next, nil
}

func embeddableText(chunk Chunk) string {
	if chunk.CleanedText != "" {
		return chunk.CleanedText
	}
	return chunk.RawText
}
