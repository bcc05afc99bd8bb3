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

// Package retrieval turns a prompt and a knowledge engine into persisted
// query references.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/embedder"
	"github.com/kadirpekel/lector/pkg/registry"
	"github.com/kadirpekel/lector/pkg/search"
	"github.com/kadirpekel/lector/pkg/store"
	"github.com/kadirpekel/lector/pkg/vector"
)

// DefaultTopK is the number of chunks retrieved per engine.
const DefaultTopK = 5

// sentenceWindow is the symmetric neighbor span quoted around the best
// sentence when sentence ranking is on.
const sentenceWindow = 2

// Pipeline retrieves references for a prompt from one engine. Behavior is a
// state machine over the engine type: managed-search delegation,
// vector-backed similarity search, or composite child fan-out with a
// re-ranking barrier.
type Pipeline struct {
	store   store.Store
	embeds  *embedder.Service
	vectors *vector.Factory
	ranker  CrossRanker
	topK    int
	logger  *slog.Logger

	searchCfg config.SearchConfig
	indexes   *registry.BaseRegistry[*search.ManagedIndex]
}

// NewPipeline creates a retrieval pipeline.
func NewPipeline(st store.Store, embeds *embedder.Service, vectors *vector.Factory, ranker CrossRanker, searchCfg config.SearchConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		embeds:    embeds,
		vectors:   vectors,
		ranker:    ranker,
		topK:      DefaultTopK,
		logger:    logger,
		searchCfg: searchCfg,
		indexes:   registry.NewBaseRegistry[*search.ManagedIndex](),
	}
}

// SetTopK overrides the per-engine retrieval depth.
func (p *Pipeline) SetTopK(topK int) {
	if topK > 0 {
		p.topK = topK
	}
}

// ManagedIndexFor returns the engine's keyword index, opening it on first
// use.
func (p *Pipeline) ManagedIndexFor(engine string) (*search.ManagedIndex, error) {
	return p.indexes.GetOrCreate(engine, func() (*search.ManagedIndex, error) {
		return search.NewManagedIndex(engine, p.searchCfg)
	})
}

// Retrieve returns the references grounding prompt against engine. Every
// reference is persisted as soon as it is resolved so a downstream
// generation failure does not lose retrieval work.
func (p *Pipeline) Retrieve(ctx context.Context, prompt string, engine *store.QueryEngine, rankSentences bool) ([]*store.QueryReference, error) {
	switch engine.Type {
	case store.EngineManagedSearch:
		return p.retrieveManaged(ctx, prompt, engine)
	case store.EngineVectorBacked:
		return p.retrieveVector(ctx, prompt, engine, rankSentences)
	case store.EngineComposite:
		return p.retrieveComposite(ctx, prompt, engine, rankSentences)
	default:
		return nil, fmt.Errorf("engine %q has unknown type %q", engine.Name, engine.Type)
	}
}

func (p *Pipeline) retrieveManaged(ctx context.Context, prompt string, engine *store.QueryEngine) ([]*store.QueryReference, error) {
	idx, err := p.ManagedIndexFor(engine.Name)
	if err != nil {
		return nil, err
	}
	hits, err := idx.Query(ctx, prompt, p.topK)
	if err != nil {
		return nil, err
	}

	refs := make([]*store.QueryReference, 0, len(hits))
	for _, hit := range hits {
		ref := &store.QueryReference{
			ID:          uuid.NewString(),
			EngineID:    engine.ID,
			EngineName:  engine.Name,
			DocumentURL: hit.DocName,
			ChunkIndex:  hit.ChunkIndex,
			Modality:    "text",
			Snippet:     hit.Fragment,
			CreatedAt:   time.Now(),
		}
		if err := p.store.CreateReference(ctx, ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (p *Pipeline) retrieveVector(ctx context.Context, prompt string, engine *store.QueryEngine, rankSentences bool) ([]*store.QueryReference, error) {
	emb, err := p.embeds.EmbedderFor(engine.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	queryVec, err := emb.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to embed prompt: %w", err)
	}

	vs, err := p.vectors.New(engine.StoreKind, engine.Name, emb.Dimension())
	if err != nil {
		return nil, err
	}
	indices, err := vs.SimilaritySearch(ctx, queryVec, p.topK)
	if err != nil {
		return nil, err
	}

	refs := make([]*store.QueryReference, 0, len(indices))
	for rank, index := range indices {
		// A dangling index is a contract violation, not an empty result.
		chunk, err := p.store.ChunkByIndex(ctx, engine.ID, index)
		if err != nil {
			return nil, err
		}
		doc, err := p.store.DocumentByID(ctx, chunk.DocumentID)
		if err != nil {
			return nil, err
		}

		snippet := chunk.CleanedText
		if snippet == "" {
			snippet = chunk.RawText
		}
		windowStart, windowEnd := 0, 0

		// Sentence ranking tightens the quote inside the best chunk; it
		// never drops chunks.
		if rankSentences && rank == 0 && len(chunk.Sentences) > 0 {
			snippet, windowStart, windowEnd, err = p.rankSentences(ctx, emb, queryVec, chunk.Sentences)
			if err != nil {
				p.logger.Warn("sentence ranking failed, keeping full chunk",
					"engine", engine.Name, "chunk", index, "error", err)
				snippet = chunk.CleanedText
				if snippet == "" {
					snippet = chunk.RawText
				}
				windowStart, windowEnd = 0, 0
			}
		}

		ref := &store.QueryReference{
			ID:          uuid.NewString(),
			EngineID:    engine.ID,
			EngineName:  engine.Name,
			DocumentID:  doc.ID,
			DocumentURL: doc.URL,
			ChunkID:     chunk.ID,
			ChunkIndex:  chunk.Index,
			Modality:    chunk.Modality,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
			Snippet:     snippet,
			CreatedAt:   time.Now(),
		}
		if err := p.store.CreateReference(ctx, ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// rankSentences embeds each sentence, finds the one most similar to the
// query and quotes it bolded inside a symmetric neighbor window.
func (p *Pipeline) rankSentences(ctx context.Context, emb embedder.Embedder, queryVec []float32, sentences []string) (string, int, int, error) {
	vecs, err := emb.EmbedBatch(ctx, sentences)
	if err != nil {
		return "", 0, 0, err
	}
	if len(vecs) != len(sentences) {
		return "", 0, 0, fmt.Errorf("expected %d sentence embeddings, got %d", len(sentences), len(vecs))
	}

	best := 0
	bestScore := math.Inf(-1)
	for i, vec := range vecs {
		if score := cosineSimilarity(queryVec, vec); score > bestScore {
			bestScore = score
			best = i
		}
	}

	start := best - sentenceWindow
	if start < 0 {
		start = 0
	}
	end := best + sentenceWindow + 1
	if end > len(sentences) {
		end = len(sentences)
	}

	parts := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i == best {
			parts = append(parts, "**"+sentences[i]+"**")
		} else {
			parts = append(parts, sentences[i])
		}
	}
	return strings.Join(parts, " "), start, end, nil
}

func (p *Pipeline) retrieveComposite(ctx context.Context, prompt string, engine *store.QueryEngine, rankSentences bool) ([]*store.QueryReference, error) {
	children, err := p.store.EngineChildren(ctx, engine.ID)
	if err != nil {
		return nil, err
	}

	// Children retrieve independently; their reference persistence is
	// keyed by distinct ids, so the fan-out is safe. The barrier below is
	// required before any cross-engine re-ranking.
	childRefs := make([][]*store.QueryReference, len(children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		if child.Type == store.EngineComposite {
			return nil, fmt.Errorf("composite engine %q has composite child %q", engine.Name, child.Name)
		}
		g.Go(func() error {
			refs, err := p.Retrieve(gctx, prompt, child, rankSentences)
			if err != nil {
				return fmt.Errorf("child engine %q: %w", child.Name, err)
			}
			childRefs[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pooled []*store.QueryReference
	for _, refs := range childRefs {
		pooled = append(pooled, refs...)
	}

	if len(pooled) > 1 && p.ranker != nil {
		items := make([]RankItem, len(pooled))
		for i, ref := range pooled {
			items[i] = RankItem{ID: ref.ID, Text: ref.Snippet}
		}
		order, err := p.ranker.Rank(ctx, prompt, items)
		if err != nil {
			p.logger.Warn("cross-engine reranking failed, keeping child order",
				"engine", engine.Name, "error", err)
			return pooled, nil
		}
		reordered := make([]*store.QueryReference, 0, len(pooled))
		for _, pos := range order {
			if pos >= 0 && pos < len(pooled) {
				reordered = append(reordered, pooled[pos])
			}
		}
		if len(reordered) == len(pooled) {
			pooled = reordered
		}
	}
	return pooled, nil
}

// cosineSimilarity between two vectors; zero when either has no magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
