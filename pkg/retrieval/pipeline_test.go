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

package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/embedder"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/store"
	"github.com/kadirpekel/lector/pkg/vector"
)

// keywordEmbedder assigns axis-aligned vectors by keyword so tests control
// which chunk a query lands on.
type keywordEmbedder struct{}

func keywordVector(text string) []float32 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "beta"):
		return []float32{0, 1, 0}
	case strings.Contains(text, "gamma"):
		return []float32{0, 0, 1}
	default:
		return []float32{0.1, 0.1, 0.1}
	}
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return keywordVector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = keywordVector(text)
	}
	return out, nil
}

func (e *keywordEmbedder) Dimension() int    { return 3 }
func (e *keywordEmbedder) ModelName() string { return "keyword" }
func (e *keywordEmbedder) Close() error      { return nil }

type fixture struct {
	store   *store.Memory
	embeds  *embedder.Service
	vectors *vector.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	regCfg := &config.Config{
		Providers: map[string]*config.ProviderConfig{
			"ollama": {Variant: config.VariantOllama},
		},
		Models: map[string]*config.ModelConfig{
			"fake-embed": {Kind: config.ModelKindEmbedding, Provider: "ollama", Dimension: 3},
		},
	}
	regCfg.SetDefaults()

	inst := models.InstantiatorFunc(func(d *models.ModelDescriptor) (any, error) {
		return &keywordEmbedder{}, nil
	})
	registry, err := models.NewRegistry(regCfg, models.StaticSecrets{}, inst)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return &fixture{
		store:   store.NewMemory(),
		embeds:  embedder.NewService(registry, config.EmbeddingConfig{}, nil),
		vectors: vector.NewFactory(&config.VectorConfig{}, nil),
	}
}

func (f *fixture) pipeline(ranker CrossRanker) *Pipeline {
	return NewPipeline(f.store, f.embeds, f.vectors, ranker, config.SearchConfig{}, nil)
}

// seedVectorEngine creates a vector-backed engine with one document per
// entry and one chunk per text, indexed both in the domain store and the
// vector store with matching indices.
func (f *fixture) seedVectorEngine(t *testing.T, name string, docs map[string][]string) *store.QueryEngine {
	t.Helper()
	ctx := context.Background()

	engine := &store.QueryEngine{
		ID:             name + "-id",
		Name:           name,
		Type:           store.EngineVectorBacked,
		EmbeddingModel: "fake-embed",
		StoreKind:      config.StoreChromem,
		Visibility:     store.VisibilityPublic,
		CreatedAt:      time.Now(),
	}
	if err := f.store.CreateEngine(ctx, engine); err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	vs, err := f.vectors.New(config.StoreChromem, name, 3)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	if err := vs.InitIndex(ctx); err != nil {
		t.Fatalf("failed to init index: %v", err)
	}
	t.Cleanup(func() { _ = vs.Delete(context.Background()) })

	offset := 0
	// Iterate in deterministic order so chunk indices are stable.
	names := make([]string, 0, len(docs))
	for docName := range docs {
		names = append(names, docName)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	for d, docName := range names {
		texts := docs[docName]
		doc := &store.QueryDocument{
			ID:         fmt.Sprintf("%s-doc-%d", name, d),
			EngineID:   engine.ID,
			Name:       docName,
			URL:        "file:///corpus/" + docName,
			IndexStart: offset,
			IndexEnd:   offset + len(texts),
			CreatedAt:  time.Now(),
		}
		if err := f.store.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("failed to create document: %v", err)
		}

		chunks := make([]vector.Chunk, len(texts))
		rows := make([]*store.QueryDocumentChunk, len(texts))
		for i, text := range texts {
			chunks[i] = vector.Chunk{Text: text, Vector: keywordVector(text)}
			rows[i] = &store.QueryDocumentChunk{
				ID:          fmt.Sprintf("%s-chunk-%d", name, offset+i),
				EngineID:    engine.ID,
				DocumentID:  doc.ID,
				Index:       offset + i,
				RawText:     text,
				CleanedText: text,
				Modality:    "text",
				CreatedAt:   time.Now(),
			}
		}
		next, err := vs.IndexDocument(ctx, docName, chunks, offset)
		if err != nil {
			t.Fatalf("failed to index document: %v", err)
		}
		if err := f.store.CreateChunks(ctx, rows); err != nil {
			t.Fatalf("failed to create chunks: %v", err)
		}
		offset = next
	}
	return engine
}

func TestRetrieveVectorBindsChunkToDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	engine := f.seedVectorEngine(t, "kb-bind", map[string][]string{
		"faq.md":   {"gamma notes"},
		"guide.md": {"alpha overview", "beta details"},
	})

	p := f.pipeline(nil)
	p.SetTopK(1)

	refs, err := p.Retrieve(ctx, "tell me about beta", engine, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}

	ref := refs[0]
	// faq.md sorts first, so "beta details" is chunk index 2 in guide.md.
	if ref.ChunkIndex != 2 {
		t.Errorf("chunk index = %d, want 2", ref.ChunkIndex)
	}
	if ref.DocumentURL != "file:///corpus/guide.md" {
		t.Errorf("document url = %q, want guide.md", ref.DocumentURL)
	}
	if ref.EngineName != "kb-bind" {
		t.Errorf("engine name = %q", ref.EngineName)
	}
	if ref.Snippet != "beta details" {
		t.Errorf("snippet = %q, want chunk text", ref.Snippet)
	}

	// References persist at retrieval time, before any generation.
	saved, err := f.store.ReferenceByID(ctx, ref.ID)
	if err != nil {
		t.Fatalf("reference not persisted: %v", err)
	}
	if saved.ChunkID != ref.ChunkID {
		t.Errorf("persisted chunk id = %q, want %q", saved.ChunkID, ref.ChunkID)
	}
}

func TestRetrieveVectorDanglingIndexFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	engine := &store.QueryEngine{
		ID:             "kb-dangling-id",
		Name:           "kb-dangling",
		Type:           store.EngineVectorBacked,
		EmbeddingModel: "fake-embed",
		StoreKind:      config.StoreChromem,
		CreatedAt:      time.Now(),
	}
	if err := f.store.CreateEngine(ctx, engine); err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	// Vector hit with no matching chunk row.
	vs, err := f.vectors.New(config.StoreChromem, engine.Name, 3)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	if err := vs.InitIndex(ctx); err != nil {
		t.Fatalf("failed to init index: %v", err)
	}
	t.Cleanup(func() { _ = vs.Delete(context.Background()) })
	if _, err := vs.IndexDocument(ctx, "orphan.md", []vector.Chunk{
		{Text: "alpha orphan", Vector: keywordVector("alpha")},
	}, 0); err != nil {
		t.Fatalf("failed to index: %v", err)
	}

	p := f.pipeline(nil)
	if _, err := p.Retrieve(ctx, "alpha", engine, false); err == nil {
		t.Fatal("expected error for dangling chunk index")
	}
}

func TestRetrieveSentenceRankingNarrowsSnippet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	engine := &store.QueryEngine{
		ID:             "kb-sentences-id",
		Name:           "kb-sentences",
		Type:           store.EngineVectorBacked,
		EmbeddingModel: "fake-embed",
		StoreKind:      config.StoreChromem,
		CreatedAt:      time.Now(),
	}
	if err := f.store.CreateEngine(ctx, engine); err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	doc := &store.QueryDocument{ID: "sent-doc", EngineID: engine.ID, Name: "notes.md", URL: "file:///corpus/notes.md", IndexEnd: 1, CreatedAt: time.Now()}
	if err := f.store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}

	sentences := []string{"First point.", "Second point.", "Third point.", "Fourth point.", "Final beta point."}
	chunk := &store.QueryDocumentChunk{
		ID:          "sent-chunk",
		EngineID:    engine.ID,
		DocumentID:  doc.ID,
		Index:       0,
		RawText:     strings.Join(sentences, " "),
		CleanedText: strings.Join(sentences, " "),
		Sentences:   store.StringSlice(sentences),
		Modality:    "text",
		CreatedAt:   time.Now(),
	}
	if err := f.store.CreateChunks(ctx, []*store.QueryDocumentChunk{chunk}); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}

	vs, err := f.vectors.New(config.StoreChromem, engine.Name, 3)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	if err := vs.InitIndex(ctx); err != nil {
		t.Fatalf("failed to init index: %v", err)
	}
	t.Cleanup(func() { _ = vs.Delete(context.Background()) })
	if _, err := vs.IndexDocument(ctx, doc.Name, []vector.Chunk{
		{Text: chunk.RawText, Vector: keywordVector("beta")},
	}, 0); err != nil {
		t.Fatalf("failed to index: %v", err)
	}

	p := f.pipeline(nil)
	p.SetTopK(1)

	refs, err := p.Retrieve(ctx, "beta", engine, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}

	ref := refs[0]
	// Best sentence is the last one; the window spans the two before it.
	want := "Third point. Fourth point. **Final beta point.**"
	if ref.Snippet != want {
		t.Errorf("snippet = %q, want %q", ref.Snippet, want)
	}
	if ref.WindowStart != 2 || ref.WindowEnd != 5 {
		t.Errorf("window = [%d, %d), want [2, 5)", ref.WindowStart, ref.WindowEnd)
	}
}

// reversingRanker flips the pooled order; its ID bookkeeping is deliberately
// ignored to prove only positions matter.
type reversingRanker struct {
	calls int
}

func (r *reversingRanker) Rank(ctx context.Context, query string, items []RankItem) ([]int, error) {
	r.calls++
	order := make([]int, len(items))
	for i := range items {
		order[i] = len(items) - 1 - i
	}
	return order, nil
}

type failingRanker struct{}

func (r *failingRanker) Rank(ctx context.Context, query string, items []RankItem) ([]int, error) {
	return nil, fmt.Errorf("ranker unavailable")
}

func (f *fixture) seedComposite(t *testing.T, name string, childNames []string, childTexts []string) *store.QueryEngine {
	t.Helper()
	ctx := context.Background()

	parent := &store.QueryEngine{
		ID:        name + "-id",
		Name:      name,
		Type:      store.EngineComposite,
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateEngine(ctx, parent); err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}
	for i, childName := range childNames {
		child := f.seedVectorEngine(t, childName, map[string][]string{
			"doc.md": {childTexts[i]},
		})
		child.ParentID = &parent.ID
		if err := f.store.UpdateEngine(ctx, child); err != nil {
			t.Fatalf("failed to link child: %v", err)
		}
	}
	return parent
}

func TestRetrieveCompositeReranksPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parent := f.seedComposite(t, "comp-rerank",
		[]string{"comp-rerank-a", "comp-rerank-b"},
		[]string{"alpha facts", "beta facts"})

	ranker := &reversingRanker{}
	p := f.pipeline(ranker)
	p.SetTopK(1)

	refs, err := p.Retrieve(ctx, "anything at all", parent, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}
	if ranker.calls != 1 {
		t.Errorf("ranker called %d times, want 1", ranker.calls)
	}
	if refs[0].EngineName != "comp-rerank-b" || refs[1].EngineName != "comp-rerank-a" {
		t.Errorf("reranked order = [%s, %s], want [comp-rerank-b, comp-rerank-a]",
			refs[0].EngineName, refs[1].EngineName)
	}
}

func TestRetrieveCompositeRankFailureKeepsChildOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	parent := f.seedComposite(t, "comp-fallback",
		[]string{"comp-fallback-a", "comp-fallback-b"},
		[]string{"alpha facts", "beta facts"})

	p := f.pipeline(&failingRanker{})
	p.SetTopK(1)

	refs, err := p.Retrieve(ctx, "anything at all", parent, false)
	if err != nil {
		t.Fatalf("rank failure must degrade, not fail: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2", len(refs))
	}
	if refs[0].EngineName != "comp-fallback-a" || refs[1].EngineName != "comp-fallback-b" {
		t.Errorf("order = [%s, %s], want child creation order",
			refs[0].EngineName, refs[1].EngineName)
	}
}

func TestRetrieveCompositeRejectsCompositeChild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	parent := &store.QueryEngine{ID: "nest-parent-id", Name: "nest-parent", Type: store.EngineComposite, CreatedAt: time.Now()}
	if err := f.store.CreateEngine(ctx, parent); err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}
	child := &store.QueryEngine{ID: "nest-child-id", Name: "nest-child", Type: store.EngineComposite, ParentID: &parent.ID, CreatedAt: time.Now()}
	if err := f.store.CreateEngine(ctx, child); err != nil {
		t.Fatalf("failed to create child: %v", err)
	}

	p := f.pipeline(nil)
	if _, err := p.Retrieve(ctx, "query", parent, false); err == nil {
		t.Fatal("expected error for composite child")
	}
}

func TestRetrieveManagedSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	engine := &store.QueryEngine{
		ID:        "kb-managed-id",
		Name:      "kb-managed",
		Type:      store.EngineManagedSearch,
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateEngine(ctx, engine); err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	p := f.pipeline(nil)
	idx, err := p.ManagedIndexFor(engine.Name)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if _, err := idx.IndexDocument(ctx, "manual.md", []string{
		"how to reset the device",
		"warranty claims require a receipt",
	}, 0); err != nil {
		t.Fatalf("failed to index: %v", err)
	}

	refs, err := p.Retrieve(ctx, "warranty receipt", engine, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) == 0 {
		t.Fatal("expected at least one reference")
	}
	if refs[0].DocumentURL != "manual.md" {
		t.Errorf("document = %q, want manual.md", refs[0].DocumentURL)
	}
	if refs[0].ChunkIndex != 1 {
		t.Errorf("chunk index = %d, want 1", refs[0].ChunkIndex)
	}
	if _, err := f.store.ReferenceByID(ctx, refs[0].ID); err != nil {
		t.Errorf("reference not persisted: %v", err)
	}
}
