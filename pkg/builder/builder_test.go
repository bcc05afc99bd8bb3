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

package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/embedder"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/store"
	"github.com/kadirpekel/lector/pkg/vector"
)

// lengthEmbedder embeds each text as its length; any text containing
// "poison" fails the whole batch.
type lengthEmbedder struct{}

func (e *lengthEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}

func (e *lengthEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "poison") {
			return nil, fmt.Errorf("upstream rejected batch")
		}
		out[i] = []float32{float32(len(text)), 0, 0}
	}
	return out, nil
}

func (e *lengthEmbedder) Dimension() int    { return 3 }
func (e *lengthEmbedder) ModelName() string { return "length" }
func (e *lengthEmbedder) Close() error      { return nil }

// memSource serves a fixed corpus regardless of URL.
type memSource struct {
	docs []*Document
	err  error
}

func (s *memSource) Documents(ctx context.Context, corpusURL string) ([]*Document, error) {
	return s.docs, s.err
}

func textDoc(name string, texts ...string) *Document {
	doc := &Document{Name: name, URL: "file:///corpus/" + name}
	for _, text := range texts {
		doc.Chunks = append(doc.Chunks, Chunk{
			RawText:     text,
			CleanedText: text,
			Sentences:   splitSentences(text),
			Modality:    "text",
		})
	}
	return doc
}

func newBuilder(t *testing.T, st store.Store, source CorpusSource) *Builder {
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
		return &lengthEmbedder{}, nil
	})
	registry, err := models.NewRegistry(regCfg, models.StaticSecrets{}, inst)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	embeds := embedder.NewService(registry, config.EmbeddingConfig{}, nil)
	vectors := vector.NewFactory(&config.VectorConfig{}, nil)
	return NewBuilder(st, embeds, vectors, source, config.SearchConfig{}, nil)
}

func TestBuildEngineVectorBacked(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{
		textDoc("guide.md", "alpha paragraph.", "beta paragraph."),
		textDoc("faq.md", "gamma paragraph."),
	}})

	res, err := b.BuildEngine(ctx, BuildRequest{
		Name:           "build-vector",
		CorpusURL:      "file:///corpus",
		EmbeddingModel: "fake-embed",
		ChatModel:      "gpt",
		Creator:        "tester",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.ProcessedDocs) != 2 || len(res.UnprocessedDocs) != 0 {
		t.Fatalf("processed %v, unprocessed %v", res.ProcessedDocs, res.UnprocessedDocs)
	}

	engine := res.Engine
	if engine.Type != store.EngineVectorBacked {
		t.Errorf("type = %q, want the vector default", engine.Type)
	}
	if engine.StoreKind != config.StoreChromem {
		t.Errorf("store kind = %q, want the configured default", engine.StoreKind)
	}
	if engine.Visibility != store.VisibilityPublic {
		t.Errorf("visibility = %q, want the public default", engine.Visibility)
	}

	// Chunk indices are contiguous across documents: guide.md owns [0, 2),
	// faq.md owns [2, 3).
	for i := 0; i < 3; i++ {
		if _, err := st.ChunkByIndex(ctx, engine.ID, i); err != nil {
			t.Errorf("chunk %d not persisted: %v", i, err)
		}
	}
	next, err := st.NextChunkOffset(ctx, engine.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 3 {
		t.Errorf("next offset = %d, want 3", next)
	}
}

func TestBuildEngineDuplicateName(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{textDoc("a.md", "alpha.")}})

	if _, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-dup", EmbeddingModel: "fake-embed",
	}); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	_, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-dup", EmbeddingModel: "fake-embed",
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("error = %v, want duplicate rejection", err)
	}
}

func TestBuildEngineNoDocumentsRemovesEngine(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	// Every corpus entry is an unsupported format: zero chunks each.
	b := newBuilder(t, st, &memSource{docs: []*Document{
		{Name: "scan.pdf", URL: "file:///corpus/scan.pdf"},
		{Name: "photo.jpg", URL: "file:///corpus/photo.jpg"},
	}})

	_, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-empty", EmbeddingModel: "fake-embed",
	})
	var ndi *NoDocumentsIndexedError
	if !errors.As(err, &ndi) {
		t.Fatalf("error = %v, want NoDocumentsIndexedError", err)
	}
	if ndi.Engine != "build-empty" {
		t.Errorf("error engine = %q", ndi.Engine)
	}

	// The compensating delete leaves no engine record behind.
	if _, err := st.EngineByName(ctx, "build-empty"); !store.IsNotFound(err) {
		t.Errorf("engine record survived a failed build: %v", err)
	}
}

func TestBuildEngineSkipsFailedDocuments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{
		textDoc("good.md", "alpha paragraph."),
		textDoc("bad.md", "poison paragraph."),
		textDoc("also-good.md", "beta paragraph."),
	}})

	res, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-partial", EmbeddingModel: "fake-embed",
	})
	if err != nil {
		t.Fatalf("document failures must be non-fatal: %v", err)
	}
	if len(res.ProcessedDocs) != 2 {
		t.Errorf("processed = %v, want 2 docs", res.ProcessedDocs)
	}
	if len(res.UnprocessedDocs) != 1 || res.UnprocessedDocs[0] != "file:///corpus/bad.md" {
		t.Errorf("unprocessed = %v, want the failing doc url", res.UnprocessedDocs)
	}

	// The failed document consumes no index range.
	next, err := st.NextChunkOffset(ctx, res.Engine.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 2 {
		t.Errorf("next offset = %d, want 2", next)
	}
}

// chunkFailStore fails the next n CreateChunks calls, then behaves normally.
type chunkFailStore struct {
	store.Store
	failures int
}

func (s *chunkFailStore) CreateChunks(ctx context.Context, chunks []*store.QueryDocumentChunk) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("database unavailable")
	}
	return s.Store.CreateChunks(ctx, chunks)
}

func TestBuildEngineChunkFailureConsumesIndexRange(t *testing.T) {
	ctx := context.Background()
	st := &chunkFailStore{Store: store.NewMemory(), failures: 1}
	b := newBuilder(t, st, &memSource{docs: []*Document{
		textDoc("guide.md", "alpha paragraph.", "beta paragraph."),
		textDoc("faq.md", "gamma paragraph."),
	}})

	res, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-chunkfail", EmbeddingModel: "fake-embed",
	})
	if err != nil {
		t.Fatalf("document failures must be non-fatal: %v", err)
	}
	if len(res.ProcessedDocs) != 1 || res.ProcessedDocs[0] != "faq.md" {
		t.Fatalf("processed = %v, want only faq.md", res.ProcessedDocs)
	}
	if len(res.UnprocessedDocs) != 1 || res.UnprocessedDocs[0] != "file:///corpus/guide.md" {
		t.Errorf("unprocessed = %v, want the chunk-persist failure", res.UnprocessedDocs)
	}

	// guide.md's vectors landed in the backing store before its chunk rows
	// failed to persist, so its index range [0, 2) stays consumed: faq.md
	// must start at index 2, never reuse 0.
	chunk, err := st.ChunkByIndex(ctx, res.Engine.ID, 2)
	if err != nil {
		t.Fatalf("faq.md chunk not at index 2: %v", err)
	}
	if chunk.RawText != "gamma paragraph." {
		t.Errorf("chunk 2 text = %q, want faq.md's chunk", chunk.RawText)
	}
	if _, err := st.ChunkByIndex(ctx, res.Engine.ID, 0); !store.IsNotFound(err) {
		t.Errorf("index 0 resolved to a chunk row despite the failed persist: %v", err)
	}
	next, err := st.NextChunkOffset(ctx, res.Engine.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 3 {
		t.Errorf("next offset = %d, want 3", next)
	}
}

func TestBuildEngineRollbackRemovesVectors(t *testing.T) {
	ctx := context.Background()
	st := &chunkFailStore{Store: store.NewMemory(), failures: 1}
	// A single document whose vectors index fine but whose chunk rows fail:
	// zero documents processed, so the whole build rolls back.
	b := newBuilder(t, st, &memSource{docs: []*Document{
		textDoc("only.md", "alpha paragraph."),
	}})

	_, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-rollback", EmbeddingModel: "fake-embed",
	})
	var ndi *NoDocumentsIndexedError
	if !errors.As(err, &ndi) {
		t.Fatalf("error = %v, want NoDocumentsIndexedError", err)
	}
	if _, err := st.EngineByName(ctx, "build-rollback"); !store.IsNotFound(err) {
		t.Errorf("engine record survived a failed build: %v", err)
	}

	// The rollback covers the vector store too: reattaching to the engine's
	// collection must find no surviving vectors.
	vectors := vector.NewFactory(&config.VectorConfig{}, nil)
	vs, err := vectors.New(config.StoreChromem, "build-rollback", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	indices, err := vs.SimilaritySearch(ctx, []float32{16, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(indices) != 0 {
		t.Errorf("vector store kept indices %v after rollback", indices)
	}
}

func TestBuildEngineManagedSearch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{
		textDoc("manual.md", "warranty claims require a receipt."),
	}})

	res, err := b.BuildEngine(ctx, BuildRequest{
		Name: "build-managed", Type: store.EngineManagedSearch,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Engine.StoreKind != "" {
		t.Errorf("managed engine has store kind %q", res.Engine.StoreKind)
	}
	if len(res.ProcessedDocs) != 1 {
		t.Errorf("processed = %v", res.ProcessedDocs)
	}
}

func TestBuildComposite(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{textDoc("a.md", "alpha.")}})

	for _, name := range []string{"comp-child-a", "comp-child-b"} {
		if _, err := b.BuildEngine(ctx, BuildRequest{
			Name: name, EmbeddingModel: "fake-embed",
		}); err != nil {
			t.Fatalf("leaf build failed: %v", err)
		}
	}

	res, err := b.BuildEngine(ctx, BuildRequest{
		Name:     "comp-parent",
		Type:     store.EngineComposite,
		Children: []string{"comp-child-a", "comp-child-b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	children, err := st.EngineChildren(ctx, res.Engine.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	for _, child := range children {
		if child.ParentID == nil || *child.ParentID != res.Engine.ID {
			t.Errorf("child %q not linked to parent", child.Name)
		}
	}
}

// linkFailStore fails UpdateEngine for one named engine.
type linkFailStore struct {
	store.Store
	failName string
}

func (s *linkFailStore) UpdateEngine(ctx context.Context, engine *store.QueryEngine) error {
	if engine.Name == s.failName {
		return fmt.Errorf("database unavailable")
	}
	return s.Store.UpdateEngine(ctx, engine)
}

func TestBuildCompositeLinkFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	st := &linkFailStore{Store: store.NewMemory(), failName: "rb-child-b"}
	b := newBuilder(t, st, &memSource{docs: []*Document{textDoc("a.md", "alpha.")}})

	for _, name := range []string{"rb-child-a", "rb-child-b"} {
		if _, err := b.BuildEngine(ctx, BuildRequest{
			Name: name, EmbeddingModel: "fake-embed",
		}); err != nil {
			t.Fatalf("leaf build failed: %v", err)
		}
	}

	_, err := b.BuildEngine(ctx, BuildRequest{
		Name:     "rb-parent",
		Type:     store.EngineComposite,
		Children: []string{"rb-child-a", "rb-child-b"},
	})
	if err == nil || !strings.Contains(err.Error(), "linking child engine") {
		t.Fatalf("error = %v, want link failure", err)
	}

	// The half-built composite is removed and the child linked before the
	// failure is unlinked again.
	if _, err := st.EngineByName(ctx, "rb-parent"); !store.IsNotFound(err) {
		t.Errorf("composite record survived a failed build: %v", err)
	}
	childA, err := st.EngineByName(ctx, "rb-child-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if childA.ParentID != nil {
		t.Errorf("child %q still linked to the deleted composite", childA.Name)
	}
}

func TestBuildCompositeValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := newBuilder(t, st, &memSource{docs: []*Document{textDoc("a.md", "alpha.")}})

	if _, err := b.BuildEngine(ctx, BuildRequest{
		Name: "val-leaf", EmbeddingModel: "fake-embed",
	}); err != nil {
		t.Fatalf("leaf build failed: %v", err)
	}
	if _, err := b.BuildEngine(ctx, BuildRequest{
		Name: "val-comp", Type: store.EngineComposite, Children: []string{"val-leaf"},
	}); err != nil {
		t.Fatalf("composite build failed: %v", err)
	}

	// No children.
	if _, err := b.BuildEngine(ctx, BuildRequest{
		Name: "val-none", Type: store.EngineComposite,
	}); err == nil {
		t.Error("expected error for composite without children")
	}
	// Unknown child.
	if _, err := b.BuildEngine(ctx, BuildRequest{
		Name: "val-ghost", Type: store.EngineComposite, Children: []string{"missing"},
	}); err == nil {
		t.Error("expected error for unknown child")
	}
	// Composite child.
	_, err := b.BuildEngine(ctx, BuildRequest{
		Name: "val-nested", Type: store.EngineComposite, Children: []string{"val-comp"},
	})
	if err == nil || !strings.Contains(err.Error(), "non-composite") {
		t.Errorf("error = %v, want composite-child rejection", err)
	}
}

func TestBuildEngineRequiresName(t *testing.T) {
	b := newBuilder(t, store.NewMemory(), &memSource{})
	if _, err := b.BuildEngine(context.Background(), BuildRequest{}); err == nil {
		t.Fatal("expected error for missing name")
	}
}
