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

package embedder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/observability"
)

// fakeEmbedder maps each text to a deterministic vector and fails any batch
// containing a text marked "boom".
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "boom") {
			return nil, fmt.Errorf("upstream rejected batch")
		}
		out[i] = []float32{float32(len(text)), 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func newTestService(t *testing.T, cfg config.EmbeddingConfig) *Service {
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
		return &fakeEmbedder{}, nil
	})
	registry, err := models.NewRegistry(regCfg, models.StaticSecrets{}, inst)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return NewService(registry, cfg, nil)
}

func TestEmbedAllOrderStable(t *testing.T) {
	svc := newTestService(t, config.EmbeddingConfig{
		BatchSize:         2,
		RequestsPerSecond: 1000,
		MaxConcurrency:    4,
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	flags, vectors, err := svc.EmbedAll(context.Background(), texts, "fake-embed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(flags) != len(texts) {
		t.Fatalf("flags length = %d, want %d", len(flags), len(texts))
	}
	if len(vectors) != len(texts) {
		t.Fatalf("vectors length = %d, want %d", len(vectors), len(texts))
	}
	for i, text := range texts {
		if !flags[i] {
			t.Errorf("text %d unexpectedly flagged as failed", i)
		}
		if vectors[i][0] != float32(len(text)) {
			t.Errorf("vector %d = %v, out of input order", i, vectors[i])
		}
	}
}

func TestEmbedAllPartialFailure(t *testing.T) {
	svc := newTestService(t, config.EmbeddingConfig{
		BatchSize:         2,
		RequestsPerSecond: 1000,
		MaxConcurrency:    1,
	})

	// Batch layout with size 2: [a bb] [boom dddd] [eeeee]; middle batch fails.
	texts := []string{"a", "bb", "boom", "dddd", "eeeee"}
	flags, vectors, err := svc.EmbedAll(context.Background(), texts, "fake-embed")
	if err != nil {
		t.Fatalf("batch failure must be non-fatal, got: %v", err)
	}

	want := []bool{true, true, false, false, true}
	for i, w := range want {
		if flags[i] != w {
			t.Errorf("flags[%d] = %v, want %v", i, flags[i], w)
		}
	}
	if len(vectors) != 3 {
		t.Fatalf("vectors length = %d, want 3 (shorter than input on failure)", len(vectors))
	}
	// Realigning through flags pairs each vector with its text.
	lens := []float32{1, 2, 5}
	for i, vec := range vectors {
		if vec[0] != lens[i] {
			t.Errorf("vectors[%d][0] = %v, want %v", i, vec[0], lens[i])
		}
	}
}

func TestEmbedAllEmptyInput(t *testing.T) {
	svc := newTestService(t, config.EmbeddingConfig{})
	flags, vectors, err := svc.EmbedAll(context.Background(), nil, "fake-embed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flags) != 0 || len(vectors) != 0 {
		t.Errorf("expected empty result, got %d flags %d vectors", len(flags), len(vectors))
	}
}

func TestEmbedAllUnknownModel(t *testing.T) {
	svc := newTestService(t, config.EmbeddingConfig{})
	if _, _, err := svc.EmbedAll(context.Background(), []string{"x"}, "missing"); err == nil {
		t.Fatal("expected model resolution error")
	}
}

// countingMetrics records embedding instrumentation calls.
type countingMetrics struct {
	embedCalls int
	embedTexts int
	embedErrs  int
}

func (m *countingMetrics) RecordGeneration(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
}

func (m *countingMetrics) RecordEmbedding(ctx context.Context, model string, duration time.Duration, texts int, err error) {
	m.embedCalls++
	m.embedTexts += texts
	if err != nil {
		m.embedErrs++
	}
}

func (m *countingMetrics) RecordRetrieval(ctx context.Context, engine string, duration time.Duration, references int, err error) {
}

func (m *countingMetrics) RecordRoute(ctx context.Context, route string, err error) {}

func TestEmbedAllRecordsMetrics(t *testing.T) {
	recorder := &countingMetrics{}
	observability.SetGlobalMetrics(recorder)
	defer observability.SetGlobalMetrics(&observability.PrometheusMetrics{})

	svc := newTestService(t, config.EmbeddingConfig{
		BatchSize:         2,
		RequestsPerSecond: 1000,
		MaxConcurrency:    2,
	})

	if _, _, err := svc.EmbedAll(context.Background(), []string{"a", "bb", "ccc"}, "fake-embed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorder.embedCalls != 1 {
		t.Errorf("embedding recorded %d times, want 1", recorder.embedCalls)
	}
	if recorder.embedTexts != 3 {
		t.Errorf("recorded %d texts, want 3", recorder.embedTexts)
	}

	if _, err := svc.Embed(context.Background(), "solo", "fake-embed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorder.embedCalls != 2 {
		t.Errorf("embedding recorded %d times, want 2 after single embed", recorder.embedCalls)
	}

	// Failed batches still show up, carrying their error.
	if _, _, err := svc.EmbedAll(context.Background(), []string{"x"}, "missing"); err == nil {
		t.Fatal("expected model resolution error")
	}
	if recorder.embedCalls != 3 {
		t.Errorf("embedding recorded %d times, want 3 after failed batch", recorder.embedCalls)
	}
	if recorder.embedErrs != 1 {
		t.Errorf("recorded %d errors, want 1 for the failed batch", recorder.embedErrs)
	}
}

func TestPacerSpacesSubmissions(t *testing.T) {
	p := newPacer(100) // 10ms interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("three submissions took %v, expected pacing of at least 20ms total spacing", elapsed)
	}
}

func TestPacerCancellation(t *testing.T) {
	p := newPacer(1) // 1s interval
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.wait(ctx); err != nil {
		t.Fatalf("first slot should be immediate: %v", err)
	}
	cancel()
	if err := p.wait(ctx); err == nil {
		t.Fatal("expected context cancellation")
	}
}
