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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/observability"
)

// pacer spaces request submissions to a fixed requests-per-second ceiling.
// The ceiling is shared by every worker in a batch, not enforced per worker.
type pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newPacer(requestsPerSecond float64) *pacer {
	if requestsPerSecond <= 0 {
		return &pacer{}
	}
	return &pacer{interval: time.Duration(float64(time.Second) / requestsPerSecond)}
}

// wait blocks until the caller's submission slot arrives or ctx is done.
func (p *pacer) wait(ctx context.Context) error {
	if p.interval == 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.interval)
	p.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Service is the batched embedding entry point. It resolves the embedding
// model through the registry, splits work into fixed-size batches, fans the
// batches out over a bounded worker pool and stitches the results back in
// input order.
type Service struct {
	registry *models.Registry
	cfg      config.EmbeddingConfig
	logger   *slog.Logger
}

// NewService creates the embedding service.
func NewService(registry *models.Registry, cfg config.EmbeddingConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.SetDefaults()
	return &Service{registry: registry, cfg: cfg, logger: logger}
}

// EmbedderFor resolves the embedder client for an enabled embedding model.
func (s *Service) EmbedderFor(modelID string) (Embedder, error) {
	desc, err := s.registry.Current().EnabledModel(modelID)
	if err != nil {
		return nil, err
	}
	e, ok := desc.Client().(Embedder)
	if !ok || e == nil {
		return nil, fmt.Errorf("model %q has no embedding client", modelID)
	}
	return e, nil
}

// Embed converts a single text through the given embedding model.
func (s *Service) Embed(ctx context.Context, text, modelID string) ([]float32, error) {
	e, err := s.EmbedderFor(modelID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	vec, err := e.Embed(ctx, text)
	observability.GetGlobalMetrics().RecordEmbedding(ctx, modelID, time.Since(start), 1, err)
	return vec, err
}

// EmbedAll embeds texts in fixed-size batches under the shared rate ceiling.
//
// The returned flags slice is positionally aligned with the input; vectors
// holds only the successful embeddings, in input order. When any batch fails
// the vectors slice is therefore shorter than the input and callers must
// realign through flags rather than index into the original list.
//
// A batch failure is non-fatal: its items are flagged false, logged, and the
// remaining batches still run. The returned error is non-nil only when the
// model cannot be resolved or the context is cancelled.
func (s *Service) EmbedAll(ctx context.Context, texts []string, modelID string) ([]bool, [][]float32, error) {
	start := time.Now()
	flags, vectors, err := s.embedAll(ctx, texts, modelID)
	observability.GetGlobalMetrics().RecordEmbedding(ctx, modelID, time.Since(start), len(texts), err)
	return flags, vectors, err
}

func (s *Service) embedAll(ctx context.Context, texts []string, modelID string) ([]bool, [][]float32, error) {
	flags := make([]bool, len(texts))
	if len(texts) == 0 {
		return flags, nil, nil
	}

	e, err := s.EmbedderFor(modelID)
	if err != nil {
		return nil, nil, err
	}

	batchSize := s.cfg.BatchSize
	nBatches := (len(texts) + batchSize - 1) / batchSize
	batchVectors := make([][][]float32, nBatches)
	batchErrs := make([]error, nBatches)

	p := newPacer(s.cfg.RequestsPerSecond)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for b := 0; b < nBatches; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			if err := p.wait(gctx); err != nil {
				return err
			}
			vecs, err := e.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				// Recorded, not returned: one failed upstream call
				// should not sink the whole document.
				batchErrs[b] = err
				return nil
			}
			batchVectors[b] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for b := 0; b < nBatches; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if batchErrs[b] != nil {
			s.logger.Warn("embedding batch failed",
				"model", modelID, "batch", b, "items", end-start, "error", batchErrs[b])
			continue
		}
		for i, vec := range batchVectors[b] {
			if vec == nil {
				continue
			}
			flags[start+i] = true
			vectors = append(vectors, vec)
		}
	}
	return flags, vectors, nil
}
