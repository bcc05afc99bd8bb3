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

// Package service wires the core together and exposes the platform entry
// points: engine builds, grounded query generation and request routing.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/lector/pkg/builder"
	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/embedder"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/observability"
	"github.com/kadirpekel/lector/pkg/prompt"
	"github.com/kadirpekel/lector/pkg/retrieval"
	"github.com/kadirpekel/lector/pkg/routing"
	"github.com/kadirpekel/lector/pkg/store"
	"github.com/kadirpekel/lector/pkg/vector"
)

// Options carries the optional collaborators a deployment may supply.
type Options struct {
	// Store overrides the gorm-backed store. Used in tests.
	Store store.Store

	// Source overrides the corpus source for builds.
	Source builder.CorpusSource

	// Planner and Datasets back the plan and database routes. Nil leaves
	// those routes unexecutable.
	Planner  routing.Planner
	Datasets routing.DatasetAgent

	Logger *slog.Logger
}

// Service is the assembled core.
type Service struct {
	cfg        *config.Config
	registry   *models.Registry
	store      store.Store
	db         *store.Database
	embeds     *embedder.Service
	dispatcher *llm.Dispatcher
	assembler  *prompt.Assembler
	pipeline   *retrieval.Pipeline
	router     *routing.Router
	builder    *builder.Builder
	metrics    observability.Metrics
	logger     *slog.Logger
}

// New assembles the service from a validated config.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := observability.InitMetrics(ctx, cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	observability.SetGlobalMetrics(metrics)

	registry, err := models.NewRegistry(cfg, models.EnvSecrets{}, NewInstantiator())
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	st := opts.Store
	var db *store.Database
	if st == nil {
		db, err = store.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		st = db
	}

	var factory *vector.Factory
	if db != nil {
		factory = vector.NewFactory(&cfg.Vector, db.DB())
	} else {
		factory = vector.NewFactory(&cfg.Vector, nil)
	}

	embeds := embedder.NewService(registry, cfg.Embedding, logger)
	dispatcher := llm.NewDispatcher(registry, logger)
	assembler := prompt.NewAssembler(dispatcher, cfg.Prompt, logger)

	var ranker retrieval.CrossRanker
	if cfg.Retrieval.RerankModel != "" {
		ranker = retrieval.NewLLMRanker(dispatcher, cfg.Retrieval.RerankModel, logger)
	}
	pipeline := retrieval.NewPipeline(st, embeds, factory, ranker, cfg.Search, logger)
	pipeline.SetTopK(cfg.Retrieval.TopK)

	router := routing.NewRouter(cfg.Routing, st, pipeline, assembler, dispatcher,
		opts.Planner, opts.Datasets, logger)
	bld := builder.NewBuilder(st, embeds, factory, opts.Source, cfg.Search, logger)

	return &Service{
		cfg:        cfg,
		registry:   registry,
		store:      st,
		db:         db,
		embeds:     embeds,
		dispatcher: dispatcher,
		assembler:  assembler,
		pipeline:   pipeline,
		router:     router,
		builder:    bld,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// NewInstantiator builds the registry client constructor covering both model
// kinds: embedding models get an embedder, chat and text models a provider.
func NewInstantiator() models.InstantiatorFunc {
	providers := llm.NewInstantiator()
	return func(d *models.ModelDescriptor) (any, error) {
		if d.Kind == config.ModelKindEmbedding {
			return embedder.NewEmbedderFromDescriptor(d)
		}
		return providers(d)
	}
}

// Registry exposes the model registry, for reloads and enablement queries.
func (s *Service) Registry() *models.Registry { return s.registry }

// Store exposes the domain record store.
func (s *Service) Store() store.Store { return s.store }

// BuildEngine builds a knowledge engine from its corpus.
func (s *Service) BuildEngine(ctx context.Context, req builder.BuildRequest) (*builder.BuildResult, error) {
	return s.builder.BuildEngine(ctx, req)
}

// QueryGenerate answers a prompt grounded in one engine: retrieve, assemble
// under the model's context budget, generate, persist. It returns the
// persisted result and the references that survived prompt assembly.
func (s *Service) QueryGenerate(ctx context.Context, userID, question, engineName, llmType string, priorContext []*store.HistoryEntry) (*store.QueryResult, []*store.QueryReference, error) {
	engine, err := s.store.EngineByName(ctx, engineName)
	if err != nil {
		return nil, nil, err
	}

	modelID := llmType
	if modelID == "" {
		modelID = engine.ChatModel
	}
	if modelID == "" {
		return nil, nil, fmt.Errorf("engine %q has no chat model and none was given", engineName)
	}

	start := time.Now()
	refs, err := s.pipeline.Retrieve(ctx, question, engine, s.cfg.Retrieval.RankSentences)
	s.metrics.RecordRetrieval(ctx, engineName, time.Since(start), len(refs), err)
	if err != nil {
		return nil, nil, err
	}

	assembled, err := s.assembler.Assemble(ctx, question, modelID, refs, priorContext)
	if err != nil {
		return nil, nil, err
	}

	start = time.Now()
	text, tokens, err := s.dispatcher.Generate(ctx, modelID, assembled.Prompt)
	s.metrics.RecordGeneration(ctx, modelID, time.Since(start), tokens, err)
	if err != nil {
		return nil, nil, err
	}

	refIDs := make(store.StringSlice, 0, len(assembled.References))
	for _, ref := range assembled.References {
		refIDs = append(refIDs, ref.ID)
	}
	result := &store.QueryResult{
		ID:           uuid.NewString(),
		EngineID:     engine.ID,
		UserID:       userID,
		Prompt:       question,
		Response:     text,
		ReferenceIDs: refIDs,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateResult(ctx, result); err != nil {
		return nil, nil, fmt.Errorf("persisting result: %w", err)
	}
	return result, assembled.References, nil
}

// Route classifies and executes one prompt, recording the outcome in chat
// history.
func (s *Service) Route(ctx context.Context, req routing.Request) (*store.HistoryEntry, error) {
	entry, err := s.router.Route(ctx, req)
	route := ""
	if entry != nil {
		route = string(entry.Route)
	}
	s.metrics.RecordRoute(ctx, route, err)
	return entry, err
}
