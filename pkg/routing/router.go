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

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/prompt"
	"github.com/kadirpekel/lector/pkg/retrieval"
	"github.com/kadirpekel/lector/pkg/store"
)

// historyLimit bounds the conversation context loaded per request.
const historyLimit = 10

// Planner produces a step-by-step plan for a prompt. Supplied by a
// collaborator; the router only dispatches to it.
type Planner interface {
	Plan(ctx context.Context, userID, prompt string) (string, error)
}

// DatasetResult is a tabular answer from a dataset agent. ResourceLink
// points at the full result when it exceeds what is surfaced inline.
type DatasetResult struct {
	Columns      []string
	Rows         [][]string
	ResourceLink string
}

// DatasetAgent answers prompts from a named dataset. Supplied by a
// collaborator; the router only dispatches to it.
type DatasetAgent interface {
	Query(ctx context.Context, dataset, userID, prompt string) (*DatasetResult, error)
}

// Request is one prompt to route.
type Request struct {
	UserID string
	Agent  string
	Prompt string

	// Model is the fallback model id when the agent config and the chosen
	// engine do not name one.
	Model string

	// Route skips classification when set. Must name a route the agent
	// actually exposes.
	Route store.RouteTag

	// RankSentences narrows vector-backed references to the best sentence
	// window.
	RankSentences bool
}

// Router classifies prompts into routes and executes them. Every outcome,
// whatever the route, is normalized into one store.HistoryEntry and
// appended before it is returned.
type Router struct {
	cfg        config.RoutingConfig
	store      store.Store
	pipeline   *retrieval.Pipeline
	assembler  *prompt.Assembler
	dispatcher *llm.Dispatcher
	planner    Planner
	datasets   DatasetAgent
	logger     *slog.Logger
}

// NewRouter creates a router. Planner and dataset agent may be nil when the
// deployment exposes no plan or database routes.
func NewRouter(cfg config.RoutingConfig, st store.Store, pipeline *retrieval.Pipeline, assembler *prompt.Assembler, dispatcher *llm.Dispatcher, planner Planner, datasets DatasetAgent, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:        cfg,
		store:      st,
		pipeline:   pipeline,
		assembler:  assembler,
		dispatcher: dispatcher,
		planner:    planner,
		datasets:   datasets,
		logger:     logger,
	}
}

// Route classifies the request, executes the chosen route and records the
// outcome. The returned entry has already been appended to history.
func (r *Router) Route(ctx context.Context, req Request) (*store.HistoryEntry, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}

	agent := r.cfg.Agents[req.Agent]
	routes, err := buildRoutes(ctx, r.store, agent)
	if err != nil {
		return nil, fmt.Errorf("building route list for agent %q: %w", req.Agent, err)
	}

	modelID := req.Model
	if agent != nil && agent.Model != "" {
		modelID = agent.Model
	}

	var cls Classification
	if req.Route != "" {
		tag, ok := matchRoute(string(req.Route), routes)
		if !ok {
			return nil, fmt.Errorf("agent %q does not expose route %q", req.Agent, req.Route)
		}
		cls = Classification{Route: tag, Rationale: "explicit route"}
	} else {
		kind := config.ClassifierChain
		if agent != nil {
			kind = agent.Classifier
		}
		classifier, err := NewClassifier(kind, r.dispatcher, modelID, r.logger)
		if err != nil {
			return nil, err
		}
		cls, err = classifier.Classify(ctx, req.Prompt, routes)
		if err != nil {
			return nil, err
		}
	}
	r.logger.Info("routed prompt", "agent", req.Agent, "user", req.UserID, "route", cls.Route)

	entry := &store.HistoryEntry{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Agent:     req.Agent,
		Route:     cls.Route,
		Rationale: cls.Rationale,
		Prompt:    req.Prompt,
		CreatedAt: time.Now(),
	}

	switch {
	case cls.Route == store.RouteChat:
		err = r.executeChat(ctx, req, modelID, entry)
	case cls.Route == store.RoutePlan:
		err = r.executePlan(ctx, req, entry)
	case strings.HasPrefix(string(cls.Route), "Query:"):
		err = r.executeQuery(ctx, req, modelID, strings.TrimPrefix(string(cls.Route), "Query:"), entry)
	case strings.HasPrefix(string(cls.Route), "Database:"):
		err = r.executeDatabase(ctx, req, strings.TrimPrefix(string(cls.Route), "Database:"), entry)
	default:
		err = fmt.Errorf("unexecutable route %q", cls.Route)
	}
	if err != nil {
		return nil, err
	}

	if err := r.store.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("appending history: %w", err)
	}
	return entry, nil
}

// executeChat answers from the model and conversation history alone, no
// retrieval.
func (r *Router) executeChat(ctx context.Context, req Request, modelID string, entry *store.HistoryEntry) error {
	history, err := r.store.History(ctx, req.UserID, req.Agent, historyLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	assembled, err := r.assembler.Assemble(ctx, req.Prompt, modelID, nil, history)
	if err != nil {
		return err
	}
	text, _, err := r.dispatcher.Generate(ctx, modelID, assembled.Prompt)
	if err != nil {
		return err
	}
	entry.Content = text
	return nil
}

func (r *Router) executePlan(ctx context.Context, req Request, entry *store.HistoryEntry) error {
	if r.planner == nil {
		return fmt.Errorf("no planner configured")
	}
	plan, err := r.planner.Plan(ctx, req.UserID, req.Prompt)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	entry.Plan = plan
	return nil
}

// executeQuery runs the retrieval pipeline over the named engine, assembles
// the prompt under the chat model's context budget and records the result.
func (r *Router) executeQuery(ctx context.Context, req Request, modelID, engineName string, entry *store.HistoryEntry) error {
	engine, err := r.store.EngineByName(ctx, engineName)
	if err != nil {
		return fmt.Errorf("resolving engine %q: %w", engineName, err)
	}
	if engine.ChatModel != "" {
		modelID = engine.ChatModel
	}

	refs, err := r.pipeline.Retrieve(ctx, req.Prompt, engine, req.RankSentences)
	if err != nil {
		return fmt.Errorf("retrieving from engine %q: %w", engineName, err)
	}

	history, err := r.store.History(ctx, req.UserID, req.Agent, historyLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	assembled, err := r.assembler.Assemble(ctx, req.Prompt, modelID, refs, history)
	if err != nil {
		return err
	}

	text, _, err := r.dispatcher.Generate(ctx, modelID, assembled.Prompt)
	if err != nil {
		return err
	}

	refIDs := make(store.StringSlice, 0, len(assembled.References))
	for _, ref := range assembled.References {
		refIDs = append(refIDs, ref.ID)
	}
	result := &store.QueryResult{
		ID:           uuid.NewString(),
		EngineID:     engine.ID,
		UserID:       req.UserID,
		Prompt:       req.Prompt,
		Response:     text,
		ReferenceIDs: refIDs,
		CreatedAt:    time.Now(),
	}
	if err := r.store.CreateResult(ctx, result); err != nil {
		return fmt.Errorf("persisting result: %w", err)
	}

	entry.Content = text
	entry.ReferenceIDs = refIDs
	return nil
}

// executeDatabase asks the dataset agent and surfaces at most MaxInlineRows
// rows inline; the full result stays behind the resource link.
func (r *Router) executeDatabase(ctx context.Context, req Request, dataset string, entry *store.HistoryEntry) error {
	if r.datasets == nil {
		return fmt.Errorf("no dataset agent configured")
	}
	result, err := r.datasets.Query(ctx, dataset, req.UserID, req.Prompt)
	if err != nil {
		return fmt.Errorf("querying dataset %q: %w", dataset, err)
	}

	rows := result.Rows
	if len(rows) > r.cfg.MaxInlineRows {
		rows = rows[:r.cfg.MaxInlineRows]
		r.logger.Debug("truncated inline rows", "dataset", dataset,
			"total", len(result.Rows), "inline", r.cfg.MaxInlineRows)
	}
	entry.Table = renderTable(result.Columns, rows)
	entry.ResourceLink = result.ResourceLink
	return nil
}

// renderTable formats columns and rows as a markdown table.
func renderTable(columns []string, rows [][]string) string {
	if len(columns) == 0 && len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	if len(columns) > 0 {
		b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	}
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
