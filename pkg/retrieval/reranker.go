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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kadirpekel/lector/pkg/llm"
)

// RankItem is one candidate handed to a cross-ranker, keyed by reference id.
type RankItem struct {
	ID   string
	Text string
}

// CrossRanker re-orders pooled references after a composite retrieval. It
// is deliberately independent from the sentence ranker; the two strategies
// are swappable and need not agree.
type CrossRanker interface {
	// Rank returns the positions of items in their new order, best first.
	// Implementations fall back to the identity order rather than failing
	// the retrieval.
	Rank(ctx context.Context, query string, items []RankItem) ([]int, error)
}

// LLMRanker implements CrossRanker with a relevance-scoring generation
// call. Ranking failures degrade to the original order.
type LLMRanker struct {
	dispatcher *llm.Dispatcher
	modelID    string
	maxItems   int
	logger     *slog.Logger
}

type rankingDecision struct {
	Index     int    `json:"index"`
	Relevance int    `json:"relevance"`
	Reason    string `json:"reason,omitempty"`
}

// NewLLMRanker creates a cross-ranker backed by the given chat model.
func NewLLMRanker(dispatcher *llm.Dispatcher, modelID string, logger *slog.Logger) *LLMRanker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMRanker{
		dispatcher: dispatcher,
		modelID:    modelID,
		maxItems:   20,
		logger:     logger,
	}
}

// Rank scores the items against the query and returns the new order. Ties
// keep their original relative order.
func (r *LLMRanker) Rank(ctx context.Context, query string, items []RankItem) ([]int, error) {
	identity := make([]int, len(items))
	for i := range items {
		identity[i] = i
	}
	if len(items) < 2 {
		return identity, nil
	}

	toRank := items
	if len(toRank) > r.maxItems {
		toRank = toRank[:r.maxItems]
	}

	response, _, err := r.dispatcher.Generate(ctx, r.modelID, r.buildPrompt(query, toRank))
	if err != nil {
		r.logger.Warn("reranking failed, keeping original order", "error", err)
		return identity, nil
	}

	rankings, err := parseRankings(response, len(toRank))
	if err != nil {
		r.logger.Warn("failed to parse rankings, keeping original order", "error", err)
		return identity, nil
	}

	order := make([]int, 0, len(items))
	for _, ranking := range rankings {
		order = append(order, ranking.Index)
	}
	// Items beyond the ranking window keep their tail positions.
	for i := len(toRank); i < len(items); i++ {
		order = append(order, i)
	}
	return order, nil
}

func (r *LLMRanker) buildPrompt(query string, items []RankItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`Given the query: "%s"

Rank the following passages by their relevance to the query.
For each passage, provide a relevance score from 1-10 (10 being most relevant).

Passages:
`, query))
	for i, item := range items {
		text := item.Text
		if len(text) > 500 {
			text = text[:500]
		}
		sb.WriteString(fmt.Sprintf("\n[%d] %s\n", i, text))
	}
	sb.WriteString(`
Respond with a JSON array of rankings, ordered from most to least relevant:
[{"index": 0, "relevance": 9, "reason": "directly answers the query"}, ...]

Only include the JSON array, no other text.`)
	return sb.String()
}

// parseRankings extracts ranking decisions from the model response. Every
// input index appears exactly once in the result; indices the model omitted
// come last with minimal relevance. The relevance sort is stable, so ties
// break by original position.
func parseRankings(response string, numItems int) ([]rankingDecision, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var rankings []rankingDecision
	if err := json.Unmarshal([]byte(response[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("failed to parse rankings JSON: %w", err)
	}

	// Rebuild in original item order so the stable sort below breaks
	// relevance ties by original position. Omitted indices score lowest.
	scores := make(map[int]int, numItems)
	for _, ranking := range rankings {
		if ranking.Index >= 0 && ranking.Index < numItems {
			if _, dup := scores[ranking.Index]; !dup {
				scores[ranking.Index] = ranking.Relevance
			}
		}
	}
	valid := make([]rankingDecision, numItems)
	for i := 0; i < numItems; i++ {
		relevance, ok := scores[i]
		if !ok {
			relevance = 1
		}
		valid[i] = rankingDecision{Index: i, Relevance: relevance}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Relevance > valid[j].Relevance
	})
	return valid, nil
}

var _ CrossRanker = (*LLMRanker)(nil)
