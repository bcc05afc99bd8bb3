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
	"testing"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/models"
)

// scriptedProvider replays a fixed response for every generation.
type scriptedProvider struct {
	response string
	err      error
	calls    int
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	p.calls++
	if p.err != nil {
		return "", 0, p.err
	}
	return p.response, len(p.response), nil
}

func (p *scriptedProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Text: p.response, Final: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) ModelName() string  { return "scripted" }
func (p *scriptedProvider) ContextLength() int { return 8192 }
func (p *scriptedProvider) Close() error       { return nil }

func newTestDispatcher(t *testing.T, provider llm.Provider) *llm.Dispatcher {
	t.Helper()
	regCfg := &config.Config{
		Providers: map[string]*config.ProviderConfig{
			"ollama": {Variant: config.VariantOllama},
		},
		Models: map[string]*config.ModelConfig{
			"fake-chat": {Kind: config.ModelKindChat, Provider: "ollama"},
		},
	}
	regCfg.SetDefaults()

	inst := models.InstantiatorFunc(func(d *models.ModelDescriptor) (any, error) {
		return provider, nil
	})
	registry, err := models.NewRegistry(regCfg, models.StaticSecrets{}, inst)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return llm.NewDispatcher(registry, nil)
}

func TestParseRankingsOrdersByRelevance(t *testing.T) {
	response := `Here are the rankings:
[{"index": 2, "relevance": 9, "reason": "direct"}, {"index": 0, "relevance": 5}]
Done.`

	rankings, err := parseRankings(response, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rankings) != 3 {
		t.Fatalf("got %d rankings, want 3", len(rankings))
	}
	// Index 1 was omitted, so it scores lowest and comes last.
	want := []int{2, 0, 1}
	for i, w := range want {
		if rankings[i].Index != w {
			t.Errorf("rankings[%d].Index = %d, want %d", i, rankings[i].Index, w)
		}
	}
}

func TestParseRankingsTiesKeepOriginalOrder(t *testing.T) {
	response := `[{"index": 2, "relevance": 5}, {"index": 0, "relevance": 5}, {"index": 1, "relevance": 5}]`

	rankings, err := parseRankings(response, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if rankings[i].Index != i {
			t.Errorf("rankings[%d].Index = %d, want %d (ties break by position)", i, rankings[i].Index, i)
		}
	}
}

func TestParseRankingsIgnoresInvalidIndices(t *testing.T) {
	// Out-of-range index dropped; duplicate keeps its first score.
	response := `[{"index": 7, "relevance": 10}, {"index": 0, "relevance": 8}, {"index": 0, "relevance": 1}]`

	rankings, err := parseRankings(response, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rankings) != 2 {
		t.Fatalf("got %d rankings, want 2", len(rankings))
	}
	if rankings[0].Index != 0 || rankings[0].Relevance != 8 {
		t.Errorf("rankings[0] = %+v, want index 0 with first-seen score 8", rankings[0])
	}
}

func TestParseRankingsMalformed(t *testing.T) {
	for _, response := range []string{
		"no rankings at all",
		"[this is not json]",
		"]backwards[",
	} {
		if _, err := parseRankings(response, 2); err == nil {
			t.Errorf("parseRankings(%q) succeeded, want error", response)
		}
	}
}

func TestLLMRankerSingleItemSkipsModel(t *testing.T) {
	provider := &scriptedProvider{response: "unused"}
	ranker := NewLLMRanker(newTestDispatcher(t, provider), "fake-chat", nil)

	order, err := ranker.Rank(context.Background(), "query", []RankItem{{ID: "a", Text: "only"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != 0 {
		t.Errorf("order = %v, want [0]", order)
	}
	if provider.calls != 0 {
		t.Errorf("model called %d times for a single item, want 0", provider.calls)
	}
}

func TestLLMRankerReorders(t *testing.T) {
	provider := &scriptedProvider{
		response: `[{"index": 1, "relevance": 9}, {"index": 0, "relevance": 3}]`,
	}
	ranker := NewLLMRanker(newTestDispatcher(t, provider), "fake-chat", nil)

	order, err := ranker.Rank(context.Background(), "query", []RankItem{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 0 {
		t.Errorf("order = %v, want [1 0]", order)
	}
}

func TestLLMRankerGenerationFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("upstream down")}
	ranker := NewLLMRanker(newTestDispatcher(t, provider), "fake-chat", nil)

	items := []RankItem{{ID: "a", Text: "first"}, {ID: "b", Text: "second"}}
	order, err := ranker.Rank(context.Background(), "query", items)
	if err != nil {
		t.Fatalf("generation failure must degrade, not fail: %v", err)
	}
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("order = %v, want identity", order)
	}
}

func TestLLMRankerUnparseableResponseDegrades(t *testing.T) {
	provider := &scriptedProvider{response: "I cannot rank these."}
	ranker := NewLLMRanker(newTestDispatcher(t, provider), "fake-chat", nil)

	order, err := ranker.Rank(context.Background(), "query", []RankItem{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("order = %v, want identity", order)
	}
}
