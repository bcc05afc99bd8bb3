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

package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/models"
	"github.com/kadirpekel/lector/pkg/store"
)

// summaryProvider replays a fixed summary and records the prompts it saw.
type summaryProvider struct {
	response string
	err      error
	prompts  []string
}

func (p *summaryProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", 0, p.err
	}
	return p.response, len(p.response), nil
}

func (p *summaryProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Text: p.response, Final: true}
	close(ch)
	return ch, nil
}

func (p *summaryProvider) ModelName() string  { return "summary" }
func (p *summaryProvider) ContextLength() int { return 8192 }
func (p *summaryProvider) Close() error       { return nil }

// newAssembler wires a real dispatcher around the fake provider; the model
// id is unknown to tiktoken so estimation uses the chars heuristic.
func newAssembler(t *testing.T, contextLength int, provider llm.Provider, cfg config.PromptConfig) *Assembler {
	t.Helper()
	regCfg := &config.Config{
		Providers: map[string]*config.ProviderConfig{
			"ollama": {Variant: config.VariantOllama},
		},
		Models: map[string]*config.ModelConfig{
			"fake-chat": {Kind: config.ModelKindChat, Provider: "ollama", ContextLength: contextLength},
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
	return NewAssembler(llm.NewDispatcher(registry, nil), cfg, nil)
}

func ref(id, snippet string) *store.QueryReference {
	return &store.QueryReference{ID: id, Snippet: snippet}
}

func TestAssembleFitsWithoutShrinking(t *testing.T) {
	a := newAssembler(t, 8192, &summaryProvider{}, config.PromptConfig{})

	history := []*store.HistoryEntry{
		{Prompt: "hi", Content: "hello"},
	}
	refs := []*store.QueryReference{
		ref("r1", "first snippet"),
		ref("r2", "second snippet"),
	}

	out, err := a.Assemble(context.Background(), "what now?", "fake-chat", refs, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.References) != 2 {
		t.Fatalf("kept %d references, want 2", len(out.References))
	}
	if out.HistorySummarized {
		t.Error("history summarized although the prompt fits")
	}
	if !strings.HasPrefix(out.Prompt, "Human input: hi\nAI response: hello") {
		t.Errorf("prompt does not open with rendered history:\n%s", out.Prompt)
	}
	for _, want := range []string{"[1] first snippet", "[2] second snippet", "Question: what now?\nAnswer:"} {
		if !strings.Contains(out.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, out.Prompt)
		}
	}
}

func TestAssembleDropsLowestRankedReferences(t *testing.T) {
	// chars_per_token 1 makes the estimate exactly len(prompt). With
	// 100-char snippets the prompt costs 517 chars at 4 references, 412
	// at 3 and 307 at 2; a 350-token window keeps exactly 2.
	provider := &summaryProvider{}
	a := newAssembler(t, 350, provider, config.PromptConfig{CharsPerToken: 1})

	snippet := strings.Repeat("x", 100)
	refs := []*store.QueryReference{
		ref("r1", snippet), ref("r2", snippet), ref("r3", snippet), ref("r4", snippet),
	}

	out, err := a.Assemble(context.Background(), "ok", "fake-chat", refs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.References) != 2 {
		t.Fatalf("kept %d references, want 2", len(out.References))
	}
	if out.References[0].ID != "r1" || out.References[1].ID != "r2" {
		t.Errorf("kept [%s, %s], want the best-ranked [r1, r2]",
			out.References[0].ID, out.References[1].ID)
	}
	if strings.Contains(out.Prompt, "[3]") {
		t.Errorf("dropped reference still rendered:\n%s", out.Prompt)
	}
	if len(provider.prompts) != 0 {
		t.Errorf("summarization called %d times while dropping references sufficed", len(provider.prompts))
	}
}

func TestAssembleSummarizesHistory(t *testing.T) {
	provider := &summaryProvider{response: "user wants a recap"}
	a := newAssembler(t, 100, provider, config.PromptConfig{CharsPerToken: 1})

	history := []*store.HistoryEntry{
		{Prompt: strings.Repeat("tell me everything ", 20)},
	}

	out, err := a.Assemble(context.Background(), "ok", "fake-chat", nil, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HistorySummarized {
		t.Fatal("expected history to be summarized")
	}
	if !strings.Contains(out.Prompt, "Conversation summary: user wants a recap") {
		t.Errorf("prompt missing summary:\n%s", out.Prompt)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("summarization called %d times, want 1", len(provider.prompts))
	}
	if !strings.Contains(provider.prompts[0], "Summarize the following conversation") {
		t.Errorf("summary prompt unexpected:\n%s", provider.prompts[0])
	}
}

func TestAssembleContextWindowExceeded(t *testing.T) {
	// Even the summarized prompt cannot fit a 10-token window.
	provider := &summaryProvider{response: "a long summary that is still far too large to fit"}
	a := newAssembler(t, 10, provider, config.PromptConfig{CharsPerToken: 1})

	history := []*store.HistoryEntry{
		{Prompt: strings.Repeat("context ", 50)},
	}

	_, err := a.Assemble(context.Background(), "ok", "fake-chat", nil, history)
	var cwe *ContextWindowExceededError
	if !errors.As(err, &cwe) {
		t.Fatalf("error = %v, want ContextWindowExceededError", err)
	}
	if cwe.ModelID != "fake-chat" || cwe.Limit != 10 {
		t.Errorf("error fields = %+v", cwe)
	}
}

func TestAssembleSummaryFailureExhaustsLadder(t *testing.T) {
	provider := &summaryProvider{err: errors.New("upstream down")}
	a := newAssembler(t, 20, provider, config.PromptConfig{CharsPerToken: 1})

	history := []*store.HistoryEntry{
		{Prompt: strings.Repeat("context ", 50)},
	}

	_, err := a.Assemble(context.Background(), "ok", "fake-chat", nil, history)
	var cwe *ContextWindowExceededError
	if !errors.As(err, &cwe) {
		t.Fatalf("error = %v, want ContextWindowExceededError", err)
	}
}

func TestCharsEstimator(t *testing.T) {
	e := CharsEstimator{CharsPerToken: 4}
	if got := e.Estimate(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("estimate = %d, want 10", got)
	}
	// Zero divisor falls back to the default.
	e = CharsEstimator{}
	if got := e.Estimate(strings.Repeat("a", 30)); got != 10 {
		t.Errorf("estimate = %d, want 10", got)
	}
}
