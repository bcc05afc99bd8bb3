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
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/store"
)

// ContextWindowExceededError is returned only after the full degradation
// ladder is exhausted. Distinct and user-actionable; never retried here.
type ContextWindowExceededError struct {
	ModelID   string
	Estimated int
	Limit     int
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("prompt for model %q estimated at %d tokens exceeds context window of %d",
		e.ModelID, e.Estimated, e.Limit)
}

// Assembled is the outcome of one assembly: the finalized prompt and the
// references that survived shrinking, in rank order.
type Assembled struct {
	Prompt     string
	References []*store.QueryReference
	// HistorySummarized is true when verbatim history was replaced by a
	// summary to fit the window.
	HistorySummarized bool
}

// Assembler builds grounded prompts and degrades them, in a fixed order,
// until they fit the target model's context window:
//
//  1. history + references + question template
//  2. drop lowest-ranked references down to a floor
//  3. replace verbatim history with a summarization-call result
//  4. fail with ContextWindowExceededError
//
// References are dropped before history is summarized: reference text is
// more compressible than the user's own conversational intent.
type Assembler struct {
	dispatcher *llm.Dispatcher
	cfg        config.PromptConfig
	logger     *slog.Logger
}

// NewAssembler creates a prompt assembler.
func NewAssembler(dispatcher *llm.Dispatcher, cfg config.PromptConfig, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.SetDefaults()
	return &Assembler{dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Assemble finalizes a prompt for modelID. history may be nil; refs arrive
// in rank order, best first.
func (a *Assembler) Assemble(ctx context.Context, question, modelID string, refs []*store.QueryReference, history []*store.HistoryEntry) (*Assembled, error) {
	limit, err := a.dispatcher.ContextLength(modelID)
	if err != nil {
		return nil, err
	}
	estimator := NewEstimator(modelID, a.cfg.CharsPerToken)

	historyText := renderHistory(history)
	kept := refs

	built := buildPrompt(historyText, kept, question)
	if limit == 0 || estimator.Estimate(built) <= limit {
		return &Assembled{Prompt: built, References: kept}, nil
	}

	// Step 2: pop lowest-ranked references down to the floor.
	for len(kept) > a.cfg.MinReferences {
		kept = kept[:len(kept)-1]
		built = buildPrompt(historyText, kept, question)
		if estimator.Estimate(built) <= limit {
			return &Assembled{Prompt: built, References: kept}, nil
		}
	}

	// Step 3: summarize history once, then re-test.
	if historyText != "" {
		summary, err := a.summarizeHistory(ctx, historyText, modelID)
		if err != nil {
			a.logger.Warn("history summarization failed", "model", modelID, "error", err)
		} else {
			built = buildPrompt("Conversation summary: "+summary, kept, question)
			if estimator.Estimate(built) <= limit {
				return &Assembled{Prompt: built, References: kept, HistorySummarized: true}, nil
			}
		}
	}

	return nil, &ContextWindowExceededError{
		ModelID:   modelID,
		Estimated: estimator.Estimate(built),
		Limit:     limit,
	}
}

// summarySystemPrompt asks for a compact rendering of the conversation.
const summarySystemPrompt = `Summarize the following conversation in a few sentences,
preserving the user's goals and any facts needed to answer follow-up questions.
Only output the summary.

Conversation:
`

func (a *Assembler) summarizeHistory(ctx context.Context, historyText, modelID string) (string, error) {
	model := a.cfg.SummaryModel
	if model == "" {
		model = modelID
	}
	summary, _, err := a.dispatcher.Generate(ctx, model, summarySystemPrompt+historyText)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// renderHistory renders chat history as alternating "Human input:" /
// "AI response:" lines.
func renderHistory(history []*store.HistoryEntry) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, entry := range history {
		if entry.Prompt != "" {
			sb.WriteString("Human input: ")
			sb.WriteString(entry.Prompt)
			sb.WriteString("\n")
		}
		if entry.Content != "" {
			sb.WriteString("AI response: ")
			sb.WriteString(entry.Content)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// buildPrompt renders history, references and the question template into
// the final prompt text.
func buildPrompt(historyText string, refs []*store.QueryReference, question string) string {
	var sb strings.Builder
	if historyText != "" {
		sb.WriteString(historyText)
		sb.WriteString("\n\n")
	}
	if len(refs) > 0 {
		sb.WriteString("Use the following references to answer the question at the end.\n")
		sb.WriteString("References:\n")
		for i, ref := range refs {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, ref.Snippet))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}
