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
	"regexp"
	"strings"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/llm"
	"github.com/kadirpekel/lector/pkg/store"
)

// Classification is a classifier's verdict: the chosen route and the raw
// model output it was parsed from.
type Classification struct {
	Route     store.RouteTag
	Rationale string
}

// Classifier picks one route for a prompt. Implementations never fail the
// request over model output they cannot parse; the contract is a Chat
// fallback, so an error here means the model call itself failed.
type Classifier interface {
	Classify(ctx context.Context, prompt string, routes []Route) (Classification, error)
}

// NewClassifier builds the classifier configured for an agent.
func NewClassifier(kind config.ClassifierKind, dispatcher *llm.Dispatcher, modelID string, logger *slog.Logger) (Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch kind {
	case config.ClassifierChain, "":
		return &ChainClassifier{dispatcher: dispatcher, modelID: modelID, logger: logger}, nil
	case config.ClassifierAgent:
		return &AgentClassifier{dispatcher: dispatcher, modelID: modelID, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}

// ChainClassifier scores the prompt against the route descriptions in a
// single model call and expects the destination verbatim on the last line.
type ChainClassifier struct {
	dispatcher *llm.Dispatcher
	modelID    string
	logger     *slog.Logger
}

var _ Classifier = (*ChainClassifier)(nil)

func (c *ChainClassifier) Classify(ctx context.Context, prompt string, routes []Route) (Classification, error) {
	text, _, err := c.dispatcher.Generate(ctx, c.modelID, chainPrompt(prompt, routes))
	if err != nil {
		return Classification{}, fmt.Errorf("classifying prompt: %w", err)
	}

	if route, ok := matchRoute(lastLine(text), routes); ok {
		return Classification{Route: route, Rationale: text}, nil
	}
	c.logger.Warn("classifier output did not name a route, falling back to chat",
		"model", c.modelID, "output_chars", len(text))
	return Classification{Route: store.RouteChat, Rationale: text}, nil
}

func chainPrompt(prompt string, routes []Route) string {
	var b strings.Builder
	b.WriteString("You route user requests to exactly one destination.\n\nDestinations:\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "- %s: %s\n", r.Tag, r.Description)
	}
	b.WriteString("\nUser request: ")
	b.WriteString(prompt)
	b.WriteString("\n\nReply with the single best destination name on the last line, exactly as written above.")
	return b.String()
}

// AgentClassifier lets the model reason freely and extracts the decision
// from an "Action: <route>" line, taking the last occurrence so later
// corrections win.
type AgentClassifier struct {
	dispatcher *llm.Dispatcher
	modelID    string
	logger     *slog.Logger
}

var _ Classifier = (*AgentClassifier)(nil)

var actionPattern = regexp.MustCompile(`(?mi)^\s*Action:\s*(\S+)\s*$`)

func (c *AgentClassifier) Classify(ctx context.Context, prompt string, routes []Route) (Classification, error) {
	text, _, err := c.dispatcher.Generate(ctx, c.modelID, agentPrompt(prompt, routes))
	if err != nil {
		return Classification{}, fmt.Errorf("classifying prompt: %w", err)
	}

	matches := actionPattern.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if route, ok := matchRoute(matches[i][1], routes); ok {
			return Classification{Route: route, Rationale: text}, nil
		}
	}
	c.logger.Warn("no parseable action line in classifier output, falling back to chat",
		"model", c.modelID, "output_chars", len(text))
	return Classification{Route: store.RouteChat, Rationale: text}, nil
}

func agentPrompt(prompt string, routes []Route) string {
	var b strings.Builder
	b.WriteString("Decide where to route the user request below. Available actions:\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "- %s: %s\n", r.Tag, r.Description)
	}
	b.WriteString("\nUser request: ")
	b.WriteString(prompt)
	b.WriteString("\n\nThink step by step, then finish with a line of the form:\nAction: <action>\n")
	return b.String()
}

// matchRoute resolves a candidate destination against the route list,
// case-insensitively. Anything that does not name a listed route is
// rejected; classifiers fall back to chat, never invent routes.
func matchRoute(candidate string, routes []Route) (store.RouteTag, bool) {
	candidate = strings.Trim(strings.TrimSpace(candidate), `"'`)
	for _, r := range routes {
		if strings.EqualFold(candidate, string(r.Tag)) {
			return r.Tag, true
		}
	}
	return "", false
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
