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

package config

import "fmt"

// AllEngines is the sentinel engine list entry that associates every
// public engine with an agent.
const AllEngines = "ALL"

// ClassifierKind selects the intent classification strategy.
type ClassifierKind string

const (
	// ClassifierChain scores the prompt against route descriptions in one
	// shot and returns exactly one destination.
	ClassifierChain ClassifierKind = "chain"

	// ClassifierAgent runs a tool-using loop that narrates an
	// "Action: <route>" line, parsed by regex.
	ClassifierAgent ClassifierKind = "agent"
)

// RoutingConfig configures routing agents.
type RoutingConfig struct {
	// Agents by name.
	Agents map[string]*RouteAgentConfig `yaml:"agents,omitempty"`

	// MaxInlineRows caps tabular rows surfaced inline for database routes
	// (default: 10). The full result stays behind the resource link.
	MaxInlineRows int `yaml:"max_inline_rows,omitempty"`
}

// RouteAgentConfig configures one routing agent.
type RouteAgentConfig struct {
	// Engines associated with this agent: explicit names or ["ALL"].
	Engines []string `yaml:"engines,omitempty"`

	// Datasets associated with this agent for database routes.
	Datasets []string `yaml:"datasets,omitempty"`

	// Classifier strategy (default: chain).
	Classifier ClassifierKind `yaml:"classifier,omitempty"`

	// Model used by the classifier. Empty means the request's model.
	Model string `yaml:"model,omitempty"`
}

// SetDefaults applies default values.
func (c *RoutingConfig) SetDefaults() {
	if c.MaxInlineRows == 0 {
		c.MaxInlineRows = 10
	}
	for _, a := range c.Agents {
		if a.Classifier == "" {
			a.Classifier = ClassifierChain
		}
	}
}

// Validate checks the configuration.
func (c *RoutingConfig) Validate() error {
	if c.MaxInlineRows < 1 {
		return fmt.Errorf("routing max_inline_rows must be at least 1")
	}
	for name, a := range c.Agents {
		switch a.Classifier {
		case ClassifierChain, ClassifierAgent:
		default:
			return fmt.Errorf("routing agent %q: unknown classifier %q", name, a.Classifier)
		}
	}
	return nil
}
