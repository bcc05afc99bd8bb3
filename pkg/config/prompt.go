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

// PromptConfig configures grounded-prompt assembly.
type PromptConfig struct {
	// CharsPerToken is the heuristic used when no exact tokenizer is
	// available for the target model (default: 3).
	CharsPerToken int `yaml:"chars_per_token,omitempty"`

	// MinReferences is the floor below which references are never dropped
	// while shrinking a prompt (default: 2).
	MinReferences int `yaml:"min_references,omitempty"`

	// SummaryModel names the model used to summarize chat history when
	// reference dropping alone cannot fit the context window. Empty means
	// the generation model itself.
	SummaryModel string `yaml:"summary_model,omitempty"`
}

// SetDefaults applies default values.
func (c *PromptConfig) SetDefaults() {
	if c.CharsPerToken == 0 {
		c.CharsPerToken = 3
	}
	if c.MinReferences == 0 {
		c.MinReferences = 2
	}
}

// Validate checks the configuration.
func (c *PromptConfig) Validate() error {
	if c.CharsPerToken < 1 {
		return fmt.Errorf("prompt chars_per_token must be at least 1")
	}
	if c.MinReferences < 0 {
		return fmt.Errorf("prompt min_references cannot be negative")
	}
	return nil
}
