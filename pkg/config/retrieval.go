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

// RetrievalConfig configures the retrieval pipeline.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per engine (default: 5).
	TopK int `yaml:"top_k,omitempty"`

	// RerankModel names the chat model used for cross-engine re-ranking of
	// composite results. Empty disables re-ranking; composite references
	// then keep child order.
	RerankModel string `yaml:"rerank_model,omitempty"`

	// RankSentences narrows each vector-backed reference to the best
	// sentence window by default.
	RankSentences bool `yaml:"rank_sentences,omitempty"`
}

// SetDefaults applies default values.
func (c *RetrievalConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Validate checks the configuration.
func (c *RetrievalConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("retrieval top_k must be at least 1")
	}
	return nil
}
