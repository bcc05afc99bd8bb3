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

// Package llm dispatches finalized prompts to concrete generation
// providers. The provider set is a closed tagged union; there is no
// reflection or runtime class lookup.
package llm

import (
	"context"
	"fmt"
)

// StreamChunk is one increment of a streaming generation. A stream is a
// lazy, finite, non-restartable sequence of chunks delivered on a channel
// that is closed when the stream ends.
type StreamChunk struct {
	// Text is the incremental content.
	Text string

	// Final marks the last chunk of the stream.
	Final bool

	// Truncated is set on a terminal chunk that replaces a mid-stream
	// provider safety rejection. Partial output already delivered remains
	// valid; this chunk explains the cutoff instead of surfacing a raw
	// provider error.
	Truncated bool
}

// Provider generates text for pre-built prompts.
type Provider interface {
	// Generate returns the full response text and the tokens used.
	Generate(ctx context.Context, prompt string) (string, int, error)

	// GenerateStreaming returns a channel of chunks. The channel is closed
	// when generation completes.
	GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error)

	// ModelName returns the upstream model name.
	ModelName() string

	// ContextLength returns the model's context window in tokens.
	ContextLength() int

	// Close releases resources.
	Close() error
}

// ProviderError wraps a transport or provider failure at the dispatch
// boundary with enough context to diagnose without leaking secrets.
type ProviderError struct {
	ModelID string
	Prompt  string // truncated
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed for model %q (prompt %q): %v", e.ModelID, e.Prompt, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// wrapProviderErr builds a ProviderError carrying a truncated prompt.
func wrapProviderErr(modelID, prompt string, err error) error {
	const maxPrompt = 120
	if len(prompt) > maxPrompt {
		prompt = prompt[:maxPrompt] + "..."
	}
	return &ProviderError{ModelID: modelID, Prompt: prompt, Err: err}
}

// safetyNotice is the terminal chunk text emitted when a provider rejects
// the remainder of a stream on safety grounds.
const safetyNotice = "\n[response truncated: the provider stopped generation for safety reasons]"
