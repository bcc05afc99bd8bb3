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

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	// APIKey for the Gemini API (required).
	APIKey string

	// Model name (default: gemini-2.0-flash).
	Model string

	// Temperature for generation.
	Temperature float64

	// MaxTokens limits response length.
	MaxTokens int

	// ContextLength is the model's context window in tokens.
	ContextLength int
}

// GeminiProvider implements Provider using the official genai SDK. This is
// the managed-endpoint predict path: the SDK handles transport, auth and
// retries.
type GeminiProvider struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini provider")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	// Constructors shouldn't require a context; the SDK only uses it for
	// credential discovery here.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: cfg}, nil
}

// ModelName returns the model name.
func (p *GeminiProvider) ModelName() string { return p.config.Model }

// ContextLength returns the model's context window in tokens.
func (p *GeminiProvider) ContextLength() int { return p.config.ContextLength }

// Close closes the provider.
func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) generateConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(p.config.Temperature)),
	}
	if p.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.config.MaxTokens)
	}
	return cfg
}

// Generate generates a response given a pre-built prompt.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, genai.Text(prompt), p.generateConfig())
	if err != nil {
		return "", 0, fmt.Errorf("Gemini generation failed: %w", err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return resp.Text(), tokens, nil
}

// GenerateStreaming generates a streaming response given a pre-built prompt.
func (p *GeminiProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, genai.Text(prompt), p.generateConfig()) {
			if err != nil {
				chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
				return
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
				chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
				return
			}
			if text := resp.Text(); text != "" {
				chunks <- StreamChunk{Text: text}
			}
		}
		chunks <- StreamChunk{Final: true}
	}()

	return chunks, nil
}

var _ Provider = (*GeminiProvider)(nil)
