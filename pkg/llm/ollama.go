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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/lector/pkg/httpclient"
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	// BaseURL of the Ollama server (default: http://localhost:11434).
	BaseURL string

	// Model name.
	Model string

	// Temperature for generation.
	Temperature float64

	// ContextLength is the model's context window in tokens.
	ContextLength int

	// Timeout for API requests (default: 120s; local models are slow).
	Timeout time.Duration
}

// OllamaProvider implements Provider for a local or remote Ollama server.
// Ollama returns newline-delimited JSON rather than SSE.
type OllamaProvider struct {
	config OllamaConfig
	client *httpclient.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaProvider{
		config: cfg,
		client: httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})),
	}, nil
}

// ModelName returns the model name.
func (p *OllamaProvider) ModelName() string { return p.config.Model }

// ContextLength returns the model's context window in tokens.
func (p *OllamaProvider) ContextLength() int { return p.config.ContextLength }

// Close closes the provider.
func (p *OllamaProvider) Close() error { return nil }

// Generate generates a response given a pre-built prompt.
func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	resp, err := p.post(ctx, ollamaRequest{
		Model:   p.config.Model,
		Prompt:  prompt,
		Options: map[string]any{"temperature": p.config.Temperature},
	})
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var response ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return "", 0, fmt.Errorf("Ollama error: %s", response.Error)
	}
	return response.Response, response.EvalCount, nil
}

// GenerateStreaming generates a streaming response given a pre-built prompt.
func (p *OllamaProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		if err := p.stream(ctx, prompt, chunks); err != nil {
			chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
		}
	}()
	return chunks, nil
}

func (p *OllamaProvider) stream(ctx context.Context, prompt string, chunks chan<- StreamChunk) error {
	resp, err := p.post(ctx, ollamaRequest{
		Model:   p.config.Model,
		Prompt:  prompt,
		Stream:  true,
		Options: map[string]any{"temperature": p.config.Temperature},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var chunk ollamaResponse
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("Ollama error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			chunks <- StreamChunk{Text: chunk.Response}
		}
		if chunk.Done {
			chunks <- StreamChunk{Final: true}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}
	chunks <- StreamChunk{Final: true}
	return nil
}

func (p *OllamaProvider) post(ctx context.Context, request ollamaRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := readStatusError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

var _ Provider = (*OllamaProvider)(nil)
