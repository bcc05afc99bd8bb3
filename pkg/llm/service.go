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
	"io"
	"net/http"
	"strings"
	"time"
)

// ServiceConfig configures the intra-platform LLM microservice provider.
// The microservice hosts the same model catalog behind a plain HTTP API.
type ServiceConfig struct {
	// BaseURL of the microservice (required).
	BaseURL string

	// Model name forwarded in the request body.
	Model string

	// AuthToken for service-to-service calls (optional).
	AuthToken string

	// ContextLength is the model's context window in tokens.
	ContextLength int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration
}

// ServiceProvider implements Provider against the platform's internal LLM
// microservice.
type ServiceProvider struct {
	config ServiceConfig
	client *http.Client
}

type serviceRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type serviceResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Error      string `json:"error,omitempty"`
}

type serviceStreamChunk struct {
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// NewServiceProvider creates a microservice-backed provider.
func NewServiceProvider(cfg ServiceConfig) (*ServiceProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for service provider")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ServiceProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ModelName returns the model name.
func (p *ServiceProvider) ModelName() string { return p.config.Model }

// ContextLength returns the model's context window in tokens.
func (p *ServiceProvider) ContextLength() int { return p.config.ContextLength }

// Close closes the provider.
func (p *ServiceProvider) Close() error { return nil }

// Generate generates a response given a pre-built prompt.
func (p *ServiceProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	resp, err := p.post(ctx, serviceRequest{Model: p.config.Model, Prompt: prompt})
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var response serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return "", 0, fmt.Errorf("LLM service error: %s", response.Error)
	}
	return response.Text, response.TokensUsed, nil
}

// GenerateStreaming generates a streaming response given a pre-built prompt.
func (p *ServiceProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)

		resp, err := p.post(ctx, serviceRequest{Model: p.config.Model, Prompt: prompt, Stream: true})
		if err != nil {
			chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var chunk serviceStreamChunk
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
				return
			}
			if chunk.Error != "" {
				chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
				return
			}
			if chunk.Text != "" {
				chunks <- StreamChunk{Text: chunk.Text}
			}
			if chunk.Done {
				chunks <- StreamChunk{Final: true}
				return
			}
		}
		chunks <- StreamChunk{Final: true}
	}()
	return chunks, nil
}

func (p *ServiceProvider) post(ctx context.Context, request serviceRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.AuthToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

var _ Provider = (*ServiceProvider)(nil)
