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

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey for the Anthropic API (required).
	APIKey string

	// BaseURL of the API (default: https://api.anthropic.com/v1).
	BaseURL string

	// Model name sent upstream.
	Model string

	// Temperature for generation.
	Temperature float64

	// MaxTokens limits response length (required by the API; default 4096).
	MaxTokens int

	// ContextLength is the model's context window in tokens.
	ContextLength int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration
}

// AnthropicProvider implements Provider for the Anthropic messages API.
type AnthropicProvider struct {
	config AnthropicConfig
	client *httpclient.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic provider")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		config: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

// ModelName returns the model name.
func (p *AnthropicProvider) ModelName() string { return p.config.Model }

// ContextLength returns the model's context window in tokens.
func (p *AnthropicProvider) ContextLength() int { return p.config.ContextLength }

// Close closes the provider.
func (p *AnthropicProvider) Close() error { return nil }

// Generate generates a response given a pre-built prompt.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	request := anthropicRequest{
		Model:       p.config.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	resp, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", 0, err
	}
	if resp.Error != nil {
		return "", 0, fmt.Errorf("Anthropic API error: %s", resp.Error.Message)
	}

	var text string
	for _, content := range resp.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	return text, resp.Usage.InputTokens + resp.Usage.OutputTokens, nil
}

// GenerateStreaming generates a streaming response given a pre-built prompt.
func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	request := anthropicRequest{
		Model:       p.config.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      true,
	}

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		if err := p.makeStreamingRequest(ctx, request, chunks); err != nil {
			chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
		}
	}()

	return chunks, nil
}

func (p *AnthropicProvider) newRequest(ctx context.Context, request anthropicRequest) (*http.Request, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest) (*anthropicResponse, error) {
	req, err := p.newRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var response anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}

func (p *AnthropicProvider) makeStreamingRequest(ctx context.Context, request anthropicRequest, chunks chan<- StreamChunk) error {
	req, err := p.newRequest(ctx, request)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return fmt.Errorf("failed to decode streaming event: %w", err)
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				chunks <- StreamChunk{Text: event.Delta.Text}
			}
		case "message_delta":
			// Safety refusals arrive as a stop_reason mid-stream; translate
			// to a terminal chunk so partial output survives.
			if event.Delta != nil && (event.Delta.StopReason == "refusal" || event.Delta.StopReason == "safety") {
				chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
				return nil
			}
		case "message_stop":
			chunks <- StreamChunk{Final: true}
			return nil
		case "error":
			if event.Error != nil {
				chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
				return nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}

	chunks <- StreamChunk{Final: true}
	return nil
}

var _ Provider = (*AnthropicProvider)(nil)
