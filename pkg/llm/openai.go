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

	"github.com/kadirpekel/lector/pkg/httpclient"
)

// OpenAIConfig configures the OpenAI-compatible provider. The same client
// serves api.openai.com and any self-hosted inference endpoint speaking the
// chat-completion protocol.
type OpenAIConfig struct {
	// APIKey for the endpoint. Optional for self-hosted endpoints.
	APIKey string

	// BaseURL of the API (default: https://api.openai.com/v1).
	BaseURL string

	// Model name sent upstream.
	Model string

	// Temperature for generation.
	Temperature float64

	// MaxTokens limits response length.
	MaxTokens int

	// ContextLength is the model's context window in tokens.
	ContextLength int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration
}

// OpenAIProvider implements Provider over the OpenAI-compatible
// chat-completion protocol.
type OpenAIProvider struct {
	config OpenAIConfig
	client *httpclient.Client
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		config: cfg,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

// ModelName returns the model name.
func (p *OpenAIProvider) ModelName() string { return p.config.Model }

// ContextLength returns the model's context window in tokens.
func (p *OpenAIProvider) ContextLength() int { return p.config.ContextLength }

// Close closes the provider.
func (p *OpenAIProvider) Close() error { return nil }

// Generate generates a response given a pre-built prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, int, error) {
	request := p.buildRequest(prompt, false)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", 0, err
	}

	if response.Error != nil {
		return "", 0, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", 0, fmt.Errorf("no response choices returned")
	}

	return response.Choices[0].Message.Content, response.Usage.TotalTokens, nil
}

// GenerateStreaming generates a streaming response given a pre-built prompt.
func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	request := p.buildRequest(prompt, true)

	chunks := make(chan StreamChunk, 100)
	go func() {
		defer close(chunks)
		if err := p.makeStreamingRequest(ctx, request, chunks); err != nil {
			chunks <- StreamChunk{Text: fmt.Sprintf("Error: %v", err), Final: true}
		}
	}()

	return chunks, nil
}

func (p *OpenAIProvider) buildRequest(prompt string, stream bool) openaiRequest {
	return openaiRequest{
		Model:       p.config.Model,
		Messages:    []openaiMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openaiRequest) (*openaiResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var response openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}

// readStatusError turns a non-2xx chat-completion response into an error
// carrying the API's own message when the body has one.
func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error *openaiError `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return httpclient.StatusError(resp.StatusCode, errResp.Error.Message)
	}
	return httpclient.StatusError(resp.StatusCode, strings.TrimSpace(string(body)))
}

func (p *OpenAIProvider) makeStreamingRequest(ctx context.Context, request openaiRequest, chunks chan<- StreamChunk) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	// Read streaming response line by line (SSE format)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var streamResp openaiStreamResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w", err)
		}

		if streamResp.Error != nil {
			// A mid-stream rejection becomes a terminal chunk so the
			// partial output already delivered is not discarded.
			chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
			return nil
		}

		if len(streamResp.Choices) > 0 {
			choice := streamResp.Choices[0]
			if choice.Delta.Content != "" {
				chunks <- StreamChunk{Text: choice.Delta.Content}
			}
			if choice.FinishReason == "content_filter" {
				chunks <- StreamChunk{Text: safetyNotice, Final: true, Truncated: true}
				return nil
			}
			if choice.FinishReason != "" {
				break
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}

	chunks <- StreamChunk{Final: true}
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
