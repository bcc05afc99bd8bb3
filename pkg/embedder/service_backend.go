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

package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServiceEmbedder implements Embedder against the intra-platform LLM
// microservice, which hosts embedding models behind a plain HTTP API.
type ServiceEmbedder struct {
	client    *http.Client
	baseURL   string
	model     string
	authToken string
	dimension int
}

// ServiceEmbedderConfig configures the microservice embedder.
type ServiceEmbedderConfig struct {
	// BaseURL of the microservice (required).
	BaseURL string

	// Model name forwarded in the request body.
	Model string

	// AuthToken for service-to-service calls (optional).
	AuthToken string

	// Dimension of embeddings.
	Dimension int

	// Timeout for API requests (default: 30s).
	Timeout time.Duration
}

type serviceEmbedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type serviceEmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error,omitempty"`
}

// NewServiceEmbedder creates a microservice-backed embedder.
func NewServiceEmbedder(cfg ServiceEmbedderConfig) (*ServiceEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for service embedder")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ServiceEmbedder{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		model:     cfg.Model,
		authToken: cfg.AuthToken,
		dimension: cfg.Dimension,
	}, nil
}

// Embed converts a single text to a vector embedding.
func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from service")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts in one upstream request.
func (e *ServiceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(serviceEmbedRequest{Model: e.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response serviceEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("embedding service error: %s", response.Error)
	}
	if len(response.Vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Vectors))
	}
	return response.Vectors, nil
}

// Dimension returns the embedding dimension.
func (e *ServiceEmbedder) Dimension() int { return e.dimension }

// ModelName returns the model identifier.
func (e *ServiceEmbedder) ModelName() string { return e.model }

// Close closes the embedder.
func (e *ServiceEmbedder) Close() error { return nil }

var _ Embedder = (*ServiceEmbedder)(nil)
