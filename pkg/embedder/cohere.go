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
	"time"

	"github.com/kadirpekel/lector/pkg/httpclient"
)

// CohereEmbedder implements Embedder using Cohere's v2 embeddings API.
// See: https://docs.cohere.com/reference/embed
type CohereEmbedder struct {
	client    *httpclient.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	inputType string
}

// CohereEmbedderConfig configures the Cohere embedder.
type CohereEmbedderConfig struct {
	// APIKey for the Cohere API (required).
	APIKey string

	// BaseURL for the API (default: https://api.cohere.com).
	BaseURL string

	// Model name (default: embed-english-v3.0).
	Model string

	// Dimension of embeddings (auto-detected from model if 0).
	Dimension int

	// InputType is required for v3+ models: "search_document",
	// "search_query", "classification" or "clustering"
	// (default: search_document).
	InputType string

	// Timeout for API requests (default: 30s).
	Timeout time.Duration
}

type cohereEmbedRequest struct {
	Texts          []string `json:"texts"`
	Model          string   `json:"model"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

type cohereEmbedErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereEmbedder creates a new Cohere embedder.
func NewCohereEmbedder(cfg CohereEmbedderConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Cohere embedder")
	}

	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		switch model {
		case "embed-english-light-v3.0", "embed-multilingual-light-v3.0":
			dimension = 384
		default:
			dimension = 1024
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.com"
	}

	inputType := cfg.InputType
	if inputType == "" {
		inputType = "search_document"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &CohereEmbedder{
		client:    httpclient.New(httpclient.WithHTTPClient(&http.Client{Timeout: timeout})),
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		inputType: inputType,
	}, nil
}

// Embed converts a single text to a vector embedding.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from Cohere")
	}
	return embeddings[0], nil
}

// EmbedBatch converts multiple texts in one upstream request.
func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := cohereEmbedRequest{
		Texts:          texts,
		Model:          e.model,
		InputType:      e.inputType,
		EmbeddingTypes: []string{"float"},
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v2/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp cohereEmbedErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, httpclient.StatusError(resp.StatusCode, errResp.Message)
		}
		return nil, httpclient.StatusError(resp.StatusCode, string(body))
	}

	var response cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings.Float))
	}
	return response.Embeddings.Float, nil
}

// Dimension returns the embedding dimension.
func (e *CohereEmbedder) Dimension() int { return e.dimension }

// ModelName returns the model identifier.
func (e *CohereEmbedder) ModelName() string { return e.model }

// Close closes the embedder.
func (e *CohereEmbedder) Close() error { return nil }

var _ Embedder = (*CohereEmbedder)(nil)
