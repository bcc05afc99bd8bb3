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
	"fmt"
	"time"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/models"
)

// NewProviderFromDescriptor builds the concrete chat provider for a resolved
// model. The variant set is closed; an unknown variant is a programming error
// caught at resolution time, not here.
func NewProviderFromDescriptor(d *models.ModelDescriptor) (Provider, error) {
	switch d.Variant {
	case config.VariantOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:        d.APIKey,
			BaseURL:       d.Endpoint,
			Model:         d.ID,
			Temperature:   floatParam(d, "temperature", 0.7),
			MaxTokens:     intParam(d, "max_tokens", 0),
			ContextLength: d.ContextLength,
			Timeout:       timeoutOf(d, 60*time.Second),
		})
	case config.VariantAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:        d.APIKey,
			BaseURL:       d.Endpoint,
			Model:         d.ID,
			Temperature:   floatParam(d, "temperature", 0.7),
			MaxTokens:     intParam(d, "max_tokens", 4096),
			ContextLength: d.ContextLength,
			Timeout:       timeoutOf(d, 60*time.Second),
		})
	case config.VariantGemini:
		return NewGeminiProvider(GeminiConfig{
			APIKey:        d.APIKey,
			Model:         d.ID,
			Temperature:   floatParam(d, "temperature", 0.7),
			MaxTokens:     intParam(d, "max_tokens", 0),
			ContextLength: d.ContextLength,
		})
	case config.VariantOllama:
		return NewOllamaProvider(OllamaConfig{
			BaseURL:       d.Endpoint,
			Model:         d.ID,
			Temperature:   floatParam(d, "temperature", 0.7),
			ContextLength: d.ContextLength,
			Timeout:       timeoutOf(d, 120*time.Second),
		})
	case config.VariantService:
		return NewServiceProvider(ServiceConfig{
			BaseURL:       d.Endpoint,
			Model:         d.ID,
			AuthToken:     d.APIKey,
			ContextLength: d.ContextLength,
			Timeout:       timeoutOf(d, 60*time.Second),
		})
	default:
		return nil, fmt.Errorf("variant %q has no chat provider", d.Variant)
	}
}

// NewInstantiator returns a models.Instantiator that builds chat providers.
// Non-chat descriptors (embedding models) are passed through untouched so
// the embedder package can claim them.
func NewInstantiator() models.InstantiatorFunc {
	return func(d *models.ModelDescriptor) (any, error) {
		if d.Kind == config.ModelKindEmbedding {
			return nil, nil
		}
		return NewProviderFromDescriptor(d)
	}
}

func floatParam(d *models.ModelDescriptor, key string, fallback float64) float64 {
	v, ok := d.Param(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	}
	return fallback
}

func intParam(d *models.ModelDescriptor, key string, fallback int) int {
	v, ok := d.Param(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

func timeoutOf(d *models.ModelDescriptor, fallback time.Duration) time.Duration {
	if d.TimeoutSecs > 0 {
		return time.Duration(d.TimeoutSecs) * time.Second
	}
	return fallback
}
