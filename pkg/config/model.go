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

import (
	"fmt"
)

// ModelKind identifies what a model is used for.
type ModelKind string

const (
	ModelKindChat      ModelKind = "chat"
	ModelKindText      ModelKind = "text"
	ModelKindEmbedding ModelKind = "embedding"
)

// ProviderVariant identifies the concrete client implementation used to talk
// to a provider. This is a closed set; there is no runtime class lookup.
type ProviderVariant string

const (
	// VariantOpenAI speaks the OpenAI-compatible chat-completion protocol.
	// Also used for self-hosted inference endpoints.
	VariantOpenAI ProviderVariant = "openai"

	// VariantAnthropic uses the Anthropic messages API.
	VariantAnthropic ProviderVariant = "anthropic"

	// VariantGemini uses the google.golang.org/genai SDK (managed endpoint
	// predict path).
	VariantGemini ProviderVariant = "gemini"

	// VariantOllama talks to a local or remote Ollama server.
	VariantOllama ProviderVariant = "ollama"

	// VariantService calls the intra-platform LLM microservice which hosts
	// the same model catalog behind an HTTP API.
	VariantService ProviderVariant = "service"

	// VariantCohere uses the Cohere HTTP API (embeddings only).
	VariantCohere ProviderVariant = "cohere"
)

// ProviderConfig configures one model provider.
type ProviderConfig struct {
	// Enabled toggles the provider and everything under it.
	// Absent means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// EnvFlag names an environment variable that can veto the provider at
	// deploy time. Unset or truthy means enabled.
	EnvFlag string `yaml:"env_flag,omitempty"`

	// Variant selects the client implementation for models under this
	// provider. Defaults to the provider's own name when it matches a
	// known variant.
	Variant ProviderVariant `yaml:"variant,omitempty"`

	// Params holds provider-global generation parameters. Model-level
	// params take precedence on lookup.
	Params map[string]any `yaml:"params,omitempty"`
}

// VendorConfig configures a model vendor under a provider.
type VendorConfig struct {
	// Enabled toggles all models of this vendor. Absent means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// EnvFlag names an environment veto variable, like ProviderConfig.EnvFlag.
	EnvFlag string `yaml:"env_flag,omitempty"`

	// APIKeyName is the secret-store key holding the vendor API key.
	// When set, the key must resolve for the vendor's models to be usable.
	APIKeyName string `yaml:"api_key_name,omitempty"`
}

// ModelConfig configures one model.
type ModelConfig struct {
	// Kind of the model: chat, text or embedding.
	Kind ModelKind `yaml:"kind"`

	// Provider this model belongs to (required).
	Provider string `yaml:"provider"`

	// Vendor this model belongs to (optional).
	Vendor string `yaml:"vendor,omitempty"`

	// Enabled toggles this model. Absent means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`

	// EnvFlag names an environment veto variable for this model.
	EnvFlag string `yaml:"env_flag,omitempty"`

	// Endpoint overrides the provider's default API endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`

	// APIKeyName is the secret-store key this model requires. When set,
	// a failed lookup disables the model.
	APIKeyName string `yaml:"api_key_name,omitempty"`

	// Params holds generation parameters (temperature, max_tokens, ...).
	Params map[string]any `yaml:"params,omitempty"`

	// ContextLength is the model's context window in tokens.
	ContextLength int `yaml:"context_length,omitempty"`

	// Dimension is the embedding dimension (embedding models only).
	Dimension int `yaml:"dimension,omitempty"`

	// Multimodal marks models that accept non-text input.
	Multimodal bool `yaml:"multimodal,omitempty"`

	// Timeout for API requests in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// knownModelKeys is the closed set of keys accepted under a model entry.
// Anything else is a deployment error.
var knownModelKeys = map[string]bool{
	"kind": true, "provider": true, "vendor": true, "enabled": true,
	"env_flag": true, "endpoint": true, "api_key_name": true, "params": true,
	"context_length": true, "dimension": true, "multimodal": true,
	"timeout": true,
}

// KnownModelKey reports whether key is valid under a model entry.
func KnownModelKey(key string) bool {
	return knownModelKeys[key]
}

// SetDefaults applies default values.
func (c *ProviderConfig) SetDefaults() {
	// Variant defaulting happens in Validate where the provider name is known.
}

// Validate checks the provider configuration.
func (c *ProviderConfig) Validate(name string) error {
	if c.Variant == "" {
		switch ProviderVariant(name) {
		case VariantOpenAI, VariantAnthropic, VariantGemini, VariantOllama, VariantService, VariantCohere:
			c.Variant = ProviderVariant(name)
		default:
			return fmt.Errorf("provider %q: variant is required when provider name is not a known variant", name)
		}
	}
	switch c.Variant {
	case VariantOpenAI, VariantAnthropic, VariantGemini, VariantOllama, VariantService, VariantCohere:
		return nil
	default:
		return fmt.Errorf("provider %q: unknown variant %q", name, c.Variant)
	}
}

// SetDefaults applies default values.
func (c *ModelConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = ModelKindChat
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.ContextLength == 0 && c.Kind != ModelKindEmbedding {
		c.ContextLength = 8192
	}
}

// Validate checks the model configuration.
func (c *ModelConfig) Validate(id string) error {
	if c.Provider == "" {
		return fmt.Errorf("model %q: provider is required", id)
	}
	switch c.Kind {
	case ModelKindChat, ModelKindText, ModelKindEmbedding:
	default:
		return fmt.Errorf("model %q: unknown kind %q", id, c.Kind)
	}
	if c.ContextLength < 0 {
		return fmt.Errorf("model %q: context_length cannot be negative", id)
	}
	return nil
}
