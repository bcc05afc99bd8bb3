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
	"fmt"
	"time"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/models"
)

// NewEmbedderFromDescriptor builds the concrete embedder for a resolved
// embedding model.
func NewEmbedderFromDescriptor(d *models.ModelDescriptor) (Embedder, error) {
	timeout := time.Duration(d.TimeoutSecs) * time.Second

	switch d.Variant {
	case config.VariantOpenAI:
		return NewOpenAIEmbedder(OpenAIEmbedderConfig{
			APIKey:    d.APIKey,
			BaseURL:   d.Endpoint,
			Model:     d.ID,
			Dimension: d.Dimension,
			Timeout:   timeout,
		})
	case config.VariantOllama:
		return NewOllamaEmbedder(OllamaEmbedderConfig{
			BaseURL:   d.Endpoint,
			Model:     d.ID,
			Dimension: d.Dimension,
			Timeout:   timeout,
		})
	case config.VariantCohere:
		return NewCohereEmbedder(CohereEmbedderConfig{
			APIKey:    d.APIKey,
			BaseURL:   d.Endpoint,
			Model:     d.ID,
			Dimension: d.Dimension,
			Timeout:   timeout,
		})
	case config.VariantService:
		return NewServiceEmbedder(ServiceEmbedderConfig{
			BaseURL:   d.Endpoint,
			Model:     d.ID,
			AuthToken: d.APIKey,
			Dimension: d.Dimension,
			Timeout:   timeout,
		})
	default:
		return nil, fmt.Errorf("variant %q has no embedding provider", d.Variant)
	}
}
