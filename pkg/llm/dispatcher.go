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
	"log/slog"

	"github.com/kadirpekel/lector/pkg/models"
)

// Dispatcher routes generation requests to the provider client of an enabled
// model. It is the single seam between callers holding a model id and the
// concrete transport behind it.
type Dispatcher struct {
	registry *models.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the model registry.
func NewDispatcher(registry *models.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Provider resolves the chat provider for an enabled model. Disabled or
// unknown models surface the resolution cause to the caller.
func (d *Dispatcher) Provider(modelID string) (Provider, error) {
	desc, err := d.registry.Current().EnabledModel(modelID)
	if err != nil {
		return nil, err
	}
	p, ok := desc.Client().(Provider)
	if !ok || p == nil {
		return nil, fmt.Errorf("model %q has no chat provider client", modelID)
	}
	return p, nil
}

// Generate sends a pre-assembled prompt to the model and returns the full
// response text and the upstream token count.
func (d *Dispatcher) Generate(ctx context.Context, modelID, prompt string) (string, int, error) {
	p, err := d.Provider(modelID)
	if err != nil {
		return "", 0, err
	}
	d.logger.Debug("dispatching generation", "model", modelID, "prompt_chars", len(prompt))
	text, tokens, err := p.Generate(ctx, prompt)
	if err != nil {
		return "", 0, wrapProviderErr(modelID, prompt, err)
	}
	return text, tokens, nil
}

// GenerateStreaming sends a pre-assembled prompt and returns a chunk channel.
// The channel always terminates with a chunk whose Final flag is set; a
// mid-stream safety rejection terminates with a single truncated chunk.
func (d *Dispatcher) GenerateStreaming(ctx context.Context, modelID, prompt string) (<-chan StreamChunk, error) {
	p, err := d.Provider(modelID)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("dispatching streaming generation", "model", modelID, "prompt_chars", len(prompt))
	chunks, err := p.GenerateStreaming(ctx, prompt)
	if err != nil {
		return nil, wrapProviderErr(modelID, prompt, err)
	}
	return chunks, nil
}

// ContextLength reports the context window of an enabled model. Zero means
// the model did not declare one.
func (d *Dispatcher) ContextLength(modelID string) (int, error) {
	desc, err := d.registry.Current().EnabledModel(modelID)
	if err != nil {
		return 0, err
	}
	return desc.ContextLength, nil
}
