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

// Package models resolves which LLM and embedding providers, vendors and
// individual models are enabled, and supplies per-model configuration.
// Resolution produces an immutable Snapshot; reload builds a new Snapshot
// and swaps a shared pointer, so steady-state readers never lock.
package models

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/kadirpekel/lector/pkg/config"
)

// Snapshot is an immutable resolved view of the model catalog.
type Snapshot struct {
	providers map[string]*ProviderDescriptor
	vendors   map[string]*VendorDescriptor
	models    map[string]*ModelDescriptor
}

// Load resolves the model catalog from configuration.
//
// A model is enabled iff all of:
//  1. its own enabled flag is true (absent means true)
//  2. its environment-flag override, if any, is true
//  3. its provider exists and is enabled (missing provider disables the
//     model, logged, non-fatal)
//  4. its vendor, if any, exists and is enabled
//  5. if the model or its vendor declares an API-key requirement, the key
//     resolves from the secret store
//
// Enabled models are instantiated once through inst and the client cached
// on the descriptor; instantiation failure disables the model rather than
// aborting startup. A structurally invalid catalog (dangling model
// reference) returns InvalidModelConfigError and aborts.
func Load(cfg *config.Config, secrets Secrets, inst Instantiator) (*Snapshot, error) {
	if secrets == nil {
		secrets = EnvSecrets{}
	}

	snap := &Snapshot{
		providers: make(map[string]*ProviderDescriptor, len(cfg.Providers)),
		vendors:   make(map[string]*VendorDescriptor, len(cfg.Vendors)),
		models:    make(map[string]*ModelDescriptor, len(cfg.Models)),
	}

	for id, pc := range cfg.Providers {
		enabled := (pc.Enabled == nil || *pc.Enabled) && config.EnvFlagTrue(pc.EnvFlag)
		snap.providers[id] = &ProviderDescriptor{
			ID:      id,
			Enabled: enabled,
			Variant: pc.Variant,
			Params:  pc.Params,
		}
	}

	for id, vc := range cfg.Vendors {
		d := &VendorDescriptor{
			ID:      id,
			Enabled: (vc.Enabled == nil || *vc.Enabled) && config.EnvFlagTrue(vc.EnvFlag),
		}
		if vc.APIKeyName != "" {
			d.KeyConfigured = true
			d.APIKey, d.KeyResolved = secrets.Lookup(vc.APIKeyName)
		}
		snap.vendors[id] = d
	}

	for id, mc := range cfg.Models {
		snap.models[id] = snap.resolveModel(id, mc, secrets)
	}

	// Dangling model references elsewhere in the config are deployment
	// errors, fatal at construction.
	if err := snap.checkReferences(cfg); err != nil {
		return nil, err
	}

	if inst != nil {
		for _, d := range snap.models {
			if !d.Enabled {
				continue
			}
			client, err := inst.Instantiate(d)
			if err != nil {
				d.Enabled = false
				d.DisabledCause = fmt.Sprintf("instantiation failed: %v", err)
				slog.Warn("Disabling model: instantiation failed",
					"model", d.ID,
					"provider", d.Provider,
					"error", err)
				continue
			}
			d.client = client
		}
	}

	return snap, nil
}

func (s *Snapshot) resolveModel(id string, mc *config.ModelConfig, secrets Secrets) *ModelDescriptor {
	d := &ModelDescriptor{
		ID:            id,
		Kind:          mc.Kind,
		Provider:      mc.Provider,
		Vendor:        mc.Vendor,
		Endpoint:      mc.Endpoint,
		Params:        mc.Params,
		ContextLength: mc.ContextLength,
		Dimension:     mc.Dimension,
		Multimodal:    mc.Multimodal,
		TimeoutSecs:   mc.Timeout,
		Enabled:       true,
	}

	disable := func(cause string) *ModelDescriptor {
		d.Enabled = false
		d.DisabledCause = cause
		slog.Debug("Model disabled", "model", id, "cause", cause)
		return d
	}

	if mc.Enabled != nil && !*mc.Enabled {
		return disable("disabled by configuration")
	}
	if !config.EnvFlagTrue(mc.EnvFlag) {
		return disable(fmt.Sprintf("disabled by env flag %s", mc.EnvFlag))
	}

	provider, ok := s.providers[mc.Provider]
	if !ok {
		slog.Warn("Model references missing provider",
			"model", id,
			"provider", mc.Provider)
		return disable(fmt.Sprintf("provider %q not configured", mc.Provider))
	}
	if !provider.Enabled {
		return disable(fmt.Sprintf("provider %q disabled", mc.Provider))
	}
	d.Variant = provider.Variant

	if mc.Vendor != "" {
		vendor, ok := s.vendors[mc.Vendor]
		if !ok {
			slog.Warn("Model references missing vendor",
				"model", id,
				"vendor", mc.Vendor)
			return disable(fmt.Sprintf("vendor %q not configured", mc.Vendor))
		}
		if !vendor.Enabled {
			return disable(fmt.Sprintf("vendor %q disabled", mc.Vendor))
		}
		if vendor.KeyConfigured {
			if !vendor.KeyResolved {
				return disable(fmt.Sprintf("vendor %q API key did not resolve", mc.Vendor))
			}
			d.APIKey = vendor.APIKey
		}
	}

	if mc.APIKeyName != "" {
		key, ok := secrets.Lookup(mc.APIKeyName)
		if !ok {
			return disable(fmt.Sprintf("API key %q did not resolve", mc.APIKeyName))
		}
		d.APIKey = key
	}

	return d
}

// checkReferences validates model ids referenced from other config sections.
func (s *Snapshot) checkReferences(cfg *config.Config) error {
	if m := cfg.Prompt.SummaryModel; m != "" {
		if _, ok := s.models[m]; !ok {
			return &InvalidModelConfigError{Detail: fmt.Sprintf("prompt summary_model references unknown model %q", m)}
		}
	}
	for name, agent := range cfg.Routing.Agents {
		if agent.Model == "" {
			continue
		}
		if _, ok := s.models[agent.Model]; !ok {
			return &InvalidModelConfigError{Detail: fmt.Sprintf("routing agent %q references unknown model %q", name, agent.Model)}
		}
	}
	return nil
}

// IsProviderEnabled reports whether the provider exists and is enabled.
func (s *Snapshot) IsProviderEnabled(id string) bool {
	p, ok := s.providers[id]
	return ok && p.Enabled
}

// IsVendorEnabled reports whether the vendor exists and is enabled.
func (s *Snapshot) IsVendorEnabled(id string) bool {
	v, ok := s.vendors[id]
	return ok && v.Enabled
}

// IsModelEnabled reports whether the model exists and resolved as enabled.
func (s *Snapshot) IsModelEnabled(id string) bool {
	m, ok := s.models[id]
	return ok && m.Enabled
}

// ModelConfig returns the resolved descriptor for a model id.
func (s *Snapshot) ModelConfig(id string) (*ModelDescriptor, error) {
	m, ok := s.models[id]
	if !ok {
		return nil, &ModelConfigMissingError{ModelID: id}
	}
	return m, nil
}

// EnabledModel returns the descriptor for an enabled model, with the reason
// in the error when it is disabled.
func (s *Snapshot) EnabledModel(id string) (*ModelDescriptor, error) {
	m, err := s.ModelConfig(id)
	if err != nil {
		return nil, err
	}
	if !m.Enabled {
		return nil, fmt.Errorf("model %q is disabled: %s", id, m.DisabledCause)
	}
	return m, nil
}

// ProviderValue looks up a parameter, checking the model's own params first
// (when modelID is non-empty) and falling back to the provider's globals.
func (s *Snapshot) ProviderValue(provider, key, modelID string) (any, bool) {
	if modelID != "" {
		if m, ok := s.models[modelID]; ok {
			if v, ok := m.Param(key); ok {
				return v, true
			}
		}
	}
	p, ok := s.providers[provider]
	if !ok {
		return nil, false
	}
	v, ok := p.Params[key]
	return v, ok
}

// Models returns every resolved descriptor, enabled or not, sorted by id.
func (s *Snapshot) Models() []*ModelDescriptor {
	out := make([]*ModelDescriptor, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModelsOfKind returns the enabled models of the given kind.
func (s *Snapshot) ModelsOfKind(kind config.ModelKind) []*ModelDescriptor {
	var out []*ModelDescriptor
	for _, m := range s.models {
		if m.Enabled && m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
