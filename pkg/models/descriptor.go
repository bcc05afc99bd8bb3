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

package models

import (
	"github.com/kadirpekel/lector/pkg/config"
)

// ProviderDescriptor is the resolved state of one provider.
type ProviderDescriptor struct {
	ID      string
	Enabled bool
	Variant config.ProviderVariant
	Params  map[string]any
}

// VendorDescriptor is the resolved state of one vendor.
type VendorDescriptor struct {
	ID      string
	Enabled bool

	// APIKey is the resolved secret value, empty when none is configured.
	APIKey string

	// KeyConfigured is true when the vendor declares a secret reference.
	KeyConfigured bool

	// KeyResolved is true when the declared secret actually resolved.
	KeyResolved bool
}

// ModelDescriptor is the resolved state of one model. Descriptors are
// immutable after a resolution pass; reload builds a fresh set.
type ModelDescriptor struct {
	ID            string
	Kind          config.ModelKind
	Provider      string
	Vendor        string
	Variant       config.ProviderVariant
	Enabled       bool
	DisabledCause string
	Endpoint      string
	APIKey        string
	Params        map[string]any
	ContextLength int
	Dimension     int
	Multimodal    bool
	TimeoutSecs   int

	// client is the cached provider instance, built once at resolution
	// when the model is enabled and an instantiator is supplied.
	client any
}

// Client returns the cached provider instance, or nil when the model was
// resolved without instantiation or is disabled.
func (d *ModelDescriptor) Client() any {
	return d.client
}

// Param returns a generation parameter from the model's own params.
func (d *ModelDescriptor) Param(key string) (any, bool) {
	v, ok := d.Params[key]
	return v, ok
}

// Instantiator builds a concrete provider client for an enabled model.
// pkg/llm and pkg/embedder supply implementations; keeping this an
// interface avoids the registry depending on provider packages.
type Instantiator interface {
	Instantiate(d *ModelDescriptor) (any, error)
}

// InstantiatorFunc adapts a function to the Instantiator interface.
type InstantiatorFunc func(d *ModelDescriptor) (any, error)

func (f InstantiatorFunc) Instantiate(d *ModelDescriptor) (any, error) {
	return f(d)
}
