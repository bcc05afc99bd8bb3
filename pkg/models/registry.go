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
	"sync/atomic"

	"github.com/kadirpekel/lector/pkg/config"
)

// Registry holds the current catalog snapshot. Reads are lock-free; reload
// swaps in a freshly resolved snapshot.
type Registry struct {
	snapshot atomic.Pointer[Snapshot]
	secrets  Secrets
	inst     Instantiator
}

// NewRegistry resolves the catalog and returns a registry holding it.
func NewRegistry(cfg *config.Config, secrets Secrets, inst Instantiator) (*Registry, error) {
	snap, err := Load(cfg, secrets, inst)
	if err != nil {
		return nil, err
	}
	r := &Registry{secrets: secrets, inst: inst}
	r.snapshot.Store(snap)
	return r, nil
}

// Current returns the active snapshot.
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// Reload resolves cfg into a new snapshot and swaps it in. On failure the
// previous snapshot stays active.
func (r *Registry) Reload(cfg *config.Config) error {
	snap, err := Load(cfg, r.secrets, r.inst)
	if err != nil {
		return err
	}
	r.snapshot.Store(snap)
	return nil
}
