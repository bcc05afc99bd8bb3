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

import "os"

// Secrets resolves vendor and model API keys by name. A failed lookup is
// non-fatal: it disables the dependent model rather than aborting startup.
type Secrets interface {
	// Lookup returns the secret value and whether it resolved.
	Lookup(name string) (string, bool)
}

// EnvSecrets resolves secrets from the process environment.
type EnvSecrets struct{}

func (EnvSecrets) Lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// StaticSecrets is a fixed in-memory secret store, used in tests and for
// embedding the core into a platform that injects resolved secrets.
type StaticSecrets map[string]string

func (s StaticSecrets) Lookup(name string) (string, bool) {
	val, ok := s[name]
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
