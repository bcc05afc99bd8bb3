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

import "fmt"

// ModelConfigMissingError is returned when a model id cannot be resolved.
// It maps to a 404-equivalent at the platform boundary and is never retried.
type ModelConfigMissingError struct {
	ModelID string
}

func (e *ModelConfigMissingError) Error() string {
	return fmt.Sprintf("no configuration for model %q", e.ModelID)
}

// InvalidModelConfigError indicates a structurally invalid model catalog:
// an unknown key or a dangling model reference. It is fatal at registry
// construction since it indicates a deployment error.
type InvalidModelConfigError struct {
	Detail string
	Err    error
}

func (e *InvalidModelConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid model configuration: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("invalid model configuration: %s", e.Detail)
}

func (e *InvalidModelConfigError) Unwrap() error {
	return e.Err
}
