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

package main

import (
	"fmt"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/models"
)

// ValidateCmd validates a configuration file and dry-runs model registry
// resolution, reporting the enablement state of every configured model.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Resolve without instantiating clients: enablement only depends on
	// config and secrets.
	registry, err := models.NewRegistry(cfg, models.EnvSecrets{}, nil)
	if err != nil {
		return fmt.Errorf("registry resolution failed: %w", err)
	}
	snapshot := registry.Current()

	fmt.Printf("%s: configuration valid\n", c.Config)
	for _, m := range snapshot.Models() {
		state := "enabled"
		if !m.Enabled {
			state = "disabled: " + m.DisabledCause
		}
		fmt.Printf("  %-10s %-30s %s\n", m.Kind, m.ID, state)
	}
	return nil
}
