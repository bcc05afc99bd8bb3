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

// Package routing classifies prompts into routes and dispatches them.
package routing

import (
	"context"
	"strings"

	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/store"
)

// Route is one classification destination.
type Route struct {
	Tag         store.RouteTag
	Description string
}

// buildRoutes assembles the dynamic route list for an agent: the two fixed
// routes, one query route per associated engine, one database route per
// dataset.
func buildRoutes(ctx context.Context, st store.Store, agent *config.RouteAgentConfig) ([]Route, error) {
	routes := []Route{
		{Tag: store.RouteChat, Description: "General conversation, greetings, and questions answerable without any knowledge base."},
		{Tag: store.RoutePlan, Description: "Requests to plan, schedule or break down a multi-step task."},
	}

	engines, err := agentEngines(ctx, st, agent)
	if err != nil {
		return nil, err
	}
	for _, engine := range engines {
		desc := engine.Description
		if desc == "" {
			desc = "Questions about the " + engine.Name + " knowledge base."
		}
		routes = append(routes, Route{Tag: store.QueryRoute(engine.Name), Description: desc})
	}

	if agent != nil {
		for _, dataset := range agent.Datasets {
			routes = append(routes, Route{
				Tag:         store.DatabaseRoute(dataset),
				Description: "Questions answerable from the " + dataset + " dataset with a data query.",
			})
		}
	}
	return routes, nil
}

// agentEngines resolves the agent's engine association: an explicit name
// list, or every public engine for the ALL sentinel.
func agentEngines(ctx context.Context, st store.Store, agent *config.RouteAgentConfig) ([]*store.QueryEngine, error) {
	if agent == nil || len(agent.Engines) == 0 {
		return nil, nil
	}

	all := false
	for _, name := range agent.Engines {
		if strings.EqualFold(name, config.AllEngines) {
			all = true
			break
		}
	}

	if all {
		engines, err := st.ListEngines(ctx)
		if err != nil {
			return nil, err
		}
		public := make([]*store.QueryEngine, 0, len(engines))
		for _, engine := range engines {
			if engine.Visibility == store.VisibilityPublic {
				public = append(public, engine)
			}
		}
		return public, nil
	}

	engines := make([]*store.QueryEngine, 0, len(agent.Engines))
	for _, name := range agent.Engines {
		engine, err := st.EngineByName(ctx, name)
		if err != nil {
			return nil, err
		}
		engines = append(engines, engine)
	}
	return engines, nil
}
