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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/lector/pkg/builder"
	"github.com/kadirpekel/lector/pkg/config"
	"github.com/kadirpekel/lector/pkg/logger"
	"github.com/kadirpekel/lector/pkg/routing"
	"github.com/kadirpekel/lector/pkg/service"
	"github.com/kadirpekel/lector/pkg/store"
)

func newService(ctx context.Context, configPath string) (*service.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return service.New(ctx, cfg, service.Options{Logger: logger.GetLogger()})
}

// BuildCmd builds a knowledge engine from a corpus directory.
type BuildCmd struct {
	Name   string `arg:"" help:"Engine name."`
	Corpus string `arg:"" optional:"" help:"Corpus directory." type:"path"`

	Type           string   `help:"Engine type: vector_backed, managed_search, composite." default:"vector_backed"`
	ChatModel      string   `name:"chat-model" help:"Chat model id for answering queries."`
	EmbeddingModel string   `name:"embedding-model" help:"Embedding model id for indexing."`
	StoreKind      string   `name:"store" help:"Vector store backend (defaults to config default)."`
	Visibility     string   `help:"Engine visibility: public or private." default:"public"`
	Creator        string   `help:"Creator recorded on the engine."`
	Children       []string `help:"Child engine names (composite only)."`
	Description    string   `help:"Engine description shown to the route classifier."`
}

func (c *BuildCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := newService(ctx, cli.Config)
	if err != nil {
		return err
	}

	result, err := svc.BuildEngine(ctx, builder.BuildRequest{
		Name:           c.Name,
		Description:    c.Description,
		Creator:        c.Creator,
		Type:           store.EngineType(c.Type),
		CorpusURL:      c.Corpus,
		ChatModel:      c.ChatModel,
		EmbeddingModel: c.EmbeddingModel,
		StoreKind:      config.VectorStoreKind(c.StoreKind),
		Visibility:     store.Visibility(c.Visibility),
		Children:       c.Children,
	})
	if err != nil {
		return err
	}
	return printJSON(service.NewBuildJobPayload(result))
}

// QueryCmd asks a grounded question against one engine.
type QueryCmd struct {
	Engine   string `arg:"" help:"Engine name."`
	Question string `arg:"" help:"Question to answer."`

	User  string `help:"User id recorded on the result." default:"local"`
	Model string `help:"Chat model id (defaults to the engine's)."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := newService(ctx, cli.Config)
	if err != nil {
		return err
	}

	result, refs, err := svc.QueryGenerate(ctx, c.User, c.Question, c.Engine, c.Model, nil)
	if err != nil {
		return err
	}

	fmt.Println(result.Response)
	if len(refs) > 0 {
		fmt.Println("\nReferences:")
		for i, ref := range refs {
			fmt.Printf("  [%d] %s (%s)\n", i+1, ref.DocumentURL, ref.EngineName)
		}
	}
	return nil
}

// RouteCmd classifies and executes a prompt through a routing agent.
type RouteCmd struct {
	Agent  string `arg:"" help:"Routing agent name."`
	Prompt string `arg:"" help:"Prompt to route."`

	User  string `help:"User id recorded in history." default:"local"`
	Model string `help:"Model id for classification and chat."`
	Route string `help:"Skip classification and force this route."`
}

func (c *RouteCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := newService(ctx, cli.Config)
	if err != nil {
		return err
	}

	entry, err := svc.Route(ctx, routing.Request{
		UserID: c.User,
		Agent:  c.Agent,
		Prompt: c.Prompt,
		Model:  c.Model,
		Route:  store.RouteTag(c.Route),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Route: %s\n", entry.Route)
	switch {
	case entry.Plan != "":
		fmt.Println(entry.Plan)
	case entry.Table != "":
		fmt.Println(entry.Table)
		if entry.ResourceLink != "" {
			fmt.Printf("\nFull result: %s\n", entry.ResourceLink)
		}
	default:
		fmt.Println(entry.Content)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
