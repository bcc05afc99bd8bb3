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

package service

import (
	"github.com/kadirpekel/lector/pkg/builder"
	"github.com/kadirpekel/lector/pkg/store"
)

// BuildJobPayload is the writeback shape an asynchronous build job records.
type BuildJobPayload struct {
	EngineID        string   `json:"engine_id"`
	EngineName      string   `json:"engine_name"`
	ProcessedDocs   []string `json:"processed_docs"`
	UnprocessedDocs []string `json:"unprocessed_docs"`
}

// NewBuildJobPayload converts a build result into its job payload.
func NewBuildJobPayload(res *builder.BuildResult) BuildJobPayload {
	return BuildJobPayload{
		EngineID:        res.Engine.ID,
		EngineName:      res.Engine.Name,
		ProcessedDocs:   res.ProcessedDocs,
		UnprocessedDocs: res.UnprocessedDocs,
	}
}

// QueryJobPayload is the writeback shape an asynchronous batch query job
// records.
type QueryJobPayload struct {
	ResultID     string   `json:"result_id"`
	Response     string   `json:"response"`
	ReferenceIDs []string `json:"reference_ids"`
}

// NewQueryJobPayload converts a query result into its job payload.
func NewQueryJobPayload(result *store.QueryResult) QueryJobPayload {
	return QueryJobPayload{
		ResultID:     result.ID,
		Response:     result.Response,
		ReferenceIDs: result.ReferenceIDs,
	}
}
