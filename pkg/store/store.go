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

package store

import (
	"context"
)

// Store is the persistence seam for the domain records. Two implementations
// exist: the gorm-backed Database store and an in-memory store for tests.
type Store interface {
	// Engines
	CreateEngine(ctx context.Context, engine *QueryEngine) error
	EngineByID(ctx context.Context, id string) (*QueryEngine, error)
	EngineByName(ctx context.Context, name string) (*QueryEngine, error)
	EngineChildren(ctx context.Context, parentID string) ([]*QueryEngine, error)
	ListEngines(ctx context.Context) ([]*QueryEngine, error)
	UpdateEngine(ctx context.Context, engine *QueryEngine) error
	// DeleteEngine cascades to the engine's documents and chunks.
	// References and results keep their ids (weak references); later
	// lookups through them fail with ResourceNotFoundError.
	DeleteEngine(ctx context.Context, id string) error

	// Documents and chunks
	CreateDocument(ctx context.Context, doc *QueryDocument) error
	DocumentByID(ctx context.Context, id string) (*QueryDocument, error)
	CreateChunks(ctx context.Context, chunks []*QueryDocumentChunk) error
	ChunkByIndex(ctx context.Context, engineID string, index int) (*QueryDocumentChunk, error)
	// NextChunkOffset returns the first unused chunk index for an engine.
	NextChunkOffset(ctx context.Context, engineID string) (int, error)

	// References and results
	CreateReference(ctx context.Context, ref *QueryReference) error
	ReferenceByID(ctx context.Context, id string) (*QueryReference, error)
	CreateResult(ctx context.Context, result *QueryResult) error

	// Chat history
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	History(ctx context.Context, userID, agent string, limit int) ([]*HistoryEntry, error)
}
