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

// Package vector stores and searches chunk embeddings for one knowledge
// engine behind a pluggable backend.
package vector

import (
	"context"
)

// Chunk is one embedding unit handed to a store. The integer index a store
// assigns to it at indexing time is the only join key back to the chunk
// record.
type Chunk struct {
	// Text of the chunk, kept alongside the vector where the backend
	// supports payloads.
	Text string

	// Vector is the pre-computed embedding.
	Vector []float32
}

// Store persists and searches embeddings for a single engine. A store is
// bound to its engine at construction; the engine's store kind is fixed at
// build time and persisted on the engine record so later queries reattach
// to the same backend.
type Store interface {
	// InitIndex prepares the backend (collection, table, index) for
	// writes. Idempotent.
	InitIndex(ctx context.Context) error

	// IndexDocument writes one document's chunks, assigning monotonically
	// increasing integer indices starting at startOffset, and returns the
	// next free offset. Index assignment is contiguous per document;
	// uniqueness across documents holds as long as callers thread the
	// returned offset into the next call.
	IndexDocument(ctx context.Context, docName string, chunks []Chunk, startOffset int) (int, error)

	// SimilaritySearch returns chunk indices ordered by decreasing
	// similarity to the query vector.
	SimilaritySearch(ctx context.Context, queryVector []float32, topK int) ([]int, error)

	// Deploy finalizes the index for serving. A no-op for database-backed
	// stores; a real and potentially slow step for managed-index stores.
	// Completion is not guaranteed to be synchronous.
	Deploy(ctx context.Context) error

	// Delete removes the engine's index and all its vectors.
	Delete(ctx context.Context) error
}
