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
	"sort"
	"strconv"
	"sync"
)

// Memory implements Store in process memory. Used by tests and by local
// runs that do not need persistence.
type Memory struct {
	mu         sync.RWMutex
	engines    map[string]*QueryEngine
	documents  map[string]*QueryDocument
	chunks     map[string]*QueryDocumentChunk
	references map[string]*QueryReference
	results    map[string]*QueryResult
	history    []*HistoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		engines:    make(map[string]*QueryEngine),
		documents:  make(map[string]*QueryDocument),
		chunks:     make(map[string]*QueryDocumentChunk),
		references: make(map[string]*QueryReference),
		results:    make(map[string]*QueryResult),
	}
}

func (m *Memory) CreateEngine(ctx context.Context, engine *QueryEngine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[engine.ID] = engine
	return nil
}

func (m *Memory) EngineByID(ctx context.Context, id string) (*QueryEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	engine, ok := m.engines[id]
	if !ok {
		return nil, notFound("engine", id)
	}
	return engine, nil
}

func (m *Memory) EngineByName(ctx context.Context, name string) (*QueryEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, engine := range m.engines {
		if engine.Name == name {
			return engine, nil
		}
	}
	return nil, notFound("engine", name)
}

func (m *Memory) EngineChildren(ctx context.Context, parentID string) ([]*QueryEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var children []*QueryEngine
	for _, engine := range m.engines {
		if engine.ParentID != nil && *engine.ParentID == parentID {
			children = append(children, engine)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})
	return children, nil
}

func (m *Memory) ListEngines(ctx context.Context) ([]*QueryEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	engines := make([]*QueryEngine, 0, len(m.engines))
	for _, engine := range m.engines {
		engines = append(engines, engine)
	}
	sort.Slice(engines, func(i, j int) bool {
		return engines[i].CreatedAt.Before(engines[j].CreatedAt)
	})
	return engines, nil
}

func (m *Memory) UpdateEngine(ctx context.Context, engine *QueryEngine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.engines[engine.ID]; !ok {
		return notFound("engine", engine.ID)
	}
	m.engines[engine.ID] = engine
	return nil
}

func (m *Memory) DeleteEngine(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.engines[id]; !ok {
		return notFound("engine", id)
	}
	delete(m.engines, id)
	for docID, doc := range m.documents {
		if doc.EngineID == id {
			delete(m.documents, docID)
		}
	}
	for chunkID, chunk := range m.chunks {
		if chunk.EngineID == id {
			delete(m.chunks, chunkID)
		}
	}
	return nil
}

func (m *Memory) CreateDocument(ctx context.Context, doc *QueryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	return nil
}

func (m *Memory) DocumentByID(ctx context.Context, id string) (*QueryDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, notFound("document", id)
	}
	return doc, nil
}

func (m *Memory) CreateChunks(ctx context.Context, chunks []*QueryDocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range chunks {
		m.chunks[chunk.ID] = chunk
	}
	return nil
}

func (m *Memory) ChunkByIndex(ctx context.Context, engineID string, index int) (*QueryDocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chunk := range m.chunks {
		if chunk.EngineID == engineID && chunk.Index == index {
			return chunk, nil
		}
	}
	return nil, notFound("chunk", engineID+"/"+strconv.Itoa(index))
}

func (m *Memory) NextChunkOffset(ctx context.Context, engineID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	next := 0
	for _, chunk := range m.chunks {
		if chunk.EngineID == engineID && chunk.Index >= next {
			next = chunk.Index + 1
		}
	}
	return next, nil
}

func (m *Memory) CreateReference(ctx context.Context, ref *QueryReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references[ref.ID] = ref
	return nil
}

func (m *Memory) ReferenceByID(ctx context.Context, id string) (*QueryReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.references[id]
	if !ok {
		return nil, notFound("reference", id)
	}
	return ref, nil
}

func (m *Memory) CreateResult(ctx context.Context, result *QueryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
	return nil
}

func (m *Memory) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

func (m *Memory) History(ctx context.Context, userID, agent string, limit int) ([]*HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*HistoryEntry
	for _, entry := range m.history {
		if entry.UserID != userID {
			continue
		}
		if agent != "" && entry.Agent != agent {
			continue
		}
		entries = append(entries, entry)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

var _ Store = (*Memory)(nil)
