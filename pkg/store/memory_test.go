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
	"testing"
	"time"
)

func TestMemoryEngineCascadeDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	engine := &QueryEngine{ID: "e1", Name: "docs", Type: EngineVectorBacked, CreatedAt: time.Now()}
	if err := m.CreateEngine(ctx, engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CreateDocument(ctx, &QueryDocument{ID: "d1", EngineID: "e1", IndexStart: 0, IndexEnd: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CreateChunks(ctx, []*QueryDocumentChunk{
		{ID: "c0", EngineID: "e1", DocumentID: "d1", Index: 0},
		{ID: "c1", EngineID: "e1", DocumentID: "d1", Index: 1},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.DeleteEngine(ctx, "e1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.EngineByID(ctx, "e1"); !IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
	if _, err := m.DocumentByID(ctx, "d1"); !IsNotFound(err) {
		t.Errorf("expected document cascade delete, got %v", err)
	}
	if _, err := m.ChunkByIndex(ctx, "e1", 0); !IsNotFound(err) {
		t.Errorf("expected chunk cascade delete, got %v", err)
	}
}

func TestMemoryNextChunkOffset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	offset, err := m.NextChunkOffset(ctx, "e1")
	if err != nil || offset != 0 {
		t.Fatalf("empty engine offset = %d, %v; want 0, nil", offset, err)
	}

	if err := m.CreateChunks(ctx, []*QueryDocumentChunk{
		{ID: "c0", EngineID: "e1", Index: 0},
		{ID: "c1", EngineID: "e1", Index: 1},
		{ID: "x9", EngineID: "other", Index: 9},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	offset, err = m.NextChunkOffset(ctx, "e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 2 {
		t.Errorf("offset = %d, want 2 (other engines must not leak in)", offset)
	}
}

func TestMemoryEngineChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	parent := "p1"
	base := time.Now()
	for i, id := range []string{"c1", "c2"} {
		err := m.CreateEngine(ctx, &QueryEngine{
			ID: id, Name: id, ParentID: &parent,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := m.CreateEngine(ctx, &QueryEngine{ID: "solo", Name: "solo", CreatedAt: base}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	children, err := m.EngineChildren(ctx, parent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 || children[0].ID != "c1" || children[1].ID != "c2" {
		t.Errorf("children = %v, want [c1 c2] in creation order", children)
	}
}

func TestMemoryHistoryScoping(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	entries := []*HistoryEntry{
		{ID: "1", UserID: "u1", Agent: "a", Content: "first"},
		{ID: "2", UserID: "u2", Agent: "a", Content: "other user"},
		{ID: "3", UserID: "u1", Agent: "b", Content: "other agent"},
		{ID: "4", UserID: "u1", Agent: "a", Content: "second"},
		{ID: "5", UserID: "u1", Agent: "a", Content: "third"},
	}
	for _, e := range entries {
		if err := m.AppendHistory(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := m.History(ctx, "u1", "a", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	// Most recent entries, oldest first.
	if got[0].Content != "second" || got[1].Content != "third" {
		t.Errorf("history = [%s %s], want [second third]", got[0].Content, got[1].Content)
	}
}

func TestIsNotFound(t *testing.T) {
	err := notFound("engine", "missing")
	if !IsNotFound(err) {
		t.Error("expected IsNotFound to match")
	}
	if IsNotFound(context.Canceled) {
		t.Error("IsNotFound must not match unrelated errors")
	}
}
