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

package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Chunk is one pre-chunked embedding unit supplied by a corpus source.
type Chunk struct {
	RawText     string
	CleanedText string
	Sentences   []string
	Modality    string
}

// Document is one pre-chunked corpus document.
type Document struct {
	Name   string
	URL    string
	Chunks []Chunk
}

// CorpusSource supplies already-chunked documents for a corpus URL.
// Ingestion (file parsing, OCR, transcription) lives behind this boundary;
// the builder only consumes chunk text and sentence lists.
type CorpusSource interface {
	Documents(ctx context.Context, corpusURL string) ([]*Document, error)
}

// DirectorySource reads plain-text corpus files from a local directory,
// splitting each file into paragraph chunks. Files with extensions it does
// not understand yield a document with zero chunks so the builder records
// them as unprocessed.
type DirectorySource struct{}

var _ CorpusSource = (*DirectorySource)(nil)

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

func (s *DirectorySource) Documents(ctx context.Context, corpusURL string) ([]*Document, error) {
	dir := strings.TrimPrefix(corpusURL, "file://")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory %q: %w", dir, err)
	}

	var docs []*Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, entry.Name())
		doc := &Document{Name: entry.Name(), URL: path}
		if textExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading corpus file %q: %w", path, err)
			}
			doc.Chunks = chunkText(string(data))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// chunkText splits text into paragraph chunks with naive sentence lists.
func chunkText(text string) []Chunk {
	var chunks []Chunk
	for _, para := range strings.Split(text, "\n\n") {
		cleaned := strings.Join(strings.Fields(para), " ")
		if cleaned == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			RawText:     para,
			CleanedText: cleaned,
			Sentences:   splitSentences(cleaned),
			Modality:    "text",
		})
	}
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
